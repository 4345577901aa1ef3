package main

import "github.com/danielpatrickdp/rlops-agent/internal/cli"

func main() {
	cli.Execute()
}
