package state

import (
	"bufio"
	"io"
	"strings"
)

// EachLine calls fn with every line of r, stripped of its "\n" or "\r\n"
// terminator. Lines have no length limit. An error from fn stops the read and
// is returned as is.
func EachLine(r io.Reader, fn func(line string) error) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
			if ferr := fn(line); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
