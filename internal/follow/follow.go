package follow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/danielpatrickdp/rlops-agent/internal/agent"
)

// Follower tails a log file and feeds each appended line to a learning
// session, so live learning matches a batch pass over the same lines.
type Follower struct {
	path    string
	session *agent.Session
	onStep  func(line string, step agent.Step)

	offset  int64
	partial []byte
}

// New creates a follower for path. When fromStart is false, content already
// in the file is skipped.
func New(path string, session *agent.Session, fromStart bool, onStep func(string, agent.Step)) (*Follower, error) {
	f := &Follower{path: path, session: session, onStep: onStep}
	if !fromStart {
		info, err := os.Stat(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if err == nil {
			f.offset = info.Size()
		}
	}
	return f, nil
}

// Run watches the file's directory and drains new lines on every write or
// create. Blocks until ctx is cancelled.
func (f *Follower) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	// watch the directory so rotation and late creation are seen
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watch %s: %w", f.path, err)
	}

	if _, err := f.Drain(); err != nil {
		log.Printf("follow %s: %v", f.path, err)
	}

	target := filepath.Clean(f.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				f.offset = 0
				f.partial = nil
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if _, err := f.Drain(); err != nil {
					log.Printf("follow %s: %v", f.path, err)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("file watcher error: %v", err)
		}
	}
}

// Drain reads everything appended since the last call and observes each
// complete non-blank line. A trailing line without a newline is held until
// it is completed. A file that shrank is read again from the start.
func (f *Follower) Drain() (int, error) {
	file, err := os.Open(f.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat: %w", err)
	}
	if info.Size() < f.offset {
		f.offset = 0
		f.partial = nil
	}
	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek: %w", err)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}
	f.offset += int64(len(data))

	buf := append(f.partial, data...)
	n := 0
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(buf[:i]), "\r")
		buf = buf[i+1:]
		if strings.TrimSpace(line) == "" {
			continue
		}
		step := f.session.ObserveLine(line)
		if f.onStep != nil {
			f.onStep(line, step)
		}
		n++
	}
	f.partial = append([]byte(nil), buf...)
	return n, nil
}
