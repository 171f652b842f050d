package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// followPoll re-reads the file periodically in case an event was missed.
const followPoll = time.Second

// Follow tails the active file at path, calling fn for every new line that
// matches f. It starts at the current end of the file, reopens the file
// after rotation and returns nil when ctx is cancelled or f.Limit matches
// have been delivered. An error from fn stops following and is returned.
//
// Change notification needs the real filesystem; reads go through the
// engine's fs.
func (qe *QueryEngine) Follow(ctx context.Context, path string, f Filter, fn func(line string) error) error {
	if err := f.Validate(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	t := &tail{fs: qe.fs, path: path}
	if err := t.open(true); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	defer t.close()

	delivered := 0
	var fnErr error
	emit := func(line string) bool {
		rec, ok := qe.decoder.Decode(line)
		if !ok || !f.Match(rec) {
			return true
		}
		if fnErr = fn(line); fnErr != nil {
			return false
		}
		delivered++
		return f.Limit == 0 || delivered < f.Limit
	}

	// drain reads what is available and reports whether to keep following.
	drain := func() (bool, error) {
		more, err := t.drain(emit)
		if fnErr != nil {
			return false, fnErr
		}
		return more, err
	}

	ticker := time.NewTicker(followPoll)
	defer ticker.Stop()

	for {
		var (
			more = true
			err  error
		)

		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}

			switch {
			case event.Op&fsnotify.Create != 0:
				// Rotation: finish the old file, then start the new one from the top.
				if more, err = drain(); err != nil || !more {
					break
				}
				if t.file != nil && !t.replaced(true) {
					break
				}
				t.close()
				if err = t.open(false); err != nil {
					if errors.Is(err, os.ErrNotExist) {
						err = nil
					}
					break
				}
				qe.log.Debug().Str("file", path).Msg("follow reopened file")
				more, err = drain()
			case event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0:
				more, err = drain()
			}

		case <-ticker.C:
			if t.file != nil && t.replaced(false) {
				if more, err = drain(); err != nil || !more {
					break
				}
				t.close()
			}
			if t.file == nil {
				if err = t.open(false); err != nil {
					if errors.Is(err, os.ErrNotExist) {
						err = nil
					}
					break
				}
			}
			more, err = drain()

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			qe.log.Warn().Err(werr).Str("file", path).Msg("watcher error")
		}

		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// tail reads complete lines appended to a file.
type tail struct {
	fs      afero.Fs
	path    string
	file    afero.File
	pending []byte
	buf     [32 * 1024]byte
}

func (t *tail) open(atEnd bool) error {
	f, err := t.fs.Open(t.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", t.path, err)
	}
	if atEnd {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return fmt.Errorf("seek %s: %w", t.path, err)
		}
	}
	t.file = f
	t.pending = t.pending[:0]
	return nil
}

// replaced reports whether path now names a different file than the one
// open. When file identity is unknown (no OS file info) it returns unknown.
func (t *tail) replaced(unknown bool) bool {
	open, err := t.file.Stat()
	if err != nil || open.Sys() == nil {
		return unknown
	}
	current, err := t.fs.Stat(t.path)
	if err != nil {
		return false
	}
	return !os.SameFile(open, current)
}

func (t *tail) close() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}
}

// drain emits every complete line currently readable. A trailing partial
// line is kept until its newline arrives. It returns false once emit does.
func (t *tail) drain(emit func(string) bool) (bool, error) {
	if t.file == nil {
		return true, nil
	}
	for {
		n, err := t.file.Read(t.buf[:])
		if n > 0 {
			t.pending = append(t.pending, t.buf[:n]...)
			for {
				i := bytes.IndexByte(t.pending, '\n')
				if i < 0 {
					break
				}
				line := string(bytes.TrimRight(t.pending[:i], "\r"))
				t.pending = t.pending[i+1:]
				if !emit(line) {
					return false, nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return true, nil
			}
			return true, fmt.Errorf("read %s: %w", t.path, err)
		}
		if n == 0 {
			return true, nil
		}
	}
}
