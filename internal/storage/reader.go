package storage

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/spf13/afero"
)

const readBufferSize = 64 * 1024

// LineIterator streams the lines of a segment without buffering the whole
// file. Lines of any length are returned whole, without the line ending.
type LineIterator struct {
	rc   io.ReadCloser
	r    *bufio.Reader
	line string
	read int
	err  error
	done bool
}

// NewLineIterator iterates over rc and closes it on Close.
func NewLineIterator(rc io.ReadCloser) *LineIterator {
	return &LineIterator{
		rc: rc,
		r:  bufio.NewReaderSize(rc, readBufferSize),
	}
}

// OpenLines opens a segment (compressed or not) for line iteration.
func OpenLines(fs afero.Fs, path string) (*LineIterator, error) {
	rc, err := OpenSegment(fs, path)
	if err != nil {
		return nil, err
	}
	return NewLineIterator(rc), nil
}

// Next advances to the next line. It returns false at end of input or on
// error; check Err afterwards.
func (it *LineIterator) Next() bool {
	if it.done {
		return false
	}

	s, err := it.r.ReadString('\n')
	if err != nil {
		it.done = true
		if !errors.Is(err, io.EOF) {
			it.err = err
			return false
		}
		if s == "" {
			return false
		}
	}

	it.line = strings.TrimRight(s, "\r\n")
	it.read++
	return true
}

func (it *LineIterator) Line() string {
	return it.line
}

func (it *LineIterator) Err() error {
	return it.err
}

// LinesRead reports how many lines Next has produced so far.
func (it *LineIterator) LinesRead() int {
	return it.read
}

func (it *LineIterator) Close() error {
	it.done = true
	return it.rc.Close()
}
