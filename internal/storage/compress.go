package storage

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

// CompressedSuffix marks a zstd-compressed segment.
const CompressedSuffix = ".zst"

// compressFile writes path+".zst" through a temporary file and removes the
// original once the compressed copy is in place.
func compressFile(fs afero.Fs, path string) error {
	src, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open segment: %w", err)
	}
	defer src.Close()

	dst := path + CompressedSuffix
	tmp := dst + ".tmp"
	out, err := fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create compressed segment: %w", err)
	}

	enc, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		fs.Remove(tmp)
		return err
	}
	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		out.Close()
		fs.Remove(tmp)
		return fmt.Errorf("failed to compress segment: %w", err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		fs.Remove(tmp)
		return fmt.Errorf("failed to finalize compressed segment: %w", err)
	}
	if err := out.Close(); err != nil {
		fs.Remove(tmp)
		return err
	}

	if err := fs.Rename(tmp, dst); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("failed to rename compressed segment: %w", err)
	}
	src.Close()
	return fs.Remove(path)
}

// zstdReadCloser releases both the decoder and the underlying file.
type zstdReadCloser struct {
	*zstd.Decoder
	file afero.File
}

func (z *zstdReadCloser) Close() error {
	z.Decoder.Close()
	return z.file.Close()
}

// OpenSegment opens a segment for reading, decompressing .zst files.
func OpenSegment(fs afero.Fs, path string) (io.ReadCloser, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, CompressedSuffix) {
		return f, nil
	}

	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open compressed segment %s: %w", path, err)
	}
	return &zstdReadCloser{Decoder: dec, file: f}, nil
}
