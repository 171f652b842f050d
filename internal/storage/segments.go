package storage

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// Segment is one file of a log's history.
type Segment struct {
	Path string
	// Index is 0 for the active file and n for the n-th most recent backup.
	Index      int
	Compressed bool
}

// Segments lists the existing files of path oldest first: .N down to .1,
// then the active file. When both a plain and a compressed backup exist for
// the same index, the compressed one is listed.
func Segments(fs afero.Fs, path string) ([]Segment, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}

	byIndex := make(map[int]Segment)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == base {
			byIndex[0] = Segment{Path: path}
			continue
		}
		if !strings.HasPrefix(name, base+".") {
			continue
		}

		rest := strings.TrimPrefix(name, base+".")
		compressed := strings.HasSuffix(rest, CompressedSuffix)
		rest = strings.TrimSuffix(rest, CompressedSuffix)

		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			continue
		}
		if prev, ok := byIndex[n]; ok && prev.Compressed {
			continue
		}
		byIndex[n] = Segment{
			Path:       filepath.Join(dir, name),
			Index:      n,
			Compressed: compressed,
		}
	}

	segs := make([]Segment, 0, len(byIndex))
	for _, s := range byIndex {
		segs = append(segs, s)
	}
	sort.Slice(segs, func(i, j int) bool {
		a, b := segs[i].Index, segs[j].Index
		if a == 0 || b == 0 {
			return b == 0 && a != 0
		}
		return a > b
	})
	return segs, nil
}
