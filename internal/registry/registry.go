// Package registry hands out named loggers. Each name is bound once to a
// file writer and an encoding; files are shared between names that point at
// the same path so that every file has exactly one writer in the process.
package registry

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/coffersTech/filelog/internal/format"
	"github.com/coffersTech/filelog/internal/storage"
)

var (
	// ErrRegistryClosed is returned by GetLogger after Close.
	ErrRegistryClosed = errors.New("registry is closed")
	// ErrInvalidName rejects logger names that cannot map to a file in the
	// log directory.
	ErrInvalidName = errors.New("logger name must be a plain name")
)

// Options configures a Registry. Zero values select the defaults: the OS
// filesystem, the current directory, 5 MiB / 3 backups, text encoding,
// stdout as console, local time and time.Now.
type Options struct {
	Fs  afero.Fs
	Dir string
	// Rotation is used as given, so a zero MaxSizeBytes disables rotation.
	// Nil selects storage.DefaultRotationConfig.
	Rotation *storage.RotationConfig
	Encoding format.Encoding
	// ConsoleDefault mirrors every logger to Console unless overridden.
	ConsoleDefault bool
	Console        io.Writer
	Location       *time.Location
	Clock          func() time.Time
	Diag           zerolog.Logger
}

// Registry maps logger names to handles.
type Registry struct {
	mu      sync.RWMutex
	opts    Options
	console *consoleSink
	handles map[string]*Handle
	writers map[string]*storage.RotatingWriter
	closed  bool
}

// New creates a Registry. The caller owns it and must Close it.
func New(opts Options) *Registry {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Rotation == nil {
		def := storage.DefaultRotationConfig()
		opts.Rotation = &def
	}
	if opts.Encoding == "" {
		opts.Encoding = format.EncodingText
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Registry{
		opts:    opts,
		console: newConsoleSink(opts.Console, opts.Diag),
		handles: make(map[string]*Handle),
		writers: make(map[string]*storage.RotatingWriter),
	}
}

type handleConfig struct {
	fileName string // empty selects <name>.log
	console  bool
	encoding format.Encoding
}

// HandleOption configures a logger on first registration.
type HandleOption func(*handleConfig)

// WithFileName sets the file, relative to the registry directory unless
// absolute. The default is "<name>.log", which requires a plain name.
func WithFileName(name string) HandleOption {
	return func(c *handleConfig) { c.fileName = name }
}

// WithConsole toggles mirroring to the console sink.
func WithConsole(on bool) HandleOption {
	return func(c *handleConfig) { c.console = on }
}

func WithEncoding(enc format.Encoding) HandleOption {
	return func(c *handleConfig) { c.encoding = enc }
}

// GetLogger returns the handle for name, creating it on first use. Options
// passed after the first registration are ignored.
func (r *Registry) GetLogger(name string, opts ...HandleOption) (*Handle, error) {
	if name == "" {
		return nil, errors.New("logger name is empty")
	}

	r.mu.RLock()
	h, ok := r.handles[name]
	closed := r.closed
	r.mu.RUnlock()
	if ok && !closed {
		return h, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if h, ok := r.handles[name]; ok {
		return h, nil
	}

	cfg := handleConfig{
		console:  r.opts.ConsoleDefault,
		encoding: r.opts.Encoding,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	path := cfg.fileName
	switch {
	case path == "":
		file, err := LogFile(r.opts.Dir, name)
		if err != nil {
			return nil, err
		}
		path = file
	case !filepath.IsAbs(path):
		path = filepath.Join(r.opts.Dir, path)
	}
	path = filepath.Clean(path)

	formatter, err := format.New(cfg.encoding, r.opts.Location)
	if err != nil {
		return nil, fmt.Errorf("logger %s: %w", name, err)
	}

	w, ok := r.writers[path]
	if !ok {
		w, err = storage.OpenRotatingWriter(r.opts.Fs, path, *r.opts.Rotation, r.opts.Diag)
		if err != nil {
			return nil, fmt.Errorf("logger %s: %w", name, err)
		}
		r.writers[path] = w
	}

	h = &Handle{
		name:      name,
		writer:    w,
		formatter: formatter,
		clock:     r.opts.Clock,
	}
	if cfg.console {
		h.console = r.console
	}
	r.handles[name] = h

	r.opts.Diag.Debug().Str("logger", name).Str("file", path).Str("encoding", string(cfg.encoding)).Msg("logger registered")
	return h, nil
}

// LogFile returns the default file of logger name inside dir. Names that
// would leave dir are rejected.
func LogFile(dir, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(dir, name+".log"), nil
}

// Names lists registered logger names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases every writer. It is safe to call more than once; handles
// obtained earlier fail their writes afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	writers := make([]*storage.RotatingWriter, 0, len(r.writers))
	for _, w := range r.writers {
		writers = append(writers, w)
	}
	r.mu.Unlock()

	errs := make([]error, len(writers))
	var g errgroup.Group
	for i, w := range writers {
		i, w := i, w
		g.Go(func() error {
			errs[i] = w.Close()
			return nil
		})
	}
	g.Wait()

	return errors.Join(errs...)
}
