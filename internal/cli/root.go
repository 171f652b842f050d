// Package cli wires the filelog commands: write, query, stats, histogram,
// serve and token-hash.
package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/coffersTech/filelog/internal/config"
	"github.com/coffersTech/filelog/internal/diag"
	"github.com/coffersTech/filelog/internal/engine"
	"github.com/coffersTech/filelog/internal/format"
	"github.com/coffersTech/filelog/internal/registry"
)

// app carries what every command needs once the config is loaded.
type app struct {
	fs     afero.Fs
	out    io.Writer
	errOut io.Writer

	cfgFile string
	cfg     *config.Config
	loc     *time.Location
	diag    zerolog.Logger
}

// NewRootCommand builds the command tree. Output goes to out, diagnostics
// to errOut.
func NewRootCommand(fs afero.Fs, out, errOut io.Writer) *cobra.Command {
	a := &app{fs: fs, out: out, errOut: errOut, diag: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "filelog",
		Short: "Write, rotate and query plain-text log files",
		Long: `filelog manages named log files with size-based rotation and
answers time, level and source queries over them.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./filelog.yaml or the user config dir)")

	root.AddCommand(
		a.newWriteCommand(),
		a.newQueryCommand(),
		a.newStatsCommand(),
		a.newHistogramCommand(),
		a.newServeCommand(),
		a.newTokenHashCommand(),
	)
	return root
}

func (a *app) load(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(a.cfgFile)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	loc, err := cfg.Log.Location()
	if err != nil {
		return err
	}
	l, err := diag.New(a.errOut, cfg.Diag.Level, diag.Format(cfg.Diag.Format))
	if err != nil {
		return err
	}

	a.cfg, a.loc, a.diag = cfg, loc, l
	if v.ConfigFileUsed() != "" {
		a.diag.Debug().Str("file", v.ConfigFileUsed()).Msg("config loaded")
	}
	return nil
}

func (a *app) engine() *engine.QueryEngine {
	return engine.NewQueryEngine(a.fs,
		engine.WithLocation(a.loc),
		engine.WithDiag(diag.Component(a.diag, "engine")),
	)
}

func (a *app) registry() *registry.Registry {
	rotation := a.cfg.Log.Rotation()
	return registry.New(registry.Options{
		Fs:             a.fs,
		Dir:            a.cfg.Log.Dir,
		Rotation:       &rotation,
		Encoding:       format.Encoding(a.cfg.Log.Encoding),
		ConsoleDefault: a.cfg.Log.Console,
		Console:        a.out,
		Location:       a.loc,
		Diag:           diag.Component(a.diag, "registry"),
	})
}

func (a *app) logFile(name string) (string, error) {
	path, err := registry.LogFile(a.cfg.Log.Dir, name)
	if err != nil {
		return "", fmt.Errorf("logger %q: %w", name, err)
	}
	return path, nil
}
