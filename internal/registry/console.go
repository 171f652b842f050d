package registry

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/coffersTech/filelog/internal/metrics"
	"github.com/coffersTech/filelog/internal/model"
)

var levelColors = map[model.Level]*color.Color{
	model.LevelDebug:    color.New(color.FgHiBlack),
	model.LevelInfo:     color.New(color.FgCyan),
	model.LevelSuccess:  color.New(color.FgGreen),
	model.LevelWarning:  color.New(color.FgYellow),
	model.LevelError:    color.New(color.FgRed),
	model.LevelCritical: color.New(color.FgHiRed, color.Bold),
}

func init() {
	// Colouring is decided per sink, not by the package-wide NoColor switch.
	for _, c := range levelColors {
		c.EnableColor()
	}
}

// consoleSink mirrors written lines to a terminal or stream.
type consoleSink struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
	diag  zerolog.Logger
}

func newConsoleSink(w io.Writer, diag zerolog.Logger) *consoleSink {
	return &consoleSink{w: w, color: isTerminal(w), diag: diag}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// write prints line, colouring the bracketed level token on terminals.
// Failures are counted and otherwise ignored.
func (c *consoleSink) write(level model.Level, line string) {
	if c.color {
		if col, ok := levelColors[level]; ok {
			token := "[" + string(level) + "]"
			line = strings.Replace(line, token, "["+col.Sprint(string(level))+"]", 1)
		}
	}

	c.mu.Lock()
	_, err := io.WriteString(c.w, line+"\n")
	c.mu.Unlock()

	if err != nil {
		metrics.ConsoleFailures.Inc()
		c.diag.Debug().Err(err).Msg("console mirror failed")
	}
}
