package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/coffersTech/filelog/internal/engine"
	"github.com/coffersTech/filelog/internal/format"
)

// queryFlags are the selection flags shared by query, stats and histogram.
type queryFlags struct {
	start, end string
	level      string
	source     string
	last       time.Duration
	minutes    int
	hours      int
	days       int
}

func (q *queryFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&q.start, "start", "", "window start, YYYY-MM-DD or YYYY-MM-DD HH:MM:SS")
	fs.StringVar(&q.end, "end", "", "window end, YYYY-MM-DD (whole day) or YYYY-MM-DD HH:MM:SS")
	fs.StringVar(&q.level, "level", "", "only records of this level")
	fs.StringVar(&q.source, "source", "", "only records whose source contains this text")
	fs.DurationVar(&q.last, "last", 0, "window ending now, e.g. 90m")
	fs.IntVar(&q.minutes, "minutes", 0, "last N minutes")
	fs.IntVar(&q.hours, "hours", 0, "last N hours")
	fs.IntVar(&q.days, "days", 0, "last N days")
}

// window returns the relative window and whether one was asked for.
func (q *queryFlags) window(flags *pflag.FlagSet) (time.Duration, bool, error) {
	var (
		d   time.Duration
		set int
	)
	if flags.Changed("last") {
		d, set = q.last, set+1
	}
	if flags.Changed("minutes") {
		d, set = time.Duration(q.minutes)*time.Minute, set+1
	}
	if flags.Changed("hours") {
		d, set = time.Duration(q.hours)*time.Hour, set+1
	}
	if flags.Changed("days") {
		d, set = time.Duration(q.days)*24*time.Hour, set+1
	}
	if set > 1 {
		return 0, false, errors.New("use only one of --last, --minutes, --hours, --days")
	}
	return d, set == 1, nil
}

func (q *queryFlags) filter(qe *engine.QueryEngine, flags *pflag.FlagSet, opts ...engine.FilterOption) (engine.Filter, error) {
	if q.level != "" {
		opts = append(opts, engine.WithLevel(q.level))
	}
	if q.source != "" {
		opts = append(opts, engine.WithSource(q.source))
	}

	d, relative, err := q.window(flags)
	if err != nil {
		return engine.Filter{}, err
	}
	switch {
	case relative && (q.start != "" || q.end != ""):
		return engine.Filter{}, errors.New("a relative window excludes --start and --end")
	case relative:
		return qe.Window(d, opts...)
	case q.start != "" || q.end != "":
		if q.start == "" || q.end == "" {
			return engine.Filter{}, errors.New("--start and --end go together")
		}
		return qe.Filter(q.start, q.end, opts...)
	default:
		var f engine.Filter
		for _, opt := range opts {
			opt(&f)
		}
		return f, f.Validate()
	}
}

func (a *app) newQueryCommand() *cobra.Command {
	var (
		q        queryFlags
		limit    int
		segments bool
		follow   bool
	)

	cmd := &cobra.Command{
		Use:   "query <logger>",
		Short: "Print the matching lines of a logger's file",
		Example: `  filelog query scraper --start 2025-05-05 --end 2025-05-05 --level error
  filelog query scraper --minutes 30 --source fetch
  filelog query scraper --segments --limit 100
  filelog query scraper --follow --level warning`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.logFile(args[0])
			if err != nil {
				return err
			}
			qe := a.engine()

			var opts []engine.FilterOption
			if cmd.Flags().Changed("limit") {
				opts = append(opts, engine.WithLimit(limit))
			}

			if follow {
				if segments {
					return errors.New("--follow reads the active file only")
				}
				f, err := q.filter(qe, cmd.Flags(), opts...)
				if err != nil {
					return err
				}
				// A follow has no end.
				f.End = time.Time{}
				return qe.Follow(cmd.Context(), path, f, func(line string) error {
					_, err := fmt.Fprintln(a.out, line)
					return err
				})
			}

			f, err := q.filter(qe, cmd.Flags(), opts...)
			if err != nil {
				return err
			}
			var lines []string
			if segments {
				lines, err = qe.ScanSegments(path, f)
			} else {
				lines, err = qe.Scan(path, f)
			}
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Fprintln(a.out, line)
			}
			a.diag.Debug().Str("file", path).Int("matches", len(lines)).Msg("query done")
			return nil
		},
	}

	q.register(cmd.Flags())
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "stop after N matches (0 for all)")
	cmd.Flags().BoolVar(&segments, "segments", false, "also read rotated backups, oldest first")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new matching lines")
	return cmd
}

func (a *app) newStatsCommand() *cobra.Command {
	var q queryFlags

	cmd := &cobra.Command{
		Use:   "stats <logger>",
		Short: "Summarize a logger's file by level and source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.logFile(args[0])
			if err != nil {
				return err
			}
			qe := a.engine()
			f, err := q.filter(qe, cmd.Flags())
			if err != nil {
				return err
			}
			sum, err := qe.Summarize(path, f)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		},
	}

	q.register(cmd.Flags())
	return cmd
}

func (a *app) newHistogramCommand() *cobra.Command {
	var (
		q        queryFlags
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "histogram <logger>",
		Short: "Count matching records per time bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.logFile(args[0])
			if err != nil {
				return err
			}
			qe := a.engine()
			f, err := q.filter(qe, cmd.Flags())
			if err != nil {
				return err
			}
			points, err := qe.Histogram(path, f, interval)
			if err != nil {
				return err
			}
			for _, p := range points {
				fmt.Fprintf(a.out, "%s\t%d\n", p.Time.Format(format.TimeLayout), p.Count)
			}
			return nil
		},
	}

	q.register(cmd.Flags())
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "bucket width, at least 1s")
	return cmd
}
