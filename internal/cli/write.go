package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coffersTech/filelog/internal/format"
	"github.com/coffersTech/filelog/internal/model"
	"github.com/coffersTech/filelog/internal/registry"
)

func (a *app) newWriteCommand() *cobra.Command {
	var (
		level    string
		fileName string
		encoding string
		console  bool
	)

	cmd := &cobra.Command{
		Use:   "write <logger> <message> [key=value...]",
		Short: "Append one record to a logger's file",
		Example: `  filelog write scraper "Page fetched" url=https://example.com status=200
  filelog write --level error --encoding json billing "charge failed" retry=true`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, ok := model.ParseLevel(level)
			if !ok {
				return fmt.Errorf("unknown level %q", level)
			}

			var opts []registry.HandleOption
			if fileName != "" {
				opts = append(opts, registry.WithFileName(fileName))
			}
			if encoding != "" {
				enc, err := format.ParseEncoding(encoding)
				if err != nil {
					return err
				}
				opts = append(opts, registry.WithEncoding(enc))
			}
			if cmd.Flags().Changed("console") {
				opts = append(opts, registry.WithConsole(console))
			}

			attrs, err := parseAttrs(args[2:])
			if err != nil {
				return err
			}

			reg := a.registry()
			defer reg.Close()

			h, err := reg.GetLogger(args[0], opts...)
			if err != nil {
				return err
			}
			return h.Log(lvl, args[1], attrs...)
		},
	}

	cmd.Flags().StringVarP(&level, "level", "l", string(model.LevelInfo), "record level (DEBUG, INFO, SUCCESS, WARNING, ERROR, CRITICAL)")
	cmd.Flags().StringVar(&fileName, "file", "", "file name inside the log dir (default <logger>.log)")
	cmd.Flags().StringVar(&encoding, "encoding", "", "text or json (default from config)")
	cmd.Flags().BoolVar(&console, "console", false, "mirror the record to stdout")
	return cmd
}

// parseAttrs turns key=value arguments into attributes. Values that read as
// integers, floats or booleans keep that type.
func parseAttrs(args []string) ([]model.Attr, error) {
	attrs := make([]model.Attr, 0, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("attribute %q: want key=value", arg)
		}
		attrs = append(attrs, model.Attr{Key: key, Value: attrValue(raw)})
	}
	return attrs, nil
}

func attrValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
