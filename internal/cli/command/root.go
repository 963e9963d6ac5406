package command

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memkv/internal/cli/output"
	"github.com/yndnr/memkv/internal/infra/buildinfo"
	"github.com/yndnr/memkv/internal/telemetry/logger"
)

const loggerKey = "logger"

// App creates the memkv-check application.
func App() *cli.App {
	return &cli.App{
		Name:    "memkv-check",
		Usage:   "verify and inspect memkv snapshot files",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			CheckCommand(),
			DumpCommand(),
			ListCommand(),
			ArchiveCommand(),
		},
		Before: func(c *cli.Context) error {
			if _, err := output.ParseFormat(c.String("output")); err != nil {
				return cli.Exit(err.Error(), 2)
			}
			level := "warn"
			if c.Bool("verbose") {
				level = "debug"
			}
			log, err := logger.New(logger.Config{Level: level, Format: "text", Output: stderr(c)})
			if err != nil {
				return err
			}
			if c.App.Metadata == nil {
				c.App.Metadata = map[string]any{}
			}
			c.App.Metadata[loggerKey] = log
			return nil
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Log decoder details to stderr",
		},
	}
}

func loggerFrom(c *cli.Context) *slog.Logger {
	if l, ok := c.App.Metadata[loggerKey].(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// render writes data in the format selected by --output.
func render(c *cli.Context, data any) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}
	return output.NewFormatter(format).Format(c.App.Writer, data)
}

func stderr(c *cli.Context) io.Writer {
	if c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return c.App.Writer
}

func requireArgs(c *cli.Context, n int, usage string) error {
	if c.NArg() < n {
		return cli.Exit(fmt.Sprintf("usage: %s %s", c.Command.FullName(), usage), 2)
	}
	return nil
}
