package command

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memkv/internal/keyspace"
	"github.com/yndnr/memkv/internal/storage/aof"
	"github.com/yndnr/memkv/internal/storage/rdb"
	"github.com/yndnr/memkv/internal/storage/snapshot"
)

// DumpCommand loads a snapshot and writes it as append-only file
// commands.
func DumpCommand() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "Rewrite a snapshot as append-only file commands",
		ArgsUsage: "FILE",
		Flags: append(decoderFlags(),
			&cli.StringFlag{
				Name:  "out",
				Usage: "Write commands to this file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "keep-expired",
				Usage: "Also write keys whose expiry already passed",
			},
		),
		Action: runDump,
	}
}

func runDump(c *cli.Context) error {
	if err := requireArgs(c, 1, "FILE"); err != nil {
		return err
	}
	path := c.Args().First()

	cfg, bar, err := managerConfig(c, path)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	// Expired keys must survive loading to be written with --keep-expired.
	cfg.RDB.Replica = cfg.RDB.Replica || c.Bool("keep-expired")
	mgr, err := snapshot.NewManager(cfg)
	if err != nil {
		return err
	}

	ks := keyspace.New(c.Int("databases"))
	_, _, err = mgr.LoadFile(path, ks, rdb.NewSaveInfo())
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("load %s: %v", path, err), 1)
	}

	var w io.Writer = c.App.Writer
	if out := c.String("out"); out != "" {
		f, err := os.Create(out)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		defer f.Close()
		w = f
	}

	stats, err := aof.Rewrite(w, ks, aof.Options{KeepExpired: c.Bool("keep-expired")})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if c.String("out") != "" {
		return render(c, stats)
	}
	loggerFrom(c).Info("dump written", "keys", stats.Keys, "bytes", stats.Bytes, "skipped", stats.Skipped)
	return nil
}
