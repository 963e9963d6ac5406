package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/memkv/internal/storage/snapshot"
)

// ListCommand lists the snapshots a server keeps in a directory.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List snapshots in a directory, oldest first",
		ArgsUsage: "DIR",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "Snapshot file name prefix",
				Value: snapshot.DefaultPrefix,
			},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 1, "DIR"); err != nil {
				return err
			}
			cfg := snapshot.DefaultConfig(c.Args().First())
			cfg.Prefix = c.String("prefix")
			cfg.Logger = loggerFrom(c)
			mgr, err := snapshot.NewManager(cfg)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			infos, err := mgr.List()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if infos == nil {
				infos = []*snapshot.Info{}
			}
			return render(c, infos)
		},
	}
}
