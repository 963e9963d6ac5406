package command

import (
	"context"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memkv/internal/storage/archive"
)

// openArchive connects to the bucket. Tests replace it.
var openArchive = archive.New

// ArchiveCommand inspects and fetches snapshots from the archive bucket.
func ArchiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "archive",
		Usage: "Inspect archived snapshots",
		Flags: archiveFlags(),
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List archived snapshots, oldest first",
				Action: runArchiveList,
			},
			{
				Name:      "fetch",
				Usage:     "Download an archived snapshot",
				ArgsUsage: "NAME [DEST]",
				Action:    runArchiveFetch,
			},
		},
	}
}

func archiveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "endpoint", EnvVars: []string{"MEMKV_ARCHIVE_ENDPOINT"}, Usage: "S3 endpoint (host:port)"},
		&cli.StringFlag{Name: "bucket", EnvVars: []string{"MEMKV_ARCHIVE_BUCKET"}, Required: true},
		&cli.StringFlag{Name: "prefix", EnvVars: []string{"MEMKV_ARCHIVE_PREFIX"}, Usage: "Object name prefix"},
		&cli.StringFlag{Name: "access-key", EnvVars: []string{"MEMKV_ARCHIVE_ACCESS_KEY"}},
		&cli.StringFlag{Name: "secret-key", EnvVars: []string{"MEMKV_ARCHIVE_SECRET_KEY"}},
		&cli.StringFlag{Name: "region", EnvVars: []string{"MEMKV_ARCHIVE_REGION"}},
		&cli.BoolFlag{Name: "secure", EnvVars: []string{"MEMKV_ARCHIVE_SECURE"}, Usage: "Use TLS"},
		&cli.StringFlag{Name: "ca-file", EnvVars: []string{"MEMKV_ARCHIVE_CA_FILE"}, Usage: "PEM bundle trusted in addition to the system roots"},
	}
}

type archivedSnapshot struct {
	Name string `json:"name"`
}

func withArchive(c *cli.Context, fn func(ctx context.Context, u *archive.Uploader) error) error {
	u, err := openArchive(archive.Config{
		Endpoint:  c.String("endpoint"),
		Bucket:    c.String("bucket"),
		Prefix:    c.String("prefix"),
		AccessKey: c.String("access-key"),
		SecretKey: c.String("secret-key"),
		Region:    c.String("region"),
		Secure:    c.Bool("secure"),
		CAFile:    c.String("ca-file"),
		Logger:    loggerFrom(c),
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer u.Close(context.Background())
	if err := fn(c.Context, u); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

func runArchiveList(c *cli.Context) error {
	return withArchive(c, func(ctx context.Context, u *archive.Uploader) error {
		names, err := u.List(ctx)
		if err != nil {
			return err
		}
		rows := make([]archivedSnapshot, len(names))
		for i, n := range names {
			rows[i] = archivedSnapshot{Name: n}
		}
		return render(c, rows)
	})
}

func runArchiveFetch(c *cli.Context) error {
	if err := requireArgs(c, 1, "NAME [DEST]"); err != nil {
		return err
	}
	name := c.Args().Get(0)
	dest := c.Args().Get(1)
	if dest == "" {
		dest = filepath.Base(name)
	}
	return withArchive(c, func(ctx context.Context, u *archive.Uploader) error {
		if err := u.Download(ctx, name, dest); err != nil {
			return err
		}
		return render(c, map[string]string{"name": name, "path": dest})
	})
}
