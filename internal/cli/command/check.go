package command

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memkv/internal/cli/output"
	"github.com/yndnr/memkv/internal/keyspace"
	"github.com/yndnr/memkv/internal/object"
	"github.com/yndnr/memkv/internal/storage/snapshot"
)

// CheckResult is the outcome of checking one file.
type CheckResult struct {
	File           string            `json:"file"`
	OK             bool              `json:"ok"`
	Version        int               `json:"version"`
	Keys           int               `json:"keys"`
	Expires        int               `json:"expires"`
	ExpiredSkipped int               `json:"expired_skipped"`
	ModuleAux      int               `json:"module_aux"`
	Types          map[string]int    `json:"types,omitempty"`
	Checksum       string            `json:"checksum"`
	Aux            map[string]string `json:"aux,omitempty" table:"-"`
	Errors         []string          `json:"errors,omitempty"`
}

func decoderFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "databases",
			Usage: "Number of logical databases to accept",
			Value: keyspace.DefaultDatabases,
		},
		&cli.StringFlag{
			Name:  "policy",
			Usage: "Eviction policy deciding which access metadata is kept",
			Value: object.PolicyNoEviction.String(),
		},
		&cli.BoolFlag{
			Name:  "replica",
			Usage: "Keep keys whose expiry already passed",
		},
		&cli.BoolFlag{
			Name:  "progress",
			Usage: "Draw a progress bar on stderr",
		},
	}
}

// CheckCommand verifies snapshot files in check mode, reporting every
// problem instead of stopping at the first.
func CheckCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Verify one or more snapshot files",
		ArgsUsage: "FILE...",
		Flags:     decoderFlags(),
		Action:    runCheck,
	}
}

func runCheck(c *cli.Context) error {
	if err := requireArgs(c, 1, "FILE..."); err != nil {
		return err
	}

	var results []*CheckResult
	failed := 0
	for _, path := range c.Args().Slice() {
		res, err := checkFile(c, path)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		if !res.OK {
			failed++
		}
		results = append(results, res)
	}

	var data any = results
	if len(results) == 1 {
		data = results[0]
	}
	if err := render(c, data); err != nil {
		return err
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d snapshots have errors", failed, len(results)), 1)
	}
	return nil
}

func checkFile(c *cli.Context, path string) (*CheckResult, error) {
	cfg, bar, err := managerConfig(c, path)
	if err != nil {
		return nil, err
	}
	mgr, err := snapshot.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	report, err := mgr.CheckFile(path, keyspace.New(c.Int("databases")))
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return nil, err
	}

	res := &CheckResult{
		File:           path,
		OK:             len(report.Errors) == 0,
		Version:        report.Version,
		Keys:           report.Keys,
		Expires:        report.Expires,
		ExpiredSkipped: report.ExpiredSkipped,
		ModuleAux:      report.ModuleAux,
		Types:          report.Types,
		Checksum:       fmt.Sprintf("%016x", report.Checksum),
		Aux:            report.Aux,
	}
	for _, e := range report.Errors {
		res.Errors = append(res.Errors, e.Error())
	}
	return res, nil
}

// managerConfig builds a snapshot manager rooted at the directory of path
// with the decoder options given on the command line.
func managerConfig(c *cli.Context, path string) (snapshot.Config, *output.ProgressBar, error) {
	st, err := os.Stat(path)
	if err != nil {
		return snapshot.Config{}, nil, err
	}
	policy, err := object.ParseEvictionPolicy(c.String("policy"))
	if err != nil {
		return snapshot.Config{}, nil, err
	}

	log := loggerFrom(c)
	cfg := snapshot.DefaultConfig(filepath.Dir(path))
	cfg.Logger = log
	cfg.RDB.Logger = log
	cfg.RDB.Policy = policy
	cfg.RDB.Replica = c.Bool("replica")

	var bar *output.ProgressBar
	if c.Bool("progress") {
		bar = output.NewProgressBar(stderr(c), filepath.Base(path), st.Size())
		cfg.RDB.Progress = bar.Update
	}
	return cfg, bar, nil
}
