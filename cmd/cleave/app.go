package main

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cleave/internal/config"
	"github.com/pithecene-io/cleave/internal/job"
	"github.com/pithecene-io/cleave/internal/logging"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "cleave",
		Usage: "Partition record datasets into disjoint splits",
		Description: `
Reads a table (JSONL, CSV or Parquet), splits it either uniformly at random or
stratified by a category column, and exports one file per split plus a manifest:

  cleave --config job.yaml stratify
  cleave --config job.yaml split --seed 42
  cleave --config job.yaml inspect <run-id>`[1:],
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "path to a YAML job file.",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level (trace, debug, info, warn, error, none).",
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "override output.root for the fs store.",
			},
		},
		Commands: []*cli.Command{
			stratifyCommand(),
			splitCommand(),
			inspectCommand(),
		},
	}
}

func stratifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "stratify",
		Usage: "Split every category of a column across the configured fractions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "column",
				Usage: "override stratify.column.",
			},
			&cli.Float64SliceFlag{
				Name:  "fractions",
				Usage: "override stratify.fractions, e.g. --fractions 0.7,0.2,0.1.",
			},
		},
		Action: func(c *cli.Context) error {
			r, err := newRunner(c, func(cfg *config.Config) {
				if col := c.String("column"); col != "" {
					cfg.Stratify.Column = col
				}
				if fr := c.Float64Slice("fractions"); len(fr) > 0 {
					cfg.Stratify.Fractions = fr
				}
			})
			if err != nil {
				return err
			}
			m, err := r.RunStratify(c.Context)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, m.RunID)
			return err
		},
	}
}

func splitCommand() *cli.Command {
	return &cli.Command{
		Name:  "split",
		Usage: "Shuffle rows into splits of the configured lengths or fractions",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:  "seed",
				Usage: "override split.seed for a reproducible permutation.",
			},
		},
		Action: func(c *cli.Context) error {
			r, err := newRunner(c, func(cfg *config.Config) {
				if c.IsSet("seed") {
					seed := c.Uint64("seed")
					cfg.Split.Seed = &seed
				}
			})
			if err != nil {
				return err
			}
			m, err := r.RunSplit(c.Context)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, m.RunID)
			return err
		},
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the manifest of a run (the newest run when no ID is given)",
		ArgsUsage: "[run-id]",
		Action: func(c *cli.Context) error {
			r, err := newRunner(c, nil)
			if err != nil {
				return err
			}
			m, err := r.Inspect(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(m, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, string(data))
			return err
		},
	}
}

// newRunner loads the job file, applies global flags and then override.
func newRunner(c *cli.Context, override func(*config.Config)) (*job.Runner, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = strings.ToLower(lvl)
	}
	if out := c.String("out"); out != "" {
		cfg.Output.Root = out
	}
	if override != nil {
		override(cfg)
	}

	log, err := logging.New(c.App.ErrWriter, cfg.Logging)
	if err != nil {
		return nil, err
	}
	return job.NewRunner(c.Context, cfg, log)
}
