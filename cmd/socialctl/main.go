// Command socialctl is the operator CLI: create the schema, ingest or sweep by hand and inspect
// history and leaderboards. Results are printed to stdout as JSON; logs go to stderr.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newApp().Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func platformFlag() cli.Flag {
	return &cli.StringFlag{Name: "platform", Aliases: []string{"p"}, Usage: "instagram or tiktok", Required: true}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "socialctl",
		Usage: "Operate the social analytics store",
		Commands: []*cli.Command{
			{
				Name:  "schema",
				Usage: "Create every platform's tables and indexes",
				Action: func(ctx context.Context, c *cli.Command) error {
					e, err := openEnv(ctx, true)
					if err != nil {
						return err
					}
					defer e.Close()
					return printJSON(os.Stdout, map[string]interface{}{"status": "ok", "platforms": social.Platforms()})
				},
			},
			{
				Name:  "ingest",
				Usage: "Ingest a snapshot file",
				Flags: []cli.Flag{
					platformFlag(),
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "snapshot CSV path", Required: true},
					&cli.BoolFlag{Name: "sweep", Usage: "Run the retention sweep after ingesting"},
					&cli.IntFlag{Name: "horizon-days", Usage: "Retention horizon for --sweep", Value: social.DefaultHorizonDays},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					e, err := openEnv(ctx, true)
					if err != nil {
						return err
					}
					defer e.Close()
					store, err := e.store(c.String("platform"))
					if err != nil {
						return err
					}
					opts := ingestOptions{File: c.String("file")}
					if c.Bool("sweep") {
						opts.HorizonDays = c.Int("horizon-days")
					}
					return runIngest(ctx, os.Stdout, e, store, opts)
				},
			},
			{
				Name:  "sweep",
				Usage: "Delete observations older than the retention horizon",
				Flags: []cli.Flag{
					platformFlag(),
					&cli.IntFlag{Name: "horizon-days", Usage: "Retention horizon in days", Value: social.DefaultHorizonDays},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					e, err := openEnv(ctx, false)
					if err != nil {
						return err
					}
					defer e.Close()
					store, err := e.store(c.String("platform"))
					if err != nil {
						return err
					}
					return runSweep(ctx, os.Stdout, store, c.Int("horizon-days"))
				},
			},
			{
				Name:  "history",
				Usage: "Print an account's history",
				Flags: []cli.Flag{platformFlag()},
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "username", UsageText: "username"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					e, err := openEnv(ctx, false)
					if err != nil {
						return err
					}
					defer e.Close()
					store, err := e.store(c.String("platform"))
					if err != nil {
						return err
					}
					return runHistory(ctx, os.Stdout, store, c.StringArg("username"))
				},
			},
			{
				Name:  "leaderboard",
				Usage: "Print one leaderboard page",
				Flags: []cli.Flag{
					platformFlag(),
					&cli.IntFlag{Name: "page", Value: 1},
					&cli.IntFlag{Name: "per-page", Value: social.DefaultPerPage},
					&cli.StringFlag{Name: "sort", Usage: "e.g. followers_7d (default rank_today)"},
					&cli.StringFlag{Name: "order", Usage: "asc or desc"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					e, err := openEnv(ctx, false)
					if err != nil {
						return err
					}
					defer e.Close()
					store, err := e.store(c.String("platform"))
					if err != nil {
						return err
					}
					return runLeaderboard(ctx, os.Stdout, store, social.LeaderboardQuery{
						Page:    c.Int("page"),
						PerPage: c.Int("per-page"),
						Sort:    c.String("sort"),
						Order:   c.String("order"),
					})
				},
			},
		},
	}
}
