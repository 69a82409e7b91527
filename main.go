package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/fpds-ingest/internal/db"
	"github.com/dtnitsch/fpds-ingest/internal/ingest"
	"github.com/dtnitsch/fpds-ingest/pkg/help"
)

func main() {
	globalFlags := []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "YAML config file"},
		&cli.StringFlag{Name: "db", Usage: "Database DSN: SQLite path or postgres:// URL", EnvVars: []string{"FPDS_DB_DSN"}},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Only log errors"},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Debug logging"},
		&cli.StringFlag{Name: "metrics-addr", Usage: "Serve expvar metrics on this address"},
	}

	dayFlags := []cli.Flag{
		&cli.StringFlag{Name: "start-date", Usage: "First day (YYYY-MM-DD)"},
		&cli.StringFlag{Name: "end-date", Usage: "Last day (YYYY-MM-DD, default start-date)"},
	}

	app := &cli.App{
		Name:   "fpds-ingest",
		Usage:  "Ingest the FPDS ATOM feed into a relational warehouse",
		Flags:  append(globalFlags, ingest.Flags...),
		Action: ingest.IngestAction,
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show job tracker state",
				Action: db.StatusAction,
			},
			{
				Name:   "counts",
				Usage:  "Show row counts per table",
				Action: db.CountsAction,
			},
			{
				Name:   "days",
				Usage:  "Show stored actions per day and gap-fill offsets",
				Flags:  dayFlags,
				Action: db.DaysAction,
			},
			{
				Name:   "migrate",
				Usage:  "Create or upgrade the schema",
				Action: db.MigrateAction,
			},
			{
				Name:  "coldstart",
				Usage: "Print a quick start guide",
				Action: func(c *cli.Context) error {
					fmt.Print(help.ColdstartYAML)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
