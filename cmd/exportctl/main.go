package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env is optional
	_ = godotenv.Load()

	configFlag := &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to configuration file",
		Value:   "configs/worker-service/config.yaml",
		Sources: cli.EnvVars("EXPORTCTL_CONFIG_PATH"),
	}

	shapingFlags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "filter",
			Usage: "Filter as key=value, repeatable",
		},
		&cli.StringSliceFlag{
			Name:  "column",
			Usage: "Output column, repeatable, in output order",
		},
		&cli.StringFlag{
			Name:  "sort",
			Usage: "Sort as key[:asc|desc]",
		},
		&cli.StringFlag{
			Name:  "format",
			Usage: "Artifact format (xlsx/csv)",
		},
	}

	app := &cli.Command{
		Name:  "exportctl",
		Usage: "Operator tool for the report export pipeline",
		Commands: []*cli.Command{
			{
				Name:  "publish",
				Usage: "Enqueue an export job",
				Flags: append([]cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:     "type",
						Usage:    "Export type, e.g. category",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "requested-by",
						Usage: "Requester recorded on the job",
						Value: "exportctl",
					},
				}, shapingFlags...),
				Action: publishAction,
			},
			{
				Name:  "render",
				Usage: "Build a category export locally against PostgreSQL",
				Flags: append([]cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  "out",
						Usage: "Output directory (defaults to exports.dir)",
					},
				}, shapingFlags...),
				Action: renderAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
