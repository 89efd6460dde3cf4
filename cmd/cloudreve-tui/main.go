package main

import (
	"fmt"
	"os"

	"github.com/handiism/cloudreve-downloader/internal/config"
	"github.com/handiism/cloudreve-downloader/internal/tui"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:      "cloudreve-tui",
		Usage:     "Interactive Cloudreve share downloader",
		ArgsUsage: "[share_url]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML settings file",
			},
		},
		Action: func(c *cli.Context) error {
			settings := config.DefaultSettings()
			if path := c.String("config"); path != "" {
				var err error
				if settings, err = config.Load(path); err != nil {
					return fmt.Errorf("error loading config: %w", err)
				}
			}
			return tui.Run(settings, c.Args().First())
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
