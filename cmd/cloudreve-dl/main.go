package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/handiism/cloudreve-downloader/internal/config"
	"github.com/handiism/cloudreve-downloader/internal/download"
	"github.com/handiism/cloudreve-downloader/internal/logging"
	"github.com/handiism/cloudreve-downloader/internal/model"
	"github.com/urfave/cli/v2"
)

const exitInterrupted = 130

func main() {
	app := &cli.App{
		Name:      "cloudreve-dl",
		Usage:     "Download every file of a Cloudreve share through aria2",
		ArgsUsage: "<share_url>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "download-root",
				Aliases: []string{"d"},
				Usage:   "Directory the share is mirrored into",
				Value:   config.DefaultSettings().DownloadRoot,
			},
			&cli.IntFlag{
				Name:    "max-concurrent-downloads",
				Aliases: []string{"n"},
				Usage:   "Number of files submitted to aria2 at the same time; also aria2's transfer limit when this tool starts aria2",
				Value:   config.DefaultSettings().MaxConcurrentDownloads,
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML settings file",
			},
			&cli.StringFlag{
				Name:  "cache-dir",
				Usage: "Directory holding cached share listings",
				Value: config.DefaultSettings().CacheDir,
			},
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "Ignore and overwrite the cached listing",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "List the share and resolve links without downloading",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Show debug output",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logging.NewConsole().Fatal(err)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		_ = cli.ShowAppHelp(c)
		return cli.Exit("exactly one share URL is required", 1)
	}
	shareURL := c.Args().First()

	settings, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	logger, closer := logging.New(settings.Log, os.Stderr)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := download.NewManager(settings, logging.EventHandler(logger))

	// Listing and link resolution do not need aria2.
	if !c.Bool("dry-run") {
		if err := manager.Open(ctx, shareURL); err != nil {
			if errors.Is(err, model.ErrInvalidShareURL) {
				return cli.Exit(err, 1)
			}
			logger.Fatal("aria2 is not available", "err", err)
		}
	}

	if err := manager.Initialize(ctx, shareURL); err != nil {
		return exitError(ctx, err)
	}

	if c.Bool("dry-run") {
		printPlan(c, manager)
		return nil
	}

	if err := manager.StartDownloads(ctx); err != nil {
		return exitError(ctx, err)
	}
	if ctx.Err() != nil {
		return cli.Exit("Download cancelled.", exitInterrupted)
	}

	received, total, filesReceived, filesTotal := manager.GetProgress()
	queued, failed := manager.GetDispatchStats()
	logger.Info("Complete",
		"files", fmt.Sprintf("%d/%d", filesReceived, filesTotal),
		"size", fmt.Sprintf("%s/%s", model.FormatSize(received), model.FormatSize(total)),
		"queued", queued,
		"failed", failed,
	)
	return nil
}

// loadSettings reads the config file, if any, and applies the flags the
// user set explicitly on top of it.
func loadSettings(c *cli.Context) (*config.Settings, error) {
	settings := config.DefaultSettings()
	if path := c.String("config"); path != "" {
		var err error
		settings, err = config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	if c.IsSet("download-root") {
		settings.DownloadRoot = c.String("download-root")
	}
	if c.IsSet("max-concurrent-downloads") {
		settings.MaxConcurrentDownloads = c.Int("max-concurrent-downloads")
	}
	if c.IsSet("cache-dir") {
		settings.CacheDir = c.String("cache-dir")
	}
	if c.Bool("refresh") {
		settings.RefreshCache = true
	}
	if c.Bool("verbose") {
		settings.Log.Verbose = true
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return settings, nil
}

func exitError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return cli.Exit("Download cancelled.", exitInterrupted)
	}
	return cli.Exit(err, 1)
}

func printPlan(c *cli.Context, manager *download.Manager) {
	files := manager.GetFiles()
	links := manager.GetLinks()
	w := c.App.Writer

	fmt.Fprintf(w, "[Dry run - not downloading] %s\n", manager.GetShare())
	for _, file := range files {
		mark := "ok"
		if links[file.Path] == "" {
			mark = "no link"
		}
		fmt.Fprintf(w, "%10s  %-7s  %s\n", model.FormatSize(file.Size), mark, file.Path)
	}
	fmt.Fprintf(w, "%d files, %s\n", len(files), model.FormatSize(model.TotalSize(files)))
}
