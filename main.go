package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"soundry/cmd"
	"soundry/config"
	"soundry/services"
	"soundry/types"
)

func main() {
	var (
		target string
		source string
		format string
		server bool
		sweep  bool
		port   int
	)

	flag.StringVar(&target, "url", "", "URL to fetch into the download directory")
	flag.StringVar(&source, "source", string(types.JobSourceSpotify), "Source for -url: spotify, youtube or soundcloud")
	flag.StringVar(&format, "format", "mp3", "Audio format for -url")
	flag.BoolVar(&server, "server", false, "Start in web server mode")
	flag.BoolVar(&sweep, "sweep", false, "Run one retention sweep and exit")
	flag.IntVar(&port, "port", 0, "Port for web server mode (overrides SERVER_PORT)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if port != 0 {
		cfg.Port = port
	}

	// Server mode takes precedence
	if server {
		cmd.StartWebServer(cfg)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case sweep:
		runSweep(ctx, cfg)
	case target != "":
		if err := fetch(ctx, cfg, types.JobSource(source), target, format); err != nil {
			log.Fatalf("Fetch failed: %v", err)
		}
	default:
		flag.Usage()
	}
}

func runSweep(ctx context.Context, cfg *config.Config) {
	root, err := services.NewRoot(cfg.DownloadDir)
	if err != nil {
		log.Fatalf("Invalid download directory: %v", err)
	}
	report := services.NewJanitor(root, cfg.RetentionMaxAge, cfg.SweepInterval, log.Default()).Sweep(ctx)
	fmt.Printf("Scanned %d, deleted %d, already gone %d, errors %d\n",
		report.Scanned, report.Deleted, report.AlreadyGone, report.Errors)
}

// fetch runs a single job in the foreground with a spinner on stderr
func fetch(ctx context.Context, cfg *config.Config, source types.JobSource, target, format string) error {
	root, err := services.NewRoot(cfg.DownloadDir)
	if err != nil {
		return err
	}
	fetcher, err := services.NewFetcher(source, services.Tools{Spotdl: cfg.SpotdlPath, Ytdlp: cfg.YtdlpPath})
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(fmt.Sprintf("Fetching %s...", target)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bar.Add(1)
			}
		}
	}()

	runner := services.NewRunner(root, cfg.JobTimeout, cfg.SearchTimeout)
	result := runner.Run(ctx, fetcher, target, format, nil)
	close(done)
	bar.Finish()

	if result.Err != nil {
		if result.Diagnostic != "" {
			fmt.Fprintln(os.Stderr, result.Diagnostic)
		}
		return result.Err
	}
	fmt.Printf("Fetched %d file(s) into %s, first: %s\n", len(result.Produced), root.Dir(), result.FirstArtifact)
	return nil
}
