// Package main is the entry point for the cocoa bot.
//
// The bot answers the cocoa command on Discord and counts, per member, how
// often the cocoa pattern shows up in chat. Counters live in a flat table
// file under the data directory. Configuration is read from a TOML file and
// the COCOA_* environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"runtime/debug"
	"sync"
	"syscall"

	"github.com/ASHISH26940/cocoabot/internal/bot"
	"github.com/ASHISH26940/cocoabot/internal/config"
	"github.com/ASHISH26940/cocoabot/internal/server"
	"github.com/ASHISH26940/cocoabot/internal/store"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "cocoabot: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	// --- Configuration and Flags ---
	configFile := flag.String("config", "cocoabot.toml", "Path to config file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}
	if *version {
		printVersion()
		return nil
	}

	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})

	cfg := config.New()
	if err := cfg.Load(*configFile); err != nil {
		// The default file is optional; the environment may carry everything.
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	ll := &slog.LevelVar{}
	if err := ll.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})).With("session", uuid.NewString())
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	intents, err := bot.ParseIntents(cfg.Intents)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	pattern := regexp.MustCompile(cfg.Pattern)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Member Table ---
	tablePath := cfg.TablePath()
	table, err := store.Open(tablePath)
	if err != nil {
		return fmt.Errorf("failed to open member table: %w", err)
	}
	size, _ := table.Size()
	slog.Info("member table loaded", "path", tablePath, "rows", size)
	defer func() {
		if err := table.Close(); err != nil {
			slog.Error("failed to close member table", "path", tablePath, "err", err)
			return
		}
		slog.Info("member table saved", "path", tablePath)
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(1)
	go func() {
		defer wg.Done()
		bot.RunFlusher(ctx, cfg.FlushInterval.Duration, table)
	}()

	// --- Status Server ---
	if cfg.StatusAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("starting status server", "addr", cfg.StatusAddr)
			if err := server.ListenAndServe(ctx, cfg.StatusAddr, server.New(table)); err != nil {
				slog.Error("status server failed", "err", err)
			}
		}()
	}

	// --- Bot ---
	b := bot.New(cfg.Token, intents, bot.NewCocoaListener(table, cfg.Command, cfg.Reply, pattern))
	b.SetReplyRate(cfg.RepliesPerSecond)
	if err := b.Start(ctx); err != nil {
		stop()
		return fmt.Errorf("bot failed to log in: %w", err)
	}
	slog.Info("cocoabot running, press Ctrl+C to stop")

	<-ctx.Done()
	slog.Info("shutting down")
	if err := b.Stop(); err != nil {
		slog.Error("failed to close gateway session", "err", err)
	}
	return nil
}

func printVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		fmt.Println("cocoabot (unknown version)")
		return
	}
	fmt.Printf("cocoabot %s %s\n", info.Main.Version, info.GoVersion)
}
