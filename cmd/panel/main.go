// Command panel renders a layout description into a panel and drives it
// from display and request commands received over a message bus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "panel: %v\n", err)
		os.Exit(exitCodeForError(err))
	}
}

type options struct {
	configPath string
	check      bool
	showVer    bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("panel", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	var overrides flagOverrides
	fs.StringVar(&opts.configPath, "config", "", "path to a config file (default: ~/.panel and ./.panel layering)")
	fs.BoolVar(&opts.check, "check", false, "load and build the layout, print a summary and exit")
	fs.BoolVar(&opts.showVer, "version", false, "print version and exit")
	overrides.register(fs)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return withExitCode(err, exitSetup)
	}
	if opts.showVer {
		fmt.Fprintf(stdout, "panel %s\n", version)
		return nil
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return withExitCode(err, exitSetup)
	}
	overrides.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return withExitCode(err, exitSetup)
	}

	logger, err := newLogger(cfg, stderr)
	if err != nil {
		return withExitCode(err, exitSetup)
	}
	for _, warning := range cfg.ValidationWarnings() {
		logger.Warn("config warning", "detail", warning)
	}

	p, layoutPath, err := buildPanel(cfg, logger)
	if err != nil {
		return withExitCode(err, exitSetup)
	}

	if opts.check {
		snap := p.Snapshot()
		fmt.Fprintf(stdout, "%s: page %q, %d views, %d nodes\n", layoutPath, cfg.Layout.Page, len(snap.Views), p.Index.Len())
		return nil
	}

	return serve(ctx, cfg, p, layoutPath, logger, stderr)
}
