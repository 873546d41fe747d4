package main

import (
	"context"
	"errors"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/panel/pkg/bus"
	"github.com/odvcencio/panel/pkg/config"
	"github.com/odvcencio/panel/pkg/engine"
	"github.com/odvcencio/panel/pkg/ipc"
	"github.com/odvcencio/panel/pkg/layout"
	"github.com/odvcencio/panel/pkg/logging"
	"github.com/odvcencio/panel/pkg/panel"
	"github.com/odvcencio/panel/pkg/telemetry"
)

var loadConfigFn = config.Load

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return loadConfigFn()
}

func newLogger(cfg *config.Config, w io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLoggerWithOptions("panel", level, logging.Options{
		Format: logging.Format(cfg.Logging.Format),
		Writer: w,
	}), nil
}

// buildPanel loads the configured page and expands it. Every root starts
// hidden; the configured view is shown when the layout asks for it.
func buildPanel(cfg *config.Config, logger *logging.Logger) (*panel.Panel, string, error) {
	path := cfg.ResolveLayoutPath()
	roots, err := layout.LoadPage(path, cfg.Layout.Page)
	if err != nil {
		return nil, path, err
	}
	p, err := fromRoots(cfg, roots)
	if err != nil {
		return nil, path, err
	}
	logger.LayoutLoaded(path, cfg.Layout.Page, len(roots), p.Index.Len())
	return p, path, nil
}

func fromRoots(cfg *config.Config, roots []layout.Description) (*panel.Panel, error) {
	p, err := panel.Build(roots)
	if err != nil {
		return nil, err
	}
	if cfg.Layout.Show {
		if err := p.ShowInitial(cfg.Layout.View); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func busConfig(cfg *config.Config, logger *logging.Logger) bus.Config {
	return bus.Config{
		Driver:  bus.Driver(cfg.Bus.Driver),
		URL:     cfg.Bus.URL,
		Name:    cfg.Bus.Name,
		Timeout: cfg.Bus.Timeout,
		Logger:  logger,
	}
}

// serve runs the engine, the presentation server and the layout watcher
// until ctx is cancelled or one of them fails.
func serve(ctx context.Context, cfg *config.Config, p *panel.Panel, layoutPath string, logger *logging.Logger, traceOut io.Writer) error {
	tracer := telemetry.NoopTracer()
	if cfg.Tracing.Enabled {
		tp, err := telemetry.NewTracerProvider("panel", version, traceOut)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("trace shutdown failed", "error", err)
			}
		}()
		tracer = tp.Tracer()
	}

	b, err := bus.New(busConfig(cfg, logger))
	if err != nil {
		return err
	}
	defer b.Close()

	hub := telemetry.NewHub()
	defer hub.Close()

	eng := engine.New(p, b, engine.Options{
		Subjects: engine.Subjects{
			Display:  cfg.Bus.Subjects.Display,
			Request:  cfg.Bus.Subjects.Request,
			Response: cfg.Bus.Subjects.Response,
		},
		StartControl: cfg.Interaction.StartControl,
		BoundInput:   cfg.Interaction.BoundInput,
		Logger:       logger.Component("engine"),
		Hub:          hub,
		Tracer:       tracer,
	})
	defer eng.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	if err := eng.Start(gctx); err != nil {
		return err
	}

	logger.Info("panel started",
		"panel_id", eng.InstanceID(),
		"bus", cfg.Bus.Driver,
		"version", version,
	)

	if cfg.Server.Enabled {
		srv := ipc.NewServer(ipc.Config{
			BindAddress:     cfg.Server.Bind,
			AllowedOrigins:  cfg.Server.AllowedOrigins,
			ActivationRate:  cfg.Server.ActivationRate,
			ActivationBurst: cfg.Server.ActivationBurst,
			Version:         version,
		}, eng, hub, logger)
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	if cfg.Layout.Watch {
		reloader := &layoutReloader{cfg: cfg, engine: eng, hub: hub, path: layoutPath, logger: logger.Component("layout")}
		watcher := layout.NewWatcher(layoutPath, cfg.Layout.Page, func(roots []layout.Description) {
			reloader.reload(gctx, roots)
		}, reloader.fail)
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// layoutReloader swaps freshly built panels into a running engine. A bad
// document leaves the current panel in place.
type layoutReloader struct {
	cfg    *config.Config
	engine *engine.Engine
	hub    *telemetry.Hub
	path   string
	logger *logging.Logger
}

func (r *layoutReloader) reload(ctx context.Context, roots []layout.Description) {
	p, err := fromRoots(r.cfg, roots)
	if err == nil {
		err = r.engine.Replace(ctx, p)
	}
	if err != nil {
		r.fail(err)
		return
	}
	telemetry.ObserveReload(nil)
	r.logger.LayoutReloaded(r.path, p.Index.Len())
}

func (r *layoutReloader) fail(err error) {
	telemetry.ObserveReload(err)
	r.logger.Warn("layout reload failed", "path", r.path, "error", err)
	r.hub.Publish(telemetry.Event{
		Type:    telemetry.EventLayoutReloadFail,
		PanelID: r.engine.InstanceID(),
		Data:    map[string]any{"error": err.Error()},
	})
}
