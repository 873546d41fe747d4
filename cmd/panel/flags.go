package main

import (
	"flag"
	"strings"

	"github.com/odvcencio/panel/pkg/config"
)

// flagOverrides holds command-line values that win over config files and
// environment. Only flags the user actually set are applied.
type flagOverrides struct {
	layoutPath string
	page       string
	view       string
	watch      bool
	busDriver  string
	natsURL    string
	bind       string
	noServer   bool
	logLevel   string
	logFormat  string
	trace      bool
}

func (o *flagOverrides) register(fs *flag.FlagSet) {
	fs.StringVar(&o.layoutPath, "layout", "", "layout document (JSON or YAML)")
	fs.StringVar(&o.page, "page", "", "page key expanded from the layout document")
	fs.StringVar(&o.view, "view", "", "view shown at startup")
	fs.BoolVar(&o.watch, "watch", false, "reload the layout when the file changes")
	fs.StringVar(&o.busDriver, "bus", "", "message bus driver (memory|nats)")
	fs.StringVar(&o.natsURL, "nats-url", "", "NATS server URL")
	fs.StringVar(&o.bind, "bind", "", "address for the HTTP/websocket server")
	fs.BoolVar(&o.noServer, "no-server", false, "do not start the HTTP/websocket server")
	fs.StringVar(&o.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	fs.StringVar(&o.logFormat, "log-format", "", "log format (json|text)")
	fs.BoolVar(&o.trace, "trace", false, "write a span per engine command to stderr")
}

func (o *flagOverrides) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "layout":
			cfg.Layout.Path = strings.TrimSpace(o.layoutPath)
		case "page":
			cfg.Layout.Page = strings.TrimSpace(o.page)
		case "view":
			cfg.Layout.View = strings.TrimSpace(o.view)
			cfg.Layout.Show = cfg.Layout.View != ""
		case "watch":
			cfg.Layout.Watch = o.watch
		case "bus":
			cfg.Bus.Driver = strings.ToLower(strings.TrimSpace(o.busDriver))
		case "nats-url":
			cfg.Bus.URL = strings.TrimSpace(o.natsURL)
		case "bind":
			cfg.Server.Bind = strings.TrimSpace(o.bind)
		case "no-server":
			cfg.Server.Enabled = !o.noServer
		case "log-level":
			cfg.Logging.Level = strings.TrimSpace(o.logLevel)
		case "log-format":
			cfg.Logging.Format = strings.ToLower(strings.TrimSpace(o.logFormat))
		case "trace":
			cfg.Tracing.Enabled = o.trace
		}
	})
}
