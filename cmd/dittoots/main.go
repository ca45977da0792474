package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/config"
	"github.com/marmos91/dittoots/pkg/server"
	"github.com/marmos91/dittoots/pkg/store/content/cache"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

const usage = `DittoOTS - Object Transfer Service server

Usage:
  dittoots <command> [flags]

Commands:
  init      Write a default configuration file
  start     Start the server
  version   Print the version

Run 'dittoots <command> -h' for the flags of a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "start":
		err = runStart(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("dittoots %s\n", version)
	case "help", "--help", "-h":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "Where to write the config file (default: "+config.GetDefaultConfigPath()+")")
	force := fs.Bool("force", false, "Overwrite an existing config file")
	_ = fs.Parse(args)

	path := *configPath
	if path == "" {
		var err error
		if path, err = config.InitConfig(*force); err != nil {
			return err
		}
	} else if err := config.InitConfigToPath(path, *force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := fs.String("log-level", "", "Override logging.level (DEBUG, INFO, WARN, ERROR)")
	port := fs.Int("port", 0, "Override adapters.tcp.port")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// CLI flags take precedence over file and environment
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *port != 0 {
		cfg.Adapters.TCP.Port = *port
	}

	if err := config.ConfigureLogging(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("DittoOTS %s starting", version)
	return run(ctx, cfg)
}

// run wires every component described by cfg and serves until ctx is
// cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	m := config.InitializeMetrics(cfg)

	cs, err := config.CreateContentStore(ctx, &cfg.Content, m)
	if err != nil {
		return err
	}
	if bs, ok := cs.(*cache.BufferedStore); ok {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := bs.Close(flushCtx); err != nil {
				logger.Error("Failed to flush write buffer: %v", err)
			}
		}()
	}

	cat, err := config.CreateCatalog(ctx, &cfg.Catalog)
	if err != nil {
		return err
	}
	defer func() {
		if err := cat.Close(); err != nil {
			logger.Error("Failed to close catalog: %v", err)
		}
	}()
	logger.Info("Content store: %s, catalog: %s", cfg.Content.Type, cfg.Catalog.Type)

	e, err := config.CreateEngine(ctx, cfg, cs, cat, m.OTS)
	if err != nil {
		return err
	}

	srv := server.New(e, server.WithShutdownTimeout(cfg.Server.ShutdownTimeout))

	adapters, err := config.CreateAdapters(cfg, m.TCP)
	if err != nil {
		return err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
	}

	if m.Server != nil {
		if err := srv.AddService("metrics", server.ServiceFunc(m.Server.Start)); err != nil {
			return err
		}
	}

	if cfg.GC.Enabled {
		collector, err := config.CreateCollector(cfg, e, cs)
		if err != nil {
			return err
		}
		if err := srv.AddService("gc", collector); err != nil {
			return err
		}
	}

	im, err := config.CreateImporter(cfg, e)
	if err != nil {
		return err
	}
	if im != nil {
		if err := srv.AddService("importer", im); err != nil {
			return err
		}
	}

	return srv.Serve(ctx)
}
