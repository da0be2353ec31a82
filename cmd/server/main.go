// Command server runs the fingerprint verification HTTP service.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/high-horse/fingerprint-server/internal/config"
	"github.com/high-horse/fingerprint-server/internal/logging"
	"github.com/high-horse/fingerprint-server/internal/metrics"
	"github.com/high-horse/fingerprint-server/internal/preprocess"
	"github.com/high-horse/fingerprint-server/internal/server"
	"github.com/high-horse/fingerprint-server/internal/template"
	"github.com/high-horse/fingerprint-server/internal/verify"
)

// templateStore keeps template versions and their prepared features.
type templateStore interface {
	template.Store
	verify.TemplateStore
}

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	logOut, logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer logCloser.Close()

	var store templateStore = template.NewMemoryStore()
	if cfg.Templates.Dir != "" {
		fs, err := template.NewFileStore(cfg.Templates.Dir)
		if err != nil {
			log.Fatal(err)
		}
		store = fs
	}

	rec := metrics.NewRecorder()
	opts := verify.OptionsFrom(cfg.Matching)
	opts.Observer = rec
	opts.Templates = store
	if cfg.Debug.Enabled {
		sink, err := preprocess.NewDirSink(cfg.Debug.Dir)
		if err != nil {
			log.Fatal(err)
		}
		opts.Sink = sink
		log.Printf("writing preprocessing snapshots to %s", cfg.Debug.Dir)
	}

	srv := server.New(verify.New(opts), store, server.Options{
		Config:    cfg.Server,
		LogOutput: logOut,
		Metrics:   rec.Handler(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		log.Printf("server: %v", err)
		os.Exit(1)
	}
}
