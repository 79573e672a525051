package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fieldsweep/internal/config"
	"fieldsweep/internal/farm"
	"fieldsweep/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./dev.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(2000)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	farms, err := farm.NewStore(cfg.Farms.Path)
	if err != nil {
		log.Fatalf("farm store init failed: %v", err)
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		log.Fatalf("runtime init failed: %v", err)
	}
	defer rt.Close()

	log.Printf("fieldsweep starting")
	log.Printf("web listen=%s physics=%dHz control=%dHz", cfg.Web.Listen, cfg.Sim.PhysicsHz, cfg.Sim.ControlHz)

	go func() {
		err := web.Serve(ctx, cfg.Web.Listen, rt.status, rt.api(), farms, rt.findings, logs)
		if err != nil && ctx.Err() == nil {
			log.Printf("web server stopped: %v", err)
			cancel()
		}
	}()

	rt.run(ctx)
	log.Printf("fieldsweep stopping")
}
