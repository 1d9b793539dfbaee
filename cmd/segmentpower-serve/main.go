package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lucasjlepore/segment-power/config"
	"github.com/lucasjlepore/segment-power/internal/log"
	"github.com/lucasjlepore/segment-power/server"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.CommandLine
	config.AddFlags(fs)
	fs.String("listen", ":8080", "Address to listen on")
	fs.Bool("clamp", false, "Clamp out-of-range improvement requests instead of rejecting them")
	pflag.Parse()

	configPath, _ := fs.GetString("config")
	cfg, err := config.Load(configPath, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "segmentpower-serve: %v\n", err)
		os.Exit(1)
	}
	if err := log.Init(log.Options{
		Debug:      cfg.Log.Debug,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "segmentpower-serve: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	h, err := cfg.Handler()
	if err != nil {
		log.Fatalf("build handler: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg.Server.ListenAddr, h, log.GetSugaredLogger())
	if err := srv.Run(ctx); err != nil {
		log.Errorf("server stopped: %v", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
