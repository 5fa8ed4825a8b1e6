package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/app"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/domain"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Bootstrap(ctx, *configPath, domain.NopNotifier{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "bootstrap failed:", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Log.Info("execution core running, press Ctrl+C to exit")
	a.Run(ctx)
	a.Log.Info("shutting down")
}
