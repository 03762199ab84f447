package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"duedil/internal/config"
	"duedil/internal/stubserver"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	stub := stubserver.New(stubserver.WithLogger(log))
	id := stub.SeedCompany("Edda Analytics", "https://www.edda.example")
	log.Info("seeded demo company", "id", id)

	r := chi.NewRouter()
	r.Mount("/", stub.Router())

	errCh := make(chan error, 1)
	go func() { errCh <- http.ListenAndServe(cfg.ListenAddr, r) }()
	log.Info("stub backend listening", "addr", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
		time.Sleep(300 * time.Millisecond)
	case err := <-errCh:
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
