package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Qhaleed/ADZU-CHAT/internal/filter"
	"github.com/Qhaleed/ADZU-CHAT/internal/relay"
	"github.com/Qhaleed/ADZU-CHAT/internal/server"
)

func main() {
	fmt.Println("Starting ADZU chat relay...")

	cfg := server.NewConfigFromEnv()
	server.SetConfig(cfg)

	svc := relay.NewService(relay.Options{
		Filter:         filter.New(),
		HistoryLimit:   cfg.HistoryLimit,
		ReplayLimit:    cfg.ReplayLimit,
		StandbyTimeout: cfg.StandbyTimeout,
		StandbyTick:    cfg.StandbyReapInterval,
		CountInterval:  cfg.UserCountInterval,
	})
	svc.Start()

	srv := server.NewServer(svc)
	httpServer := server.CreateServer(cfg.Port, srv.SetupRoutes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-stop:
		log.Printf("Received signal %s, shutting down", sig)
	}

	if err := server.ShutdownServer(httpServer, 10*time.Second); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
	svc.Stop()
}
