package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledzpl/valence/internal/relay"
	"github.com/ledzpl/valence/pkg/sshserver"
)

const shutdownTimeout = 5 * time.Second

func main() {
	addr := flag.String("addr", ":8080", "HTTP address for the WebSocket relay (PORT overrides the default)")
	sshAddr := flag.String("ssh-addr", "", "TCP address for the SSH relay (disabled when empty)")
	hostKeyPath := flag.String("host-key", "configs/ssh_host_ed25519", "Path to the SSH host private key (auto-generated if missing)")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	if port := os.Getenv("PORT"); port != "" && !flagSet("addr") {
		*addr = ":" + port
	}

	hub := relay.NewHub(relay.WithLogger(logger))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errs := make(chan error, 1)
	var sshDone chan error

	if *sshAddr != "" {
		signer, err := sshserver.LoadOrGenerateSigner(*hostKeyPath)
		if err != nil {
			logger.Fatalf("failed to prepare host key: %v", err)
		}
		server := sshserver.New(*sshAddr, signer, logger)
		sshDone = make(chan error, 1)
		go func() {
			sshDone <- server.ListenAndServe(ctx, hub.HandleSession)
		}()
	}

	mux := http.NewServeMux()
	mux.Handle("/", hub)
	httpServer := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		logger.Printf("valence relay listening on %s", *addr)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errs:
		logServeError(logger, "http", err)
		cancel()
	case err := <-sshDone:
		logServeError(logger, "ssh", err)
		sshDone = nil
		cancel()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}

	// Serve returns once open SSH sessions have closed.
	if sshDone != nil {
		logServeError(logger, "ssh", <-sshDone)
	}
}

func logServeError(logger *log.Logger, name string, err error) {
	if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
		logger.Printf("%s server stopped with error: %v", name, err)
	}
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
