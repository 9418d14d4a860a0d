// Command relay runs one Anemochory node: a TCP (and optionally
// WebSocket) accept loop that peels one onion layer per packet and
// forwards, exits, or silently drops it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"anemochory/application"
	"anemochory/infrastructure/clock"
	"anemochory/infrastructure/cryptography/padding"
	"anemochory/infrastructure/cryptography/replay"
	"anemochory/infrastructure/exithandler"
	"anemochory/infrastructure/logging"
	"anemochory/infrastructure/routing/processor"
	"anemochory/infrastructure/transport"
	"anemochory/infrastructure/transport/wstransport"
)

func main() {
	addr := flag.String("addr", ":9443", "TCP listen address")
	wsAddr := flag.String("ws-addr", "", "optional WebSocket listen address; empty disables it")
	wsPath := flag.String("ws-path", "/relay", "HTTP path the WebSocket listener upgrades")
	exitNode := flag.Bool("exit", false, "run as an exit node (echo payloads instead of discarding them)")
	connRate := flag.Float64("conn-rate", 200, "admitted new connections per second")
	connBurst := flag.Int("conn-burst", 200, "connection-admission burst size")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	logger := logging.NewLogLogger()

	// Layer keys are provisioned out of band, per §4.10 — this registry
	// starts empty. A deployment wires its own provisioning channel
	// (handshake RPC, config push) to call KeyRegistry.Register.
	keys := processor.NewKeyRegistry()

	var handler application.ExitHandler
	if *exitNode {
		handler = exithandler.Bounded{Next: exithandler.Echo{}}
	}

	proc := processor.New(keys, padding.New(), replay.New(clock.New()), logger)
	sender := transport.NewTCPSender()

	srv := transport.NewServer(proc, handler, sender, logger, rate.Limit(*connRate), *connBurst)

	errCh := make(chan error, 2)
	go func() {
		errCh <- srv.ListenAndServe(ctx, *addr)
	}()
	if *wsAddr != "" {
		go func() {
			errCh <- wstransport.ListenAndServe(ctx, *wsAddr, *wsPath, proc, handler, wstransport.NewSender(*wsPath), logger, rate.Limit(*connRate), *connBurst)
		}()
	}

	fmt.Printf("relay listening on %s (exit=%v)\n", *addr, *exitNode)
	if err := <-errCh; err != nil && ctx.Err() == nil {
		logger.Printf("relay stopped: %v", err)
		os.Exit(1)
	}
}
