package wstransport

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"anemochory/application"
	"anemochory/infrastructure/transport"
)

// ListenAndServe upgrades HTTP requests on addr+path to WebSocket
// connections and drives them through the same accept loop as the TCP
// binding, reusing transport.Server's Decision handling.
func ListenAndServe(ctx context.Context, addr, path string, processor application.Processor, exitHandler application.ExitHandler, sender application.Sender, logger application.Logger, connRate rate.Limit, burst int) error {
	listener, err := NewListener(ctx, addr, path)
	if err != nil {
		return fmt.Errorf("wstransport: listen on %s: %w", addr, err)
	}

	srv := transport.NewServer(processor, exitHandler, sender, logger, connRate, burst)
	return srv.Serve(ctx, listener)
}
