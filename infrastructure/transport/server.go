package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"anemochory/application"
	"anemochory/domain"
)

// Server runs the accept loop described in §4.12: per connection, read
// frames with a per-frame read timeout, hand each packet to the node
// processor, then act on its Decision.
type Server struct {
	processor   application.Processor
	exitHandler application.ExitHandler
	sender      application.Sender
	logger      application.Logger
	limiter     *rate.Limiter
}

// NewServer builds a Server. connRate and burst configure the admission
// limiter bounding how many new connections are accepted per second,
// guarding the accept loop's resource consumption the way §5 asks of every
// shared resource.
func NewServer(processor application.Processor, exitHandler application.ExitHandler, sender application.Sender, logger application.Logger, connRate rate.Limit, burst int) *Server {
	return &Server{
		processor:   processor,
		exitHandler: exitHandler,
		sender:      sender,
		logger:      logger,
		limiter:     rate.NewLimiter(connRate, burst),
	}
}

// ListenAndServe accepts TCP connections on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", addr, err)
	}
	s.logf("relay listening on %s", addr)
	return s.Serve(ctx, listener)
}

// Serve runs the accept loop over an already-bound listener until ctx is
// canceled, running one goroutine per connection under an errgroup so a
// single connection's slow handler never blocks the accept loop. Any
// net.Listener works here, including a websocket upgrade listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return listener.Close()
	})

	for {
		conn, acceptErr := listener.Accept()
		if gctx.Err() != nil {
			return g.Wait()
		}
		if acceptErr != nil {
			s.logf("accept error: %v", acceptErr)
			continue
		}
		if !s.limiter.Allow() {
			_ = conn.Close()
			continue
		}
		g.Go(func() error {
			s.handleConn(gctx, conn)
			return nil
		})
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(domain.TransportReadTimeout)); err != nil {
			return
		}

		frameSessionID, packet, err := ReadFrame(conn)
		if err != nil {
			if errors.Is(err, domain.ErrFramingError) {
				s.logf("framing error from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		var sessionID domain.SessionId
		if len(packet) >= domain.HeaderSize {
			if header, headerErr := domain.UnmarshalPacketHeader(packet[:domain.HeaderSize]); headerErr == nil {
				sessionID = header.SessionID
				if frameSessionIDFromHeader(sessionID) != frameSessionID {
					s.logf("frame session_id mismatch from %s", conn.RemoteAddr())
					return
				}
			}
		}

		decision := s.processor.Process(packet, sessionID)
		switch decision.Kind {
		case domain.DecisionForward:
			s.forward(ctx, decision)
		case domain.DecisionExit:
			s.exit(decision)
		case domain.DecisionDrop:
			// Silence is the defense: no response to the peer either way.
		}
	}
}

func (s *Server) forward(ctx context.Context, decision domain.Decision) {
	time.Sleep(time.Duration(decision.JitterMillis) * time.Millisecond)

	var sessionID FrameSessionID
	if header, err := domain.UnmarshalPacketHeader(decision.PacketData[:domain.HeaderSize]); err == nil {
		sessionID = frameSessionIDFromHeader(header.SessionID)
	}
	if err := s.sender.Send(ctx, decision.NextAddress, decision.NextPort, sessionID, decision.PacketData); err != nil {
		s.logf("forward to %s:%d: %v", decision.NextAddress, decision.NextPort, err)
	}
}

func (s *Server) exit(decision domain.Decision) {
	if s.exitHandler == nil {
		return
	}
	if _, err := s.exitHandler.Handle(decision.Payload); err != nil {
		s.logf("exit handler: %v", err)
	}
}

func (s *Server) logf(format string, v ...any) {
	if s.logger != nil {
		s.logger.Printf(format, v...)
	}
}
