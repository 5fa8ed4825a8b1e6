package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/infra"
)

// StreamHandler supplies venue-specific framing for the update stream.
type StreamHandler interface {
	URL() string
	// OnConnect authenticates and subscribes to the order-update channel.
	OnConnect(ctx context.Context, conn *websocket.Conn) error
	// Decode parses one frame. ok=false means a non-order frame (heartbeat,
	// subscription ack) that should be skipped silently.
	Decode(msg []byte) (OrderUpdate, bool, error)
	Ping(ctx context.Context, conn *websocket.Conn) error
	ID() string
}

// UpdateStream maintains the venue's push connection for order updates.
// It reconnects with backoff, enforces read timeouts and serializes writes.
type UpdateStream struct {
	handler  StreamHandler
	dispatch func(OrderUpdate)
	log      *zap.Logger

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	backoff      infra.BackoffPolicy
	ReadTimeout  time.Duration
	PingInterval time.Duration
}

// NewUpdateStream creates a stream worker delivering decoded updates to
// dispatch.
func NewUpdateStream(handler StreamHandler, dispatch func(OrderUpdate), log *zap.Logger) *UpdateStream {
	return &UpdateStream{
		handler:      handler,
		dispatch:     dispatch,
		log:          log,
		backoff:      infra.DefaultBackoffPolicy(),
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// Start initiates the connection loop.
func (s *UpdateStream) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.runLoop(ctx)
}

// Stop terminates the worker and waits for the loop to exit.
func (s *UpdateStream) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.close()
	s.wg.Wait()
}

func (s *UpdateStream) runLoop(ctx context.Context) {
	defer s.wg.Done()
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.connect(ctx); err != nil {
			delay := s.backoff.Delay(retry)
			retry++
			s.log.Warn("stream connection failed",
				zap.String("id", s.handler.ID()),
				zap.Int("retry", retry),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		s.process(ctx)
	}
}

func (s *UpdateStream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.handler.URL(), nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if err := s.handler.OnConnect(ctx, conn); err != nil {
		s.close()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	if s.PingInterval > 0 {
		go s.pingLoop(ctx)
	}

	s.log.Info("stream connected", zap.String("id", s.handler.ID()))
	return nil
}

func (s *UpdateStream) process(ctx context.Context) {
	for {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		if err := conn.SetReadDeadline(time.Now().Add(s.ReadTimeout)); err != nil {
			s.close()
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				s.log.Warn("stream read failed, reconnecting",
					zap.String("id", s.handler.ID()), zap.Error(err))
			}
			s.close()
			return
		}

		update, ok, err := s.handler.Decode(msg)
		if err != nil {
			s.log.Warn("undecodable stream frame dropped",
				zap.String("id", s.handler.ID()), zap.Error(err))
			continue
		}
		if ok {
			s.dispatch(update)
		}
	}
}

func (s *UpdateStream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			s.writeMu.Lock()
			err := s.handler.Ping(ctx, conn)
			s.writeMu.Unlock()
			if err != nil {
				s.log.Warn("stream ping failed", zap.String("id", s.handler.ID()), zap.Error(err))
				s.close()
				return
			}
		}
	}
}

func (s *UpdateStream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
