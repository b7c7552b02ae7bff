package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goodnatureofminers/ergowatch-syncer/internal/postgres"
	"go.uber.org/zap"
)

var (
	// ErrSlotEmpty is returned when the connection is not parked in the slot.
	ErrSlotEmpty = errors.New("connection slot is empty")
	// ErrSlotOpen is returned when opening a slot that already owns a connection.
	ErrSlotOpen = errors.New("connection slot already owns a connection")
)

// Slot owns the single shared connection. The connection is either parked in
// the slot, where the listener waits on it for notifications, or checked out by
// one pipeline run. All state transitions happen under mu.
type Slot struct {
	mu       sync.Mutex
	dialer   Dialer
	listener *Listener
	logger   *zap.Logger

	conn       postgres.Conn
	checkedOut bool
	stopListen context.CancelFunc
	listenDone chan struct{}

	errs chan error
}

// NewSlot builds an empty slot. Call Open before use.
func NewSlot(dialer Dialer, listener *Listener, logger *zap.Logger) *Slot {
	return &Slot{
		dialer:   dialer,
		listener: listener,
		logger:   logger,
		errs:     make(chan error, 1),
	}
}

// Errors reports listener failures. A value on this channel means the parked
// connection can no longer be trusted.
func (s *Slot) Errors() <-chan error {
	return s.errs
}

// Open dials the first connection and parks it.
func (s *Slot) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil || s.checkedOut {
		return ErrSlotOpen
	}
	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	s.park(conn)
	return nil
}

// Idle reports whether the connection is parked, meaning no pipeline holds it.
func (s *Slot) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conn != nil
}

// Acquire checks the connection out for exclusive use.
func (s *Slot) Acquire() (postgres.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, ErrSlotEmpty
	}
	conn := s.unpark()
	s.checkedOut = true
	return conn, nil
}

// Release parks a checked out connection again and resumes listening.
func (s *Slot) Release(conn postgres.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.checkedOut || s.conn != nil {
		s.report(fmt.Errorf("release of a connection that was not checked out: %w", ErrSlotOpen))
		return
	}
	s.checkedOut = false
	s.park(conn)
}

// Recycle replaces the parked connection with a freshly dialed one. It fails
// with ErrSlotEmpty while a pipeline holds the connection.
func (s *Slot) Recycle(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrSlotEmpty
	}

	s.logger.Info("resetting db connection")
	old := s.unpark()
	if err := old.Close(ctx); err != nil {
		s.logger.Warn("close connection failed", zap.Error(err))
	}

	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("reopen connection: %w", err)
	}
	s.park(conn)
	return nil
}

// Close stops listening and closes the parked connection.
func (s *Slot) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checkedOut {
		return fmt.Errorf("close: connection still checked out")
	}
	if s.conn == nil {
		return nil
	}
	conn := s.unpark()
	s.logger.Info("closing db connection")
	return conn.Close(ctx)
}

// park stores conn and starts the listener on it. Callers hold mu.
func (s *Slot) park(conn postgres.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.conn = conn
	s.stopListen = cancel
	s.listenDone = done

	go func() {
		defer close(done)
		if err := s.listener.Listen(ctx, conn); err != nil {
			s.report(err)
		}
	}()
}

// unpark stops the listener and takes the connection out. Callers hold mu.
func (s *Slot) unpark() postgres.Conn {
	s.stopListen()
	<-s.listenDone

	conn := s.conn
	s.conn = nil
	s.stopListen = nil
	s.listenDone = nil
	return conn
}

func (s *Slot) report(err error) {
	select {
	case s.errs <- err:
	default:
		s.logger.Error("dropping connection error, one is already pending", zap.Error(err))
	}
}
