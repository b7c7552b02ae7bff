package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goodnatureofminers/ergowatch-syncer/internal/model"
	"github.com/goodnatureofminers/ergowatch-syncer/internal/postgres"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeConn delivers notifications pushed with notify while a listener waits on it.
type fakeConn struct {
	id      int
	notes   chan *pgconn.Notification
	waitErr error
	closed  atomic.Bool
	waiting atomic.Int32
}

func newFakeConn(id int) *fakeConn {
	return &fakeConn{id: id, notes: make(chan *pgconn.Notification, 16)}
}

func (c *fakeConn) notify(channel, payload string) {
	c.notes <- &pgconn.Notification{Channel: channel, Payload: payload}
}

func (c *fakeConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) InTx(_ context.Context, fn func(postgres.Execer) error) error {
	return fn(c)
}

func (c *fakeConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	c.waiting.Add(1)
	defer c.waiting.Add(-1)

	if c.waitErr != nil {
		return nil, c.waitErr
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case n := <-c.notes:
		return n, nil
	}
}

func (c *fakeConn) Close(context.Context) error {
	c.closed.Store(true)
	return nil
}

// fakeDialer hands out a new fakeConn per Dial.
type fakeDialer struct {
	mu      sync.Mutex
	conns   []*fakeConn
	failing bool
}

func (d *fakeDialer) Dial(context.Context) (postgres.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failing {
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn(len(d.conns) + 1)
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

type nopMetrics struct{}

func (nopMetrics) ObserveNotification(int)               {}
func (nopMetrics) ObserveSkipped()                       {}
func (nopMetrics) ObserveDrained()                       {}
func (nopMetrics) ObserveStage(string, error, time.Time) {}
func (nopMetrics) ObserveRun(model.RunReport)            {}
func (nopMetrics) ObserveRecycle(error, time.Time)       {}

// traceStage records its invocations into a shared trace.
type traceStage struct {
	name  string
	trace *stageTrace
	err   error
	block chan struct{}
}

type stageTrace struct {
	mu    sync.Mutex
	calls []string
	seen  []model.Height
}

func (t *stageTrace) record(name string, h model.Height) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, name)
	t.seen = append(t.seen, h)
}

func (t *stageTrace) snapshot() ([]string, []model.Height) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...), append([]model.Height(nil), t.seen...)
}

func (s *traceStage) Name() string { return s.name }

func (s *traceStage) Run(_ context.Context, _ postgres.Conn, h model.Height) error {
	s.trace.record(s.name, h)
	if s.block != nil {
		<-s.block
	}
	return s.err
}

func receiveReport(t *testing.T, ch <-chan model.RunReport) model.RunReport {
	t.Helper()

	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for run report")
		return model.RunReport{}
	}
}
