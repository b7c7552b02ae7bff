// Package postgres dials and instruments the pgx connection shared by the syncer.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// Execer runs a statement; both connections and transactions satisfy it.
	Execer interface {
		Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	}

	// Conn is an exclusive-use handle to a live connection subscribed to the notification channel.
	Conn interface {
		Execer
		// InTx runs fn inside a transaction that is committed when fn returns nil.
		InTx(ctx context.Context, fn func(tx Execer) error) error
		WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
		Close(ctx context.Context) error
	}

	Metrics interface {
		Observe(operation string, err error, started time.Time)
	}

	pgxConn interface {
		Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
		Begin(ctx context.Context) (pgx.Tx, error)
		WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
		Close(ctx context.Context) error
	}
)

// ObservedConn records metrics for every operation issued on the wrapped connection.
type ObservedConn struct {
	conn    pgxConn
	metrics Metrics
}

// NewObservedConn wraps conn with metrics.
func NewObservedConn(conn *pgx.Conn, metrics Metrics) *ObservedConn {
	return &ObservedConn{conn: conn, metrics: metrics}
}

func (c *ObservedConn) Exec(ctx context.Context, sql string, args ...any) (tag pgconn.CommandTag, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("exec", err, started)
	}()
	return c.conn.Exec(ctx, sql, args...)
}

func (c *ObservedConn) InTx(ctx context.Context, fn func(tx Execer) error) (err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("tx", err, started)
	}()
	return pgx.BeginFunc(ctx, c.conn, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// WaitForNotification is not observed: it blocks for as long as the connection stays idle.
func (c *ObservedConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return c.conn.WaitForNotification(ctx)
}

func (c *ObservedConn) Close(ctx context.Context) (err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("close", err, started)
	}()
	return c.conn.Close(ctx)
}
