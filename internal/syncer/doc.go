// Package syncer implements the notification driven orchestrator.
//
// New block heights are announced by the chain-grabber through a Postgres
// NOTIFY. The orchestrator queues them, keeps only the most recent one and
// runs the refresh pipeline for it on a single shared connection. The
// connection is owned by a Slot and is either parked there, waiting for
// notifications, or checked out by exactly one pipeline run. Every
// recycleAfter dispatches the connection is closed and reopened to bound the
// server side resource growth of long lived sessions.
package syncer
