// Package stages holds the refresh steps run by the syncer pipeline for every
// new block height: price sync, core sync, continuous aggregates and
// snapshots. Each stage owns its transactions and is safe to re-run for the
// same height.
package stages
