package syncer

import "time"

const (
	defaultChannel      = "ergowatch"
	defaultTickInterval = 10 * time.Second
	defaultRecycleAfter = 100

	shutdownTimeout = 10 * time.Second
)
