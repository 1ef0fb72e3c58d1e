// Package scheduler runs the application's main loop and its periodic
// tasks. Everything that mutates job records is posted here so it runs
// on a single goroutine.
package scheduler

import (
	"context"
	"time"
)

// Handle cancels a scheduled task. Cancel is idempotent.
type Handle interface {
	Cancel()
}

// Scheduler is the clock and task runner the job manager depends on.
type Scheduler interface {
	Now() time.Time
	// Post runs fn on the main loop.
	Post(fn func())
	// Every runs fn on the main loop once per interval until cancelled.
	// The first run happens one interval from now.
	Every(interval time.Duration, fn func()) Handle
}

// Caller runs fn on the main loop and waits for it. HTTP handlers use it
// to reach the job manager.
type Caller interface {
	Call(ctx context.Context, fn func()) error
}
