package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/enriquebris/goconcurrentqueue"
	"go.uber.org/zap"
)

// Loop is the real Scheduler: a FIFO of functions drained by Run.
type Loop struct {
	queue  *goconcurrentqueue.FIFO
	logger *zap.Logger
}

func NewLoop(logger *zap.Logger) *Loop {
	return &Loop{
		queue:  goconcurrentqueue.NewFIFO(),
		logger: logger,
	}
}

func (l *Loop) Now() time.Time {
	return time.Now()
}

func (l *Loop) Post(fn func()) {
	if err := l.queue.Enqueue(fn); err != nil {
		l.logger.Error("cannot post to main loop", zap.Error(err))
	}
}

const (
	callQueued int32 = iota
	callStarted
	callAbandoned
)

// Call posts fn and waits until it has run or ctx is done. Once Call
// returns, fn has either finished or will never run.
// It must not be called from the loop itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	state := callQueued
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		if atomic.CompareAndSwapInt32(&state, callQueued, callStarted) {
			fn()
		}
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if atomic.CompareAndSwapInt32(&state, callQueued, callAbandoned) {
			return ctx.Err()
		}
		<-done
		return nil
	}
}

// Run drains the queue until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		item, err := l.queue.DequeueOrWaitForNextElementContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn("main loop dequeue failed", zap.Error(err))
			continue
		}
		if fn, ok := item.(func()); ok {
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("main loop task panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}

type tickerTask struct {
	stop      chan struct{}
	once      sync.Once
	cancelled int32
}

func (t *tickerTask) Cancel() {
	atomic.StoreInt32(&t.cancelled, 1)
	t.once.Do(func() { close(t.stop) })
}

func (t *tickerTask) isCancelled() bool {
	return atomic.LoadInt32(&t.cancelled) == 1
}

func (l *Loop) Every(interval time.Duration, fn func()) Handle {
	task := &tickerTask{stop: make(chan struct{})}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-task.stop:
				return
			case <-ticker.C:
				l.Post(func() {
					// a tick may already be queued when Cancel runs
					if !task.isCancelled() {
						fn()
					}
				})
			}
		}
	}()
	return task
}
