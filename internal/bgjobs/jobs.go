package bgjobs

import (
	"context"
	"sync"

	"github.com/petuhovskiy/rollodrome/internal/log"
)

// Register is a registry of all background jobs.
// Has a wait group to wait for all jobs to finish.
type Register struct {
	all sync.WaitGroup
}

func NewRegister() *Register {
	return &Register{}
}

// Go a new background task.
func (r *Register) Go(f func()) {
	r.all.Add(1)

	go func() {
		defer r.all.Done()
		f()
	}()
}

// WaitAll blocks until every registered job has finished or ctx is done.
// Draw bursts can run for a while, so shutdown passes a deadline here
// instead of waiting forever.
func (r *Register) WaitAll(ctx context.Context) {
	log.Info(ctx, "waiting for all background jobs to finish")

	done := make(chan struct{})
	go func() {
		r.all.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn(ctx, "shutdown deadline reached, some jobs are still running")
	}
}
