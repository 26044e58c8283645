// Package workers contains the supervised background workers of the
// messenger host process.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gigspot/contract"
)

var errWorkerPanic = fmt.Errorf("worker panic")

// Supervisor runs each worker in its own goroutine, recovers panics,
// restarts crashed workers after a pause, and shuts everything down
// when the parent context is canceled. A failure in one worker never
// stops the supervisor itself.
type Supervisor struct {
	cancel          context.CancelFunc
	wg              *sync.WaitGroup
	log             *slog.Logger
	restartInterval time.Duration
	workers         []contract.Worker
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration) *Supervisor {
	return &Supervisor{wg: &sync.WaitGroup{}, log: log, restartInterval: restartInterval}
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Run starts every registered worker under a supervision context
// derived from ctx and blocks until they all finish. Canceling the
// parent stops the children; calling Stop cancels only the children.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer s.cancel()

	for _, worker := range s.workers {
		s.start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// start supervises one worker: recover its panics, restart it after
// restartInterval unless the context died, and let it finish for good
// when Run returns nil.
func (s *Supervisor) start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	name := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()
		for {
			if ctx.Err() != nil {
				s.log.Info("Worker stopping", "name", name)
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("%w: %v", errWorkerPanic, r)
					}
				}()
				return worker.Run(ctx)
			}()

			if err == nil {
				s.log.Info("Worker finished", "name", name)
				return
			}
			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", name)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.restartInterval):
			}
		}
	}()
}
