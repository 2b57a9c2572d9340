package schedule

import (
	"context"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps robfig/cron with standard 5-field specs.
type Scheduler struct {
	cron *cron.Cron
}

func New() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// AddJob registers fn under a standard cron spec. The job receives a fresh
// background context per firing.
func (s *Scheduler) AddJob(spec string, fn func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		_ = fn(context.Background())
	})
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
