package app

import (
	"context"
	"sync"
	"time"

	"hedge-bot/internal/metrics"

	"go.uber.org/zap"
)

type job struct {
	name  string
	every time.Duration
	run   func(ctx context.Context) error
	next  time.Time
}

// Scheduler runs named maintenance jobs on fixed cadences. It owns no
// goroutine: the loop calls RunDue after each refresh and due jobs run
// synchronously, in the order they were added. NextRuns may be called
// concurrently with RunDue.
type Scheduler struct {
	mu      sync.Mutex
	jobs    []*job
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewScheduler(m *metrics.Metrics, log *zap.Logger) *Scheduler {
	if m == nil {
		m = metrics.NewNoop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{metrics: m, log: log}
}

// Add registers a job that first runs one interval after start. A
// non-positive interval disables the job.
func (s *Scheduler) Add(name string, every time.Duration, start time.Time, run func(ctx context.Context) error) {
	if every <= 0 {
		s.log.Info("job disabled", zap.String("job", name))
		return
	}
	s.mu.Lock()
	s.jobs = append(s.jobs, &job{name: name, every: every, run: run, next: start.Add(every)})
	s.mu.Unlock()
}

// RunDue runs every job whose time has come and returns their names. A job
// that fell several intervals behind runs once and is rescheduled from now.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) []string {
	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if !now.Before(j.next) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	ran := make([]string, 0, len(due))
	for _, j := range due {
		if err := j.run(ctx); err != nil {
			s.metrics.JobFailed.Inc()
			s.log.Warn("job failed", zap.String("job", j.name), zap.Error(err))
		}
		ran = append(ran, j.name)

		s.mu.Lock()
		j.next = j.next.Add(j.every)
		if !j.next.After(now) {
			j.next = now.Add(j.every)
		}
		s.mu.Unlock()
	}
	return ran
}

// NextRuns returns the next due time of every enabled job.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.jobs))
	for _, j := range s.jobs {
		out[j.name] = j.next
	}
	return out
}
