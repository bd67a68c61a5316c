package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrNoOccurrence is returned when a job would never fire.
var ErrNoOccurrence = errors.New("timer: job has no upcoming occurrence")

// JobID identifies a registered job. Zero is never assigned.
type JobID int64

// Fired is posted each time a job triggers.
type Fired struct {
	ID      JobID
	Payload any
	At      time.Time
}

// Logger is the logging interface used by the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Service schedules once/daily/weekly jobs on a robfig cron runner.
//
// A job does not run a callback. Each firing is posted on Fired() with the
// job's payload so the consumer handles it on its own goroutine.
type Service struct {
	mu      sync.Mutex
	c       *cron.Cron
	loc     *time.Location
	nextID  JobID
	entries map[JobID]cron.EntryID
	fired   chan Fired
	done    chan struct{}
	now     func() time.Time
	logger  Logger
	started bool
}

// New creates a stopped service. loc is the cron runner's location; nil
// means time.Local.
func New(loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		c:       cron.New(cron.WithLocation(loc)),
		loc:     loc,
		entries: make(map[JobID]cron.EntryID),
		fired:   make(chan Fired, 64),
		done:    make(chan struct{}),
		now:     time.Now,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start begins running jobs.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.c.Start()
	s.logger.Info("timer service started", "location", s.loc.String())
}

// Stop halts the runner and waits for in-flight firings until ctx expires.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	close(s.done)
	s.mu.Unlock()

	select {
	case <-s.c.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timer: stopping: %w", ctx.Err())
	}
}

// Fired returns the channel on which firings are delivered.
func (s *Service) Fired() <-chan Fired {
	return s.fired
}

// AddJob registers a job that fires at begin and then every e until end.
// It returns ErrNoOccurrence when no firing would happen after now.
func (s *Service) AddJob(begin time.Time, end *time.Time, e Every, payload any) (JobID, error) {
	sched := &occurrences{begin: begin, end: end, every: e}
	if sched.Next(s.now()).IsZero() {
		return 0, ErrNoOccurrence
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	job := cron.FuncJob(func() { s.fire(id, payload) })
	s.entries[id] = s.c.Schedule(sched, job)

	s.logger.Debug("job added", "job_id", id, "begin", begin, "every", e.String())
	return id, nil
}

// RemoveJob cancels a job. A firing already being posted may still arrive,
// so consumers compare Fired.ID against the handle they hold.
func (s *Service) RemoveJob(id JobID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return
	}
	delete(s.entries, id)
	s.c.Remove(entry)
	s.logger.Debug("job removed", "job_id", id)
}

// Len returns the number of registered jobs.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Service) fire(id JobID, payload any) {
	s.mu.Lock()
	_, active := s.entries[id]
	s.mu.Unlock()
	if !active {
		return
	}

	select {
	case s.fired <- Fired{ID: id, Payload: payload, At: s.now()}:
	case <-s.done:
	}
}
