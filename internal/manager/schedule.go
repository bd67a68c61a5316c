package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/manage-core/internal/manageable"
	"github.com/nerrad567/manage-core/internal/pilot"
	"github.com/nerrad567/manage-core/internal/timer"
)

type jobKind string

const (
	jobStart jobKind = "start"
	jobStop  jobKind = "stop"
)

// jobRef is the payload of a schedule job.
type jobRef struct {
	OwnerID    string
	ScheduleID string
	Kind       jobKind
}

// register asks the timer for the start and stop jobs of s and stores their
// handles on s. A start with no future occurrence is skipped so a schedule
// already running still gets its stop. ErrNoOccurrence means neither job
// would ever fire.
func (m *Manager) register(owner manageable.Manageable, s *manageable.Schedule) error {
	ownerID := owner.Base().ID
	every := s.Recurrent.Every()

	startID, err := m.timer.AddJob(s.BeginDate, s.EndDate, every, jobRef{ownerID, s.ID, jobStart})
	if err != nil && !errors.Is(err, timer.ErrNoOccurrence) {
		return fmt.Errorf("registering start job: %w", err)
	}

	stopBegin, stopEnd := s.StopBounds()
	stopID, err := m.timer.AddJob(stopBegin, stopEnd, every, jobRef{ownerID, s.ID, jobStop})
	if err != nil {
		if startID != 0 {
			m.timer.RemoveJob(startID)
		}
		if errors.Is(err, timer.ErrNoOccurrence) {
			return err
		}
		return fmt.Errorf("registering stop job: %w", err)
	}

	s.StartJobID = startID
	s.StopJobID = stopID
	return nil
}

// deregister cancels both jobs of s. Storage is untouched.
func (m *Manager) deregister(s *manageable.Schedule) {
	if s.StartJobID != 0 {
		m.timer.RemoveJob(s.StartJobID)
		s.StartJobID = 0
	}
	if s.StopJobID != 0 {
		m.timer.RemoveJob(s.StopJobID)
		s.StopJobID = 0
	}
}

func (m *Manager) deregisterAll(owner manageable.Manageable) {
	for _, s := range owner.Base().Schedules {
		m.deregister(s)
	}
}

// resync re-arms the schedules of a manageable loaded from storage. Timer
// jobs do not survive a restart. Expired schedules are deleted.
func (m *Manager) resync(ctx context.Context, owner manageable.Manageable) {
	base := owner.Base()
	now := m.now()

	for _, s := range append([]*manageable.Schedule(nil), base.Schedules...) {
		s.Localize(m.loc)
		s.NormalizeEndDate()

		err := errExpired
		if !s.IsExpired(now) {
			err = m.register(owner, s)
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, errExpired), errors.Is(err, timer.ErrNoOccurrence):
			if rmErr := m.storeFor(owner).RemoveSchedule(ctx, base.ID, s.ID); rmErr != nil {
				m.logger.Error("failed to delete expired schedule", "owner_id", base.ID, "schedule_id", s.ID, "error", rmErr)
				continue
			}
			base.RemoveSchedule(s.ID)
			m.logger.Info("deleted expired schedule", "owner_id", base.ID, "schedule_id", s.ID)
		default:
			m.logger.Error("failed to register schedule", "owner_id", base.ID, "schedule_id", s.ID, "error", err)
		}
	}
}

var errExpired = errors.New("manager: schedule expired")

// addSchedule validates s against t and its peers, then persists, registers,
// caches and broadcasts it.
func (m *Manager) addSchedule(ctx context.Context, req pilot.AddScheduleRequest) (*manageable.Schedule, error) {
	t, err := m.lookup(req.Target)
	if err != nil {
		return nil, err
	}

	s := *req.Schedule
	s.ID = manageable.GenerateID()
	s.StartJobID, s.StopJobID = 0, 0
	s.Localize(m.loc)
	s.NormalizeEndDate()

	if err := manageable.CheckSchedule(t, &s, m.now(), m.peers(t)...); err != nil {
		if errors.Is(err, manageable.ErrScheduleConflict) {
			return nil, fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	base := t.Base()
	st := m.storeFor(t)
	if err := st.AddSchedule(ctx, base.ID, &s); err != nil {
		return nil, persistenceError(err)
	}
	if err := m.register(t, &s); err != nil {
		if rmErr := st.RemoveSchedule(ctx, base.ID, s.ID); rmErr != nil {
			m.logger.Error("failed to roll back schedule", "owner_id", base.ID, "schedule_id", s.ID, "error", rmErr)
		}
		return nil, err
	}

	base.AddSchedule(&s)
	m.browsers.AddSchedule(t, &s)
	m.logger.Info("schedule added", "owner_id", base.ID, "schedule_id", s.ID, "begin", s.BeginDate)
	return &s, nil
}

// removeSchedule deletes a schedule that is not currently running. Its jobs
// are cancelled before the row is deleted.
func (m *Manager) removeSchedule(ctx context.Context, req pilot.RemoveScheduleRequest) error {
	t, err := m.lookup(req.Target)
	if err != nil {
		return err
	}
	base := t.Base()
	s := base.Schedule(req.ScheduleID)
	if s == nil {
		return fmt.Errorf("%w: schedule %s", ErrNotFound, req.ScheduleID)
	}
	if s.IsRunning(m.now()) {
		return fmt.Errorf("%w: %s", ErrRunning, s.ID)
	}
	return m.dropSchedule(ctx, t, s)
}

// dropSchedule deregisters, deletes, uncaches and announces s. If the delete
// fails the jobs are registered again.
func (m *Manager) dropSchedule(ctx context.Context, t manageable.Manageable, s *manageable.Schedule) error {
	base := t.Base()
	m.deregister(s)
	if err := m.storeFor(t).RemoveSchedule(ctx, base.ID, s.ID); err != nil {
		if regErr := m.register(t, s); regErr != nil {
			m.logger.Warn("failed to re-register schedule", "owner_id", base.ID, "schedule_id", s.ID, "error", regErr)
		}
		return persistenceError(err)
	}
	base.RemoveSchedule(s.ID)
	m.browsers.RemoveSchedule(t, s.ID)
	m.logger.Info("schedule removed", "owner_id", base.ID, "schedule_id", s.ID)
	return nil
}

// handleFired runs a start or stop job against current cache state.
func (m *Manager) handleFired(ctx context.Context, f timer.Fired) {
	ref, ok := f.Payload.(jobRef)
	if !ok {
		m.logger.Error("unexpected job payload", "job_id", f.ID)
		return
	}

	t, found := m.cache.Get(ref.OwnerID)
	if !found {
		m.logger.Warn("dropping job of unknown owner", "job_id", f.ID, "owner_id", ref.OwnerID)
		m.metrics.TimerFiring(string(ref.Kind), "dropped")
		return
	}
	s := t.Base().Schedule(ref.ScheduleID)
	if s == nil || !holds(s, ref.Kind, f.ID) {
		m.logger.Debug("dropping stale job", "job_id", f.ID, "schedule_id", ref.ScheduleID)
		m.metrics.TimerFiring(string(ref.Kind), "dropped")
		return
	}

	switch ref.Kind {
	case jobStart:
		m.startScheduled(ctx, t, s)
	case jobStop:
		m.stopScheduled(ctx, t, s)
	}
	m.metrics.TimerFiring(string(ref.Kind), "ok")
}

func (m *Manager) startScheduled(ctx context.Context, t manageable.Manageable, s *manageable.Schedule) {
	status := m.status(t)
	if !status.Startable() {
		m.logger.Info("schedule start aborted", "owner_id", t.Base().ID, "schedule_id", s.ID, "status", status)
		m.record(ctx, t, manageable.HistoryScheduleAborted, map[string]any{"schedule": s.ID, "status": string(status)})
		return
	}

	var ids []string
	for _, d := range m.targets(t) {
		if !d.Status.Transitioning() {
			ids = append(ids, d.ID)
		}
	}
	if len(ids) == 0 {
		return
	}

	results := m.channel.AskForStartRecord(ctx, ids, s.Preset, s.Name)
	m.recordResults(ctx, results, manageable.HistoryStartRecord, manageable.HistoryStartRecordError,
		map[string]any{"schedule": s.ID, "preset": s.Preset})
}

// stopScheduled stops the target devices that are recording, then removes
// the schedule once it cannot start again.
func (m *Manager) stopScheduled(ctx context.Context, t manageable.Manageable, s *manageable.Schedule) {
	var ids []string
	for _, d := range m.targets(t) {
		if d.Status == manageable.StatusStarted {
			ids = append(ids, d.ID)
		}
	}
	if len(ids) > 0 {
		results := m.channel.AskForStopRecord(ctx, ids)
		m.recordResults(ctx, results, manageable.HistoryStopRecord, manageable.HistoryStopRecordError,
			map[string]any{"schedule": s.ID})
	}

	now := m.now()
	if s.IsRecurrent() && !s.IsExpired(now) && s.HasNextOccurrence(now) {
		return
	}
	if err := m.dropSchedule(ctx, t, s); err != nil {
		m.logger.Error("failed to remove finished schedule", "owner_id", t.Base().ID, "schedule_id", s.ID, "error", err)
	}
}

// holds reports whether id is the current handle of s's job of kind k.
func holds(s *manageable.Schedule, k jobKind, id timer.JobID) bool {
	if k == jobStart {
		return s.StartJobID == id
	}
	return s.StopJobID == id
}
