package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository used by tests and local tooling.
type MemoryRepository struct {
	mu        sync.RWMutex
	doctors   map[uuid.UUID]Doctor
	templates map[uuid.UUID]WeeklyTemplate
	overrides map[uuid.UUID]map[time.Time]ScheduleOverride
	now       func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:   make(map[uuid.UUID]Doctor),
		templates: make(map[uuid.UUID]WeeklyTemplate),
		overrides: make(map[uuid.UUID]map[time.Time]ScheduleOverride),
		now:       time.Now,
	}
}

func (m *MemoryRepository) AddDoctor(d Doctor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[d.ID] = d
}

func (m *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *MemoryRepository) ListTemplates(_ context.Context, doctorID uuid.UUID, activeOnly bool) ([]WeeklyTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []WeeklyTemplate
	for _, t := range m.templates {
		if t.DoctorID != doctorID || (activeOnly && !t.IsActive) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryRepository) GetTemplateByID(_ context.Context, id uuid.UUID) (*WeeklyTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return &t, nil
}

func (m *MemoryRepository) ReplaceActiveTemplate(_ context.Context, t WeeklyTemplate) (*WeeklyTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, existing := range m.templates {
		if existing.DoctorID == t.DoctorID && existing.DayOfWeek == t.DayOfWeek && existing.IsActive {
			existing.IsActive = false
			existing.UpdatedAt = now
			m.templates[id] = existing
		}
	}

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.IsActive = true
	t.CreatedAt = now
	t.UpdatedAt = now
	m.templates[t.ID] = t
	return &t, nil
}

func (m *MemoryRepository) DeactivateTemplate(_ context.Context, id uuid.UUID) (*WeeklyTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	t.IsActive = false
	t.UpdatedAt = m.now()
	m.templates[id] = t
	return &t, nil
}

func (m *MemoryRepository) ListOverrides(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]ScheduleOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	from, to = Day(from), Day(to)
	var out []ScheduleOverride
	for date, o := range m.overrides[doctorID] {
		if date.Before(from) || date.After(to) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *MemoryRepository) UpsertOverride(_ context.Context, o ScheduleOverride) (*ScheduleOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o.Date = Day(o.Date)
	byDate, ok := m.overrides[o.DoctorID]
	if !ok {
		byDate = make(map[time.Time]ScheduleOverride)
		m.overrides[o.DoctorID] = byDate
	}

	now := m.now()
	if existing, ok := byDate[o.Date]; ok {
		o.ID = existing.ID
		o.CreatedAt = existing.CreatedAt
	} else {
		if o.ID == uuid.Nil {
			o.ID = uuid.New()
		}
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	byDate[o.Date] = o
	return &o, nil
}

func (m *MemoryRepository) DeleteOverride(_ context.Context, doctorID uuid.UUID, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byDate := m.overrides[doctorID]
	if _, ok := byDate[Day(date)]; !ok {
		return ErrOverrideNotFound
	}
	delete(byDate, Day(date))
	return nil
}
