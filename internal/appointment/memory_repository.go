package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-booking/internal/schedule"
)

// MemoryRepository keeps bookings in process. Conditional writes run under one
// mutex, which gives them the same all-or-nothing behaviour as the Postgres
// store. Used by tests and the simulator.
type MemoryRepository struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*Booking
	family   map[uuid.UUID]FamilyMember
	events   []EventLog
	nextID   int64
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		bookings: make(map[uuid.UUID]*Booking),
		family:   make(map[uuid.UUID]FamilyMember),
		now:      time.Now,
	}
}

func (r *MemoryRepository) AddFamilyMember(fm FamilyMember) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.family[fm.ID] = fm
}

// Events returns a copy of every event row written so far.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventLog(nil), r.events...)
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *MemoryRepository) GetFamilyMember(_ context.Context, id uuid.UUID) (*FamilyMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fm, ok := r.family[id]
	if !ok {
		return nil, ErrFamilyMemberNotFound
	}
	return &fm, nil
}

func (r *MemoryRepository) FindLiveBooking(_ context.Context, patientID, doctorID uuid.UUID, date time.Time) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b := r.liveBookingLocked(patientID, doctorID, schedule.Day(date), uuid.Nil); b != nil {
		cp := *b
		return &cp, nil
	}
	return nil, ErrAppointmentNotFound
}

func (r *MemoryRepository) FindByIdempotencyKey(_ context.Context, patientID uuid.UUID, key string) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.bookings {
		if b.PatientID == patientID && b.IdempotencyKey != nil && *b.IdempotencyKey == key {
			cp := *b
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *MemoryRepository) CountActiveBookings(_ context.Context, doctorID uuid.UUID, from, to time.Time) (map[schedule.SlotKey]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	from, to = schedule.Day(from), schedule.Day(to)
	counts := make(map[schedule.SlotKey]int)
	for _, b := range r.bookings {
		if b.DoctorID != doctorID || !b.Status.HoldsCapacity() {
			continue
		}
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		counts[schedule.SlotKey{Date: b.Date, Start: b.StartTime}]++
	}
	return counts, nil
}

func (r *MemoryRepository) InsertBookingIfCapacityAvailable(_ context.Context, b *Booking, capacity int) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A repeated key wins over capacity and duplicate checks so a retry
	// racing its own original sees the original booking.
	if b.IdempotencyKey != nil {
		for _, other := range r.bookings {
			if other.PatientID == b.PatientID && other.IdempotencyKey != nil && *other.IdempotencyKey == *b.IdempotencyKey {
				return nil, ErrIdempotencyReplay
			}
		}
	}
	date := schedule.Day(b.Date)
	if r.holdersLocked(b.DoctorID, date, b.StartTime, uuid.Nil) >= capacity {
		return nil, ErrCapacityExhausted
	}
	if r.seatTakenLocked(b.PatientID, b.DoctorID, date, b.StartTime, uuid.Nil) ||
		r.liveBookingLocked(b.PatientID, b.DoctorID, date, uuid.Nil) != nil {
		return nil, ErrDuplicateBooking
	}

	saved := *b
	if saved.ID == uuid.Nil {
		saved.ID = uuid.New()
	}
	now := r.now()
	saved.Date = date
	saved.CreatedAt = now
	saved.UpdatedAt = now
	r.bookings[saved.ID] = &saved

	out := saved
	return &out, nil
}

func (r *MemoryRepository) UpdateBookingStatus(_ context.Context, id uuid.UUID, from AppointmentStatus, c StatusChange) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if b.Status != from {
		return nil, ErrStatusChanged
	}
	applyStatusChange(b, c)

	cp := *b
	return &cp, nil
}

func (r *MemoryRepository) RescheduleIfCapacityAvailable(_ context.Context, id uuid.UUID, rs Reschedule) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if b.Status != rs.From {
		return nil, ErrStatusChanged
	}

	date := schedule.Day(rs.Date)
	if r.holdersLocked(b.DoctorID, date, rs.StartTime, id) >= rs.Capacity {
		return nil, ErrCapacityExhausted
	}
	if r.seatTakenLocked(b.PatientID, b.DoctorID, date, rs.StartTime, id) ||
		r.liveBookingLocked(b.PatientID, b.DoctorID, date, id) != nil {
		return nil, ErrDuplicateBooking
	}

	b.RescheduledFrom = &SlotRef{Date: b.Date, StartTime: b.StartTime, EndTime: b.EndTime}
	b.Date = date
	b.StartTime = rs.StartTime
	b.EndTime = rs.EndTime
	applyStatusChange(b, StatusChange{To: StatusRescheduled, At: rs.At})

	cp := *b
	return &cp, nil
}

func (r *MemoryRepository) SetPaymentOrder(_ context.Context, id uuid.UUID, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	b.PaymentOrderID = &orderID
	return nil
}

func (r *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Booking
	for _, b := range r.bookings {
		if b.PatientID == patientID {
			result = append(result, *b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].StartTime > result[j].StartTime
	})

	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (r *MemoryRepository) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	date = schedule.Day(date)
	var result []Booking
	for _, b := range r.bookings {
		if b.DoctorID == doctorID && b.Date.Equal(date) {
			result = append(result, *b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartTime != result[j].StartTime {
			return result[i].StartTime < result[j].StartTime
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	ev.ID = r.nextID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *MemoryRepository) ListUndispatchedEvents(_ context.Context, maxAttempts, limit int) ([]EventLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []EventLog
	for _, ev := range r.events {
		if ev.DispatchedAt == nil && ev.Attempts < maxAttempts {
			result = append(result, ev)
			if len(result) == limit {
				break
			}
		}
	}
	return result, nil
}

func (r *MemoryRepository) MarkEventDispatched(_ context.Context, id int64) error {
	return r.updateEvent(id, func(ev *EventLog) {
		now := r.now()
		ev.DispatchedAt = &now
		ev.Attempts++
	})
}

func (r *MemoryRepository) RecordEventFailure(_ context.Context, id int64, errMsg string) error {
	return r.updateEvent(id, func(ev *EventLog) {
		ev.Attempts++
		ev.LastError = &errMsg
	})
}

func (r *MemoryRepository) updateEvent(id int64, fn func(*EventLog)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.events {
		if r.events[i].ID == id {
			fn(&r.events[i])
			return nil
		}
	}
	return nil
}

// holdersLocked counts capacity-holding bookings on a slot, ignoring skip.
func (r *MemoryRepository) holdersLocked(doctorID uuid.UUID, date time.Time, start schedule.Clock, skip uuid.UUID) int {
	n := 0
	for _, b := range r.bookings {
		if b.ID != skip && b.DoctorID == doctorID && b.Date.Equal(date) && b.StartTime == start && b.Status.HoldsCapacity() {
			n++
		}
	}
	return n
}

func (r *MemoryRepository) seatTakenLocked(patientID, doctorID uuid.UUID, date time.Time, start schedule.Clock, skip uuid.UUID) bool {
	for _, b := range r.bookings {
		if b.ID != skip && b.PatientID == patientID && b.DoctorID == doctorID &&
			b.Date.Equal(date) && b.StartTime == start && b.Status.HoldsCapacity() {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) liveBookingLocked(patientID, doctorID uuid.UUID, date time.Time, skip uuid.UUID) *Booking {
	for _, b := range r.bookings {
		if b.ID != skip && b.PatientID == patientID && b.DoctorID == doctorID &&
			b.Date.Equal(date) && !b.Status.IsTerminal() {
			return b
		}
	}
	return nil
}
