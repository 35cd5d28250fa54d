package schedule

import (
	"time"

	"github.com/google/uuid"
)

type ConsultationType string

const (
	ConsultationInPerson  ConsultationType = "in_person"
	ConsultationVideo     ConsultationType = "video"
	ConsultationHomeVisit ConsultationType = "home_visit"
)

func (c ConsultationType) Valid() bool {
	switch c {
	case ConsultationInPerson, ConsultationVideo, ConsultationHomeVisit:
		return true
	}
	return false
}

type OverrideType string

const (
	OverrideHoliday      OverrideType = "holiday"
	OverrideLeave        OverrideType = "leave"
	OverrideSpecialHours OverrideType = "special_hours"
)

func (o OverrideType) Valid() bool {
	switch o {
	case OverrideHoliday, OverrideLeave, OverrideSpecialHours:
		return true
	}
	return false
}

// Closed reports whether the override removes every slot of its date.
func (o OverrideType) Closed() bool {
	return o == OverrideHoliday || o == OverrideLeave
}

type Doctor struct {
	ID                uuid.UUID
	HospitalID        uuid.UUID
	Name              string
	Specialty         *string
	IsActive          bool
	IsVerified        bool
	ConsultationTypes []ConsultationType
	Fees              map[ConsultationType]int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (d *Doctor) Supports(ct ConsultationType) bool {
	for _, t := range d.ConsultationTypes {
		if t == ct {
			return true
		}
	}
	return false
}

// Bookable reports whether the doctor accepts new bookings.
func (d *Doctor) Bookable() bool {
	return d.IsActive && d.IsVerified
}

type WeeklyTemplate struct {
	ID                  uuid.UUID
	DoctorID            uuid.UUID
	DayOfWeek           time.Weekday
	StartTime           Clock
	EndTime             Clock
	BreakStart          *Clock
	BreakEnd            *Clock
	SlotDurationMinutes int
	MaxPatientsPerSlot  int
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type ScheduleOverride struct {
	ID                  uuid.UUID
	DoctorID            uuid.UUID
	Date                time.Time
	Type                OverrideType
	StartTime           *Clock
	EndTime             *Clock
	SlotDurationMinutes *int
	MaxPatientsPerSlot  *int
	Reason              string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Slot is derived from a schedule; it is never persisted.
type Slot struct {
	Date              time.Time          `json:"date"`
	StartTime         Clock              `json:"start_time"`
	EndTime           Clock              `json:"end_time"`
	ConsultationTypes []ConsultationType `json:"consultation_types"`
	MaxCapacity       int                `json:"max_capacity"`
	BookedCount       int                `json:"booked_count"`
}

func (s Slot) Remaining() int {
	if r := s.MaxCapacity - s.BookedCount; r > 0 {
		return r
	}
	return 0
}

func (s Slot) Available() bool { return s.Remaining() > 0 }

func (s Slot) DurationMinutes() int { return int(s.EndTime - s.StartTime) }

// SlotKey identifies a slot of one doctor.
type SlotKey struct {
	Date  time.Time
	Start Clock
}

func (k SlotKey) String() string {
	return k.Date.Format(DateLayout) + "T" + k.Start.String()
}

// LockKey is the per-slot serialization key used by the booking engine.
func LockKey(doctorID uuid.UUID, date time.Time, start Clock) string {
	return doctorID.String() + ":" + SlotKey{Date: Day(date), Start: start}.String()
}

type DayAvailability struct {
	Date        time.Time `json:"date"`
	IsAvailable bool      `json:"is_available"`
	Slots       []Slot    `json:"slots"`
}
