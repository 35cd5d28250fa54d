package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-appointment-booking/internal/logger"
)

type fakeCounter struct {
	counts map[SlotKey]int
	calls  int
}

func (f *fakeCounter) CountActiveBookings(_ context.Context, _ uuid.UUID, from, to time.Time) (map[SlotKey]int, error) {
	f.calls++
	out := make(map[SlotKey]int)
	for k, v := range f.counts {
		if !k.Date.Before(from) && !k.Date.After(to) {
			out[k] = v
		}
	}
	return out, nil
}

type availabilityFixture struct {
	repo    *MemoryRepository
	counter *fakeCounter
	query   *AvailabilityQuery
	doctor  Doctor
	now     time.Time
}

func newAvailabilityFixture(t *testing.T) *availabilityFixture {
	t.Helper()

	f := &availabilityFixture{
		repo:    NewMemoryRepository(),
		counter: &fakeCounter{counts: map[SlotKey]int{}},
		// the Sunday before the Monday fixture
		now: time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC),
	}
	f.doctor = Doctor{
		ID:                uuid.New(),
		HospitalID:        uuid.New(),
		Name:              "Dr. Rao",
		IsActive:          true,
		IsVerified:        true,
		ConsultationTypes: []ConsultationType{ConsultationInPerson, ConsultationVideo},
		Fees:              map[ConsultationType]int64{ConsultationInPerson: 500, ConsultationVideo: 300},
	}
	f.repo.AddDoctor(f.doctor)

	tpl := mondayTemplate()
	tpl.DoctorID = f.doctor.ID
	_, err := f.repo.ReplaceActiveTemplate(context.Background(), *tpl)
	require.NoError(t, err)

	f.query = NewAvailabilityQuery(f.repo, f.counter, time.UTC, logger.Discard(),
		WithClock(func() time.Time { return f.now }))
	return f
}

func (f *availabilityFixture) day(t *testing.T, date time.Time) DayAvailability {
	t.Helper()
	days, err := f.query.Query(context.Background(), AvailabilityRequest{DoctorID: f.doctor.ID, From: date, Days: 1})
	require.NoError(t, err)
	require.Len(t, days, 1)
	return days[0]
}

func TestAvailability_MondayTemplate(t *testing.T) {
	f := newAvailabilityFixture(t)

	day := f.day(t, monday)

	assert.True(t, day.IsAvailable)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}, starts(day.Slots))
	for _, s := range day.Slots {
		assert.Equal(t, 1, s.MaxCapacity)
		assert.Equal(t, 0, s.BookedCount)
		assert.ElementsMatch(t, []ConsultationType{ConsultationInPerson, ConsultationVideo}, s.ConsultationTypes)
	}
}

func TestAvailability_BookedCounts(t *testing.T) {
	f := newAvailabilityFixture(t)
	f.counter.counts[SlotKey{Date: monday, Start: NewClock(9, 0)}] = 1

	day := f.day(t, monday)

	require.NotEmpty(t, day.Slots)
	assert.Equal(t, 1, day.Slots[0].BookedCount)
	assert.False(t, day.Slots[0].Available())
	assert.True(t, day.IsAvailable, "other slots are still open")
}

func TestAvailability_FullyBookedDay(t *testing.T) {
	f := newAvailabilityFixture(t)
	for c := NewClock(9, 0); c < NewClock(12, 0); c = c.Add(30) {
		f.counter.counts[SlotKey{Date: monday, Start: c}] = 1
	}

	day := f.day(t, monday)
	assert.Len(t, day.Slots, 6)
	assert.False(t, day.IsAvailable)
}

func TestAvailability_HolidayOverride(t *testing.T) {
	f := newAvailabilityFixture(t)
	_, err := f.repo.UpsertOverride(context.Background(), ScheduleOverride{
		DoctorID: f.doctor.ID,
		Date:     monday,
		Type:     OverrideHoliday,
		Reason:   "public holiday",
	})
	require.NoError(t, err)

	day := f.day(t, monday)
	assert.Empty(t, day.Slots)
	assert.False(t, day.IsAvailable)
}

func TestAvailability_UnsupportedTypeIsEmpty(t *testing.T) {
	f := newAvailabilityFixture(t)

	days, err := f.query.Query(context.Background(), AvailabilityRequest{
		DoctorID:         f.doctor.ID,
		From:             monday,
		Days:             7,
		ConsultationType: ConsultationHomeVisit,
	})
	require.NoError(t, err)
	assert.Empty(t, days)
}

func TestAvailability_UnbookableDoctorIsEmpty(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Doctor)
	}{
		{"inactive", func(d *Doctor) { d.IsActive = false }},
		{"unverified", func(d *Doctor) { d.IsVerified = false }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAvailabilityFixture(t)
			doc := f.doctor
			tc.mutate(&doc)
			f.repo.AddDoctor(doc)

			days, err := f.query.Query(context.Background(), AvailabilityRequest{DoctorID: doc.ID, From: monday, Days: 7})
			require.NoError(t, err)
			assert.Empty(t, days)
		})
	}
}

func TestAvailability_TypeFilterNarrowsSlots(t *testing.T) {
	f := newAvailabilityFixture(t)

	days, err := f.query.Query(context.Background(), AvailabilityRequest{
		DoctorID:         f.doctor.ID,
		From:             monday,
		Days:             1,
		ConsultationType: ConsultationVideo,
	})
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, []ConsultationType{ConsultationVideo}, days[0].Slots[0].ConsultationTypes)
}

func TestAvailability_RangeStartsTodayAndSpansDays(t *testing.T) {
	f := newAvailabilityFixture(t)

	days, err := f.query.Query(context.Background(), AvailabilityRequest{DoctorID: f.doctor.ID, Days: 8})
	require.NoError(t, err)
	require.Len(t, days, 8)

	assert.Equal(t, Today(f.now, time.UTC), days[0].Date)
	// Sunday has no template, Monday does, next Monday again
	assert.False(t, days[0].IsAvailable)
	assert.True(t, days[1].IsAvailable)
	assert.True(t, days[1].Date.Equal(monday))
	assert.Len(t, days[1].Slots, 6)
	assert.Empty(t, days[2].Slots)
}

func TestAvailability_TodayExcludesPastSlots(t *testing.T) {
	f := newAvailabilityFixture(t)
	f.now = time.Date(2025, 1, 6, 10, 10, 0, 0, time.UTC)

	day := f.day(t, monday)
	assert.Equal(t, []string{"10:30", "11:00", "11:30"}, starts(day.Slots))
}

func TestAvailability_Idempotent(t *testing.T) {
	f := newAvailabilityFixture(t)
	f.counter.counts[SlotKey{Date: monday, Start: NewClock(10, 0)}] = 1

	req := AvailabilityRequest{DoctorID: f.doctor.ID, From: monday, Days: 14}
	first, err := f.query.Query(context.Background(), req)
	require.NoError(t, err)
	second, err := f.query.Query(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, f.counter.calls, "results are not cached")
}

func TestAvailability_Errors(t *testing.T) {
	f := newAvailabilityFixture(t)

	_, err := f.query.Query(context.Background(), AvailabilityRequest{DoctorID: uuid.New(), Days: 1})
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	_, err = f.query.Query(context.Background(), AvailabilityRequest{DoctorID: f.doctor.ID, Days: 500})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestAvailability_ConfigurationErrorSurfaces(t *testing.T) {
	f := newAvailabilityFixture(t)
	_, err := f.repo.UpsertOverride(context.Background(), ScheduleOverride{
		DoctorID:            f.doctor.ID,
		Date:                monday,
		Type:                OverrideSpecialHours,
		StartTime:           clockPtr(9, 0),
		EndTime:             clockPtr(10, 0),
		SlotDurationMinutes: intPtr(0),
	})
	require.NoError(t, err)

	_, err = f.query.Query(context.Background(), AvailabilityRequest{DoctorID: f.doctor.ID, From: monday, Days: 1})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestFindSlot(t *testing.T) {
	f := newAvailabilityFixture(t)
	f.counter.counts[SlotKey{Date: monday, Start: NewClock(9, 30)}] = 1
	doc := f.doctor

	slot, err := f.query.FindSlot(context.Background(), &doc, monday, NewClock(9, 30))
	require.NoError(t, err)
	assert.Equal(t, NewClock(10, 0), slot.EndTime)
	assert.Equal(t, 1, slot.BookedCount)

	_, err = f.query.FindSlot(context.Background(), &doc, monday, NewClock(9, 15))
	assert.ErrorIs(t, err, ErrSlotNotFound)

	_, err = f.query.FindSlot(context.Background(), &doc, monday.AddDate(0, 0, 1), NewClock(9, 0))
	assert.ErrorIs(t, err, ErrSlotNotFound)
}
