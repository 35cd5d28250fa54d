package schedule

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2025-01-06 is a Monday.
var monday = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func clockPtr(h, m int) *Clock {
	c := NewClock(h, m)
	return &c
}

func intPtr(n int) *int { return &n }

func mondayTemplate() *WeeklyTemplate {
	return &WeeklyTemplate{
		DayOfWeek:           time.Monday,
		StartTime:           NewClock(9, 0),
		EndTime:             NewClock(12, 0),
		SlotDurationMinutes: 30,
		MaxPatientsPerSlot:  1,
		IsActive:            true,
	}
}

func starts(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.StartTime.String())
	}
	return out
}

func TestGenerateSlots_WeeklyTemplate(t *testing.T) {
	slots, err := GenerateSlots(GenerateInput{
		Date:     monday,
		Template: mondayTemplate(),
		Now:      monday.AddDate(0, 0, -1),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}, starts(slots))
	for _, s := range slots {
		assert.Equal(t, 1, s.MaxCapacity)
		assert.Equal(t, 0, s.BookedCount)
		assert.Equal(t, 30, s.DurationMinutes())
	}
}

func TestGenerateSlots_BreakWindow(t *testing.T) {
	cases := []struct {
		name       string
		breakStart *Clock
		breakEnd   *Clock
		want       []string
	}{
		{
			name:       "aligned break",
			breakStart: clockPtr(10, 0),
			breakEnd:   clockPtr(11, 0),
			want:       []string{"09:00", "09:30", "11:00", "11:30"},
		},
		{
			name:       "slot starting inside break is dropped entirely",
			breakStart: clockPtr(10, 15),
			breakEnd:   clockPtr(10, 45),
			want:       []string{"09:00", "09:30", "11:00", "11:30"},
		},
		{
			name:       "zero length break is no break",
			breakStart: clockPtr(10, 0),
			breakEnd:   clockPtr(10, 0),
			want:       []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"},
		},
		{
			name:       "inverted break is no break",
			breakStart: clockPtr(11, 0),
			breakEnd:   clockPtr(10, 0),
			want:       []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tpl := mondayTemplate()
			tpl.BreakStart = c.breakStart
			tpl.BreakEnd = c.breakEnd

			slots, err := GenerateSlots(GenerateInput{Date: monday, Template: tpl, Now: monday.AddDate(0, 0, -1)})
			require.NoError(t, err)
			assert.Equal(t, c.want, starts(slots))
		})
	}
}

func TestGenerateSlots_TrailingPartialSlotDropped(t *testing.T) {
	tpl := mondayTemplate()
	tpl.EndTime = NewClock(10, 45)
	tpl.SlotDurationMinutes = 30

	slots, err := GenerateSlots(GenerateInput{Date: monday, Template: tpl, Now: monday.AddDate(0, 0, -1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:00"}, starts(slots))
}

func TestGenerateSlots_Overrides(t *testing.T) {
	for _, typ := range []OverrideType{OverrideHoliday, OverrideLeave} {
		t.Run(string(typ), func(t *testing.T) {
			slots, err := GenerateSlots(GenerateInput{
				Date:     monday,
				Template: mondayTemplate(),
				Override: &ScheduleOverride{Date: monday, Type: typ},
				Now:      monday.AddDate(0, 0, -1),
			})
			require.NoError(t, err)
			assert.Empty(t, slots)
		})
	}

	t.Run("special hours supersede template", func(t *testing.T) {
		tpl := mondayTemplate()
		tpl.BreakStart = clockPtr(14, 0)
		tpl.BreakEnd = clockPtr(15, 0)
		tpl.MaxPatientsPerSlot = 3

		slots, err := GenerateSlots(GenerateInput{
			Date:     monday,
			Template: tpl,
			Override: &ScheduleOverride{
				Date:                monday,
				Type:                OverrideSpecialHours,
				StartTime:           clockPtr(14, 0),
				EndTime:             clockPtr(16, 0),
				SlotDurationMinutes: intPtr(60),
			},
			Now: monday.AddDate(0, 0, -1),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"14:00", "15:00"}, starts(slots))
		assert.Equal(t, 3, slots[0].MaxCapacity)
	})

	t.Run("special hours without template", func(t *testing.T) {
		slots, err := GenerateSlots(GenerateInput{
			Date: monday,
			Override: &ScheduleOverride{
				Date:      monday,
				Type:      OverrideSpecialHours,
				StartTime: clockPtr(8, 0),
				EndTime:   clockPtr(9, 0),
			},
			Now: monday.AddDate(0, 0, -1),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"08:00", "08:30"}, starts(slots))
		assert.Equal(t, 1, slots[0].MaxCapacity)
	})
}

func TestGenerateSlots_NoTemplate(t *testing.T) {
	slots, err := GenerateSlots(GenerateInput{Date: monday, Now: monday.AddDate(0, 0, -1)})
	require.NoError(t, err)
	assert.Empty(t, slots)

	tpl := mondayTemplate()
	tpl.IsActive = false
	slots, err = GenerateSlots(GenerateInput{Date: monday, Template: tpl, Now: monday.AddDate(0, 0, -1)})
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestGenerateSlots_DropsPastSlotsToday(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	// 10:00 local on the Monday
	now := time.Date(2025, 1, 6, 10, 0, 0, 0, loc)

	slots, err := GenerateSlots(GenerateInput{
		Date:     monday,
		Template: mondayTemplate(),
		Now:      now,
		Location: loc,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"10:30", "11:00", "11:30"}, starts(slots))
}

func TestGenerateSlots_PastDateIsEmpty(t *testing.T) {
	slots, err := GenerateSlots(GenerateInput{
		Date:     monday,
		Template: mondayTemplate(),
		Now:      monday.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestGenerateSlots_ConfigurationError(t *testing.T) {
	for _, d := range []int{0, -15} {
		t.Run(fmt.Sprintf("duration %d", d), func(t *testing.T) {
			tpl := mondayTemplate()
			tpl.SlotDurationMinutes = d

			_, err := GenerateSlots(GenerateInput{Date: monday, Template: tpl, Now: monday.AddDate(0, 0, -1)})
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}

	tpl := mondayTemplate()
	tpl.MaxPatientsPerSlot = 0
	_, err := GenerateSlots(GenerateInput{Date: monday, Template: tpl, Now: monday.AddDate(0, 0, -1)})
	require.ErrorIs(t, err, ErrConfiguration)
}

// Exhaustive sweep over small configurations: slots never overlap each other or
// the break, and always fit inside working hours.
func TestGenerateSlots_NoOverlapProperty(t *testing.T) {
	before := monday.AddDate(0, 0, -1)
	durations := []int{5, 10, 15, 20, 25, 30, 45, 60, 90}

	for start := 6 * 60; start <= 10*60; start += 35 {
		for end := start + 30; end <= 14*60; end += 55 {
			for _, d := range durations {
				for bs := start - 20; bs <= end; bs += 40 {
					for bl := -10; bl <= 70; bl += 20 {
						bStart, bEnd := Clock(bs), Clock(bs+bl)
						tpl := &WeeklyTemplate{
							StartTime:           Clock(start),
							EndTime:             Clock(end),
							BreakStart:          &bStart,
							BreakEnd:            &bEnd,
							SlotDurationMinutes: d,
							MaxPatientsPerSlot:  2,
							IsActive:            true,
						}

						slots, err := GenerateSlots(GenerateInput{Date: monday, Template: tpl, Now: before})
						require.NoError(t, err)

						for i, s := range slots {
							assert.GreaterOrEqual(t, s.StartTime, tpl.StartTime)
							assert.LessOrEqual(t, s.EndTime, tpl.EndTime)
							if bStart < bEnd {
								overlaps := s.StartTime < bEnd && s.EndTime > bStart
								assert.False(t, overlaps, "slot %s overlaps break %s-%s", s.StartTime, bStart, bEnd)
							}
							if i > 0 {
								assert.GreaterOrEqual(t, s.StartTime, slots[i-1].EndTime)
							}
						}
					}
				}
			}
		}
	}
}

func TestGenerateSlots_Restartable(t *testing.T) {
	in := GenerateInput{Date: monday, Template: mondayTemplate(), Now: monday.AddDate(0, 0, -1)}

	first, err := GenerateSlots(in)
	require.NoError(t, err)
	second, err := GenerateSlots(in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
