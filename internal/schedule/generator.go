package schedule

import (
	"fmt"
	"time"

	"github.com/hackgods/doctor-appointment-booking/internal/apperr"
)

var ErrConfiguration = apperr.New(apperr.KindConfiguration, "schedule_misconfigured", "doctor schedule is misconfigured")

const (
	defaultSlotDuration = 30
	defaultCapacity     = 1

	// a day cannot hold more one-minute slots than this
	maxSlotsPerDay = minutesPerDay
)

// GenerateInput is everything the generator needs for one date.
type GenerateInput struct {
	Date              time.Time
	Template          *WeeklyTemplate   // active template for Date's weekday, or nil
	Override          *ScheduleOverride // override for Date, or nil
	ConsultationTypes []ConsultationType
	Now               time.Time
	Location          *time.Location
}

// dayPlan is the resolved working window of one date.
type dayPlan struct {
	start, end           Clock
	breakStart, breakEnd Clock
	hasBreak             bool
	duration             int
	capacity             int
}

// GenerateSlots turns a template and override into the ordered bookable slots of
// one date. Slots starting at or before Now are dropped. The function has no side
// effects; calling it again with the same input yields the same slots.
func GenerateSlots(in GenerateInput) ([]Slot, error) {
	plan, ok := resolvePlan(in.Template, in.Override)
	if !ok {
		return []Slot{}, nil
	}
	if plan.duration <= 0 {
		return nil, ErrConfiguration.With(fmt.Sprintf("slot duration must be positive, got %d minutes", plan.duration))
	}
	if plan.capacity < 1 {
		return nil, ErrConfiguration.With(fmt.Sprintf("slot capacity must be at least 1, got %d", plan.capacity))
	}

	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	date := Day(in.Date)

	slots := make([]Slot, 0, int(plan.end-plan.start)/plan.duration+1)
	iterations := 0
	for cur := plan.start; cur.Add(plan.duration) <= plan.end; cur = cur.Add(plan.duration) {
		iterations++
		if iterations > maxSlotsPerDay {
			return nil, ErrConfiguration.With("slot generation exceeded the per-day iteration limit")
		}

		next := cur.Add(plan.duration)
		if plan.hasBreak && cur < plan.breakEnd && next > plan.breakStart {
			continue
		}
		if !cur.On(date, loc).After(in.Now) {
			continue
		}

		slots = append(slots, Slot{
			Date:              date,
			StartTime:         cur,
			EndTime:           next,
			ConsultationTypes: in.ConsultationTypes,
			MaxCapacity:       plan.capacity,
		})
	}

	return slots, nil
}

func resolvePlan(tpl *WeeklyTemplate, ov *ScheduleOverride) (dayPlan, bool) {
	if tpl != nil && !tpl.IsActive {
		tpl = nil
	}

	if ov != nil {
		if ov.Type.Closed() {
			return dayPlan{}, false
		}
		if ov.Type == OverrideSpecialHours {
			if ov.StartTime == nil || ov.EndTime == nil {
				return dayPlan{}, false
			}
			plan := dayPlan{
				start:    *ov.StartTime,
				end:      *ov.EndTime,
				duration: defaultSlotDuration,
				capacity: defaultCapacity,
			}
			if tpl != nil {
				plan.duration = tpl.SlotDurationMinutes
				plan.capacity = tpl.MaxPatientsPerSlot
			}
			if ov.SlotDurationMinutes != nil {
				plan.duration = *ov.SlotDurationMinutes
			}
			if ov.MaxPatientsPerSlot != nil {
				plan.capacity = *ov.MaxPatientsPerSlot
			}
			return plan, true
		}
	}

	if tpl == nil {
		return dayPlan{}, false
	}

	plan := dayPlan{
		start:    tpl.StartTime,
		end:      tpl.EndTime,
		duration: tpl.SlotDurationMinutes,
		capacity: tpl.MaxPatientsPerSlot,
	}
	// zero-length or inverted windows mean no break
	if tpl.BreakStart != nil && tpl.BreakEnd != nil && *tpl.BreakStart < *tpl.BreakEnd {
		plan.breakStart = *tpl.BreakStart
		plan.breakEnd = *tpl.BreakEnd
		plan.hasBreak = true
	}
	return plan, true
}
