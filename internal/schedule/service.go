package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/doctor-appointment-booking/internal/apperr"
	"github.com/hackgods/doctor-appointment-booking/internal/identity"
)

var (
	ErrNotScheduleOwner = apperr.Forbidden("not_schedule_owner", "only the doctor's hospital staff or an admin may change this schedule")
	ErrInvalidTemplate  = apperr.BadRequest("invalid_template", "invalid weekly template")
	ErrInvalidOverride  = apperr.BadRequest("invalid_override", "invalid schedule override")
)

// Service manages weekly templates and date overrides of doctors.
type Service struct {
	repo Repository
	log  *logrus.Entry
}

func NewService(repo Repository, log *logrus.Entry) *Service {
	return &Service{repo: repo, log: log}
}

type TemplateInput struct {
	DoctorID            uuid.UUID
	DayOfWeek           time.Weekday
	StartTime           Clock
	EndTime             Clock
	BreakStart          *Clock
	BreakEnd            *Clock
	SlotDurationMinutes int
	MaxPatientsPerSlot  int
}

func (in TemplateInput) validate() error {
	switch {
	case in.DayOfWeek < time.Sunday || in.DayOfWeek > time.Saturday:
		return ErrInvalidTemplate.With("day of week must be 0 (Sunday) through 6 (Saturday)")
	case in.StartTime < 0 || in.EndTime > minutesPerDay:
		return ErrInvalidTemplate.With("working hours must fall within one day")
	case in.StartTime >= in.EndTime:
		return ErrInvalidTemplate.With("start time must be before end time")
	case in.SlotDurationMinutes <= 0:
		return ErrInvalidTemplate.With("slot duration must be positive")
	case in.SlotDurationMinutes > int(in.EndTime-in.StartTime):
		return ErrInvalidTemplate.With("slot duration is longer than the working window")
	case in.MaxPatientsPerSlot < 1:
		return ErrInvalidTemplate.With("max patients per slot must be at least 1")
	case (in.BreakStart == nil) != (in.BreakEnd == nil):
		return ErrInvalidTemplate.With("break start and end must be given together")
	}
	return nil
}

type OverrideInput struct {
	DoctorID            uuid.UUID
	Date                time.Time
	Type                OverrideType
	StartTime           *Clock
	EndTime             *Clock
	SlotDurationMinutes *int
	MaxPatientsPerSlot  *int
	Reason              string
}

func (in OverrideInput) validate() error {
	if !in.Type.Valid() {
		return ErrInvalidOverride.With(fmt.Sprintf("unknown override type %q", in.Type))
	}
	if in.Type != OverrideSpecialHours {
		return nil
	}
	switch {
	case in.StartTime == nil || in.EndTime == nil:
		return ErrInvalidOverride.With("special hours need a start and end time")
	case *in.StartTime >= *in.EndTime:
		return ErrInvalidOverride.With("start time must be before end time")
	case in.SlotDurationMinutes != nil && *in.SlotDurationMinutes <= 0:
		return ErrInvalidOverride.With("slot duration must be positive")
	case in.MaxPatientsPerSlot != nil && *in.MaxPatientsPerSlot < 1:
		return ErrInvalidOverride.With("max patients per slot must be at least 1")
	}
	return nil
}

// SetWeeklyTemplate stores the active template for one weekday, retiring the
// previous one so that historical slots stay explicable.
func (s *Service) SetWeeklyTemplate(ctx context.Context, actor identity.Actor, in TemplateInput) (*WeeklyTemplate, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, actor, in.DoctorID); err != nil {
		return nil, err
	}

	saved, err := s.repo.ReplaceActiveTemplate(ctx, WeeklyTemplate{
		DoctorID:            in.DoctorID,
		DayOfWeek:           in.DayOfWeek,
		StartTime:           in.StartTime,
		EndTime:             in.EndTime,
		BreakStart:          in.BreakStart,
		BreakEnd:            in.BreakEnd,
		SlotDurationMinutes: in.SlotDurationMinutes,
		MaxPatientsPerSlot:  in.MaxPatientsPerSlot,
		IsActive:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"doctor_id":   in.DoctorID,
		"template_id": saved.ID,
		"day":         in.DayOfWeek.String(),
		"actor_id":    actor.UserID,
	}).Info("weekly template updated")
	return saved, nil
}

func (s *Service) DeactivateTemplate(ctx context.Context, actor identity.Actor, doctorID, templateID uuid.UUID) (*WeeklyTemplate, error) {
	if _, err := s.authorize(ctx, actor, doctorID); err != nil {
		return nil, err
	}

	tpl, err := s.repo.GetTemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tpl.DoctorID != doctorID {
		return nil, ErrTemplateNotFound
	}
	if !tpl.IsActive {
		return tpl, nil
	}

	updated, err := s.repo.DeactivateTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("deactivate template: %w", err)
	}
	s.log.WithFields(logrus.Fields{"doctor_id": doctorID, "template_id": templateID}).Info("weekly template deactivated")
	return updated, nil
}

func (s *Service) ListTemplates(ctx context.Context, doctorID uuid.UUID, activeOnly bool) ([]WeeklyTemplate, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.repo.ListTemplates(ctx, doctorID, activeOnly)
}

// SetOverride upserts the single override of a doctor's date.
func (s *Service) SetOverride(ctx context.Context, actor identity.Actor, in OverrideInput) (*ScheduleOverride, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, actor, in.DoctorID); err != nil {
		return nil, err
	}

	o := ScheduleOverride{
		DoctorID: in.DoctorID,
		Date:     Day(in.Date),
		Type:     in.Type,
		Reason:   in.Reason,
	}
	if in.Type == OverrideSpecialHours {
		o.StartTime = in.StartTime
		o.EndTime = in.EndTime
		o.SlotDurationMinutes = in.SlotDurationMinutes
		o.MaxPatientsPerSlot = in.MaxPatientsPerSlot
	}

	saved, err := s.repo.UpsertOverride(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("save override: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"doctor_id": in.DoctorID,
		"date":      o.Date.Format(DateLayout),
		"type":      in.Type,
		"actor_id":  actor.UserID,
	}).Info("schedule override set")
	return saved, nil
}

func (s *Service) RemoveOverride(ctx context.Context, actor identity.Actor, doctorID uuid.UUID, date time.Time) error {
	if _, err := s.authorize(ctx, actor, doctorID); err != nil {
		return err
	}
	return s.repo.DeleteOverride(ctx, doctorID, date)
}

func (s *Service) ListOverrides(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]ScheduleOverride, error) {
	if to.Before(from) {
		return nil, ErrInvalidOverride.With("range end is before its start")
	}
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.repo.ListOverrides(ctx, doctorID, from, to)
}

// authorize loads the doctor and checks the actor may mutate its schedule.
func (s *Service) authorize(ctx context.Context, actor identity.Actor, doctorID uuid.UUID) (*Doctor, error) {
	doc, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if actor.Role == identity.RoleAdmin || actor.WorksAt(doc.HospitalID) {
		return doc, nil
	}
	return nil, ErrNotScheduleOwner
}
