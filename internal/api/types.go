package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-booking/internal/appointment"
	"github.com/hackgods/doctor-appointment-booking/internal/schedule"
)

type CreateAppointmentRequest struct {
	PatientID        string                    `json:"patient_id"`
	DoctorID         string                    `json:"doctor_id"`
	FamilyMemberID   string                    `json:"family_member_id,omitempty"`
	Date             string                    `json:"date"`
	StartTime        schedule.Clock            `json:"start_time"`
	ConsultationType schedule.ConsultationType `json:"consultation_type"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type RescheduleRequest struct {
	Date      string         `json:"date"`
	StartTime schedule.Clock `json:"start_time"`
}

type PaymentConfirmationRequest struct {
	PaymentRef string `json:"payment_ref"`
}

type TemplateRequest struct {
	StartTime           schedule.Clock  `json:"start_time"`
	EndTime             schedule.Clock  `json:"end_time"`
	BreakStart          *schedule.Clock `json:"break_start,omitempty"`
	BreakEnd            *schedule.Clock `json:"break_end,omitempty"`
	SlotDurationMinutes int             `json:"slot_duration_minutes"`
	MaxPatientsPerSlot  int             `json:"max_patients_per_slot"`
}

type OverrideRequest struct {
	Type                schedule.OverrideType `json:"type"`
	StartTime           *schedule.Clock       `json:"start_time,omitempty"`
	EndTime             *schedule.Clock       `json:"end_time,omitempty"`
	SlotDurationMinutes *int                  `json:"slot_duration_minutes,omitempty"`
	MaxPatientsPerSlot  *int                  `json:"max_patients_per_slot,omitempty"`
	Reason              string                `json:"reason,omitempty"`
}

type SlotRefResponse struct {
	Date      string         `json:"date"`
	StartTime schedule.Clock `json:"start_time"`
	EndTime   schedule.Clock `json:"end_time"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID                 `json:"id"`
	PatientID          uuid.UUID                 `json:"patient_id"`
	DoctorID           uuid.UUID                 `json:"doctor_id"`
	HospitalID         uuid.UUID                 `json:"hospital_id"`
	FamilyMemberID     *uuid.UUID                `json:"family_member_id,omitempty"`
	Date               string                    `json:"date"`
	StartTime          schedule.Clock            `json:"start_time"`
	EndTime            schedule.Clock            `json:"end_time"`
	ConsultationType   schedule.ConsultationType `json:"consultation_type"`
	Status             string                    `json:"status"`
	ConsultationFee    int64                     `json:"consultation_fee"`
	PlatformFee        int64                     `json:"platform_fee"`
	TotalAmount        int64                     `json:"total_amount"`
	PaymentStatus      string                    `json:"payment_status"`
	PaymentOrderID     *string                   `json:"payment_order_id,omitempty"`
	RefundAmount       *int64                    `json:"refund_amount,omitempty"`
	ConfirmedAt        *time.Time                `json:"confirmed_at,omitempty"`
	CheckedInAt        *time.Time                `json:"checked_in_at,omitempty"`
	StartedAt          *time.Time                `json:"started_at,omitempty"`
	CompletedAt        *time.Time                `json:"completed_at,omitempty"`
	CancelledAt        *time.Time                `json:"cancelled_at,omitempty"`
	NoShowAt           *time.Time                `json:"no_show_at,omitempty"`
	RescheduledAt      *time.Time                `json:"rescheduled_at,omitempty"`
	CancelledBy        *uuid.UUID                `json:"cancelled_by,omitempty"`
	CancellationReason *string                   `json:"cancellation_reason,omitempty"`
	RescheduledFrom    *SlotRefResponse          `json:"rescheduled_from,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
}

type SlotResponse struct {
	StartTime         schedule.Clock              `json:"start_time"`
	EndTime           schedule.Clock              `json:"end_time"`
	ConsultationTypes []schedule.ConsultationType `json:"consultation_types"`
	MaxCapacity       int                         `json:"max_capacity"`
	BookedCount       int                         `json:"booked_count"`
	Remaining         int                         `json:"remaining"`
}

type DayAvailabilityResponse struct {
	Date        string         `json:"date"`
	IsAvailable bool           `json:"is_available"`
	Slots       []SlotResponse `json:"slots"`
}

type TemplateResponse struct {
	ID                  uuid.UUID       `json:"id"`
	DoctorID            uuid.UUID       `json:"doctor_id"`
	DayOfWeek           int             `json:"day_of_week"`
	StartTime           schedule.Clock  `json:"start_time"`
	EndTime             schedule.Clock  `json:"end_time"`
	BreakStart          *schedule.Clock `json:"break_start,omitempty"`
	BreakEnd            *schedule.Clock `json:"break_end,omitempty"`
	SlotDurationMinutes int             `json:"slot_duration_minutes"`
	MaxPatientsPerSlot  int             `json:"max_patients_per_slot"`
	IsActive            bool            `json:"is_active"`
}

type OverrideResponse struct {
	ID                  uuid.UUID             `json:"id"`
	DoctorID            uuid.UUID             `json:"doctor_id"`
	Date                string                `json:"date"`
	Type                schedule.OverrideType `json:"type"`
	StartTime           *schedule.Clock       `json:"start_time,omitempty"`
	EndTime             *schedule.Clock       `json:"end_time,omitempty"`
	SlotDurationMinutes *int                  `json:"slot_duration_minutes,omitempty"`
	MaxPatientsPerSlot  *int                  `json:"max_patients_per_slot,omitempty"`
	Reason              string                `json:"reason,omitempty"`
}

type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(b *appointment.Booking) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                 b.ID,
		PatientID:          b.PatientID,
		DoctorID:           b.DoctorID,
		HospitalID:         b.HospitalID,
		FamilyMemberID:     b.FamilyMemberID,
		Date:               b.Date.Format(schedule.DateLayout),
		StartTime:          b.StartTime,
		EndTime:            b.EndTime,
		ConsultationType:   b.ConsultationType,
		Status:             string(b.Status),
		ConsultationFee:    b.ConsultationFee,
		PlatformFee:        b.PlatformFee,
		TotalAmount:        b.TotalAmount,
		PaymentStatus:      string(b.PaymentStatus),
		PaymentOrderID:     b.PaymentOrderID,
		RefundAmount:       b.RefundAmount,
		ConfirmedAt:        b.ConfirmedAt,
		CheckedInAt:        b.CheckedInAt,
		StartedAt:          b.StartedAt,
		CompletedAt:        b.CompletedAt,
		CancelledAt:        b.CancelledAt,
		NoShowAt:           b.NoShowAt,
		RescheduledAt:      b.RescheduledAt,
		CancelledBy:        b.CancelledBy,
		CancellationReason: b.CancellationReason,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
	if b.RescheduledFrom != nil {
		resp.RescheduledFrom = &SlotRefResponse{
			Date:      b.RescheduledFrom.Date.Format(schedule.DateLayout),
			StartTime: b.RescheduledFrom.StartTime,
			EndTime:   b.RescheduledFrom.EndTime,
		}
	}
	return resp
}

func toAppointmentList(bookings []appointment.Booking) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, toAppointmentResponse(&bookings[i]))
	}
	return out
}

func toAvailabilityResponse(days []schedule.DayAvailability) []DayAvailabilityResponse {
	out := make([]DayAvailabilityResponse, 0, len(days))
	for _, d := range days {
		slots := make([]SlotResponse, 0, len(d.Slots))
		for _, s := range d.Slots {
			slots = append(slots, SlotResponse{
				StartTime:         s.StartTime,
				EndTime:           s.EndTime,
				ConsultationTypes: s.ConsultationTypes,
				MaxCapacity:       s.MaxCapacity,
				BookedCount:       s.BookedCount,
				Remaining:         s.Remaining(),
			})
		}
		out = append(out, DayAvailabilityResponse{
			Date:        d.Date.Format(schedule.DateLayout),
			IsAvailable: d.IsAvailable,
			Slots:       slots,
		})
	}
	return out
}

func toTemplateResponse(t *schedule.WeeklyTemplate) TemplateResponse {
	return TemplateResponse{
		ID:                  t.ID,
		DoctorID:            t.DoctorID,
		DayOfWeek:           int(t.DayOfWeek),
		StartTime:           t.StartTime,
		EndTime:             t.EndTime,
		BreakStart:          t.BreakStart,
		BreakEnd:            t.BreakEnd,
		SlotDurationMinutes: t.SlotDurationMinutes,
		MaxPatientsPerSlot:  t.MaxPatientsPerSlot,
		IsActive:            t.IsActive,
	}
}

func toOverrideResponse(o *schedule.ScheduleOverride) OverrideResponse {
	return OverrideResponse{
		ID:                  o.ID,
		DoctorID:            o.DoctorID,
		Date:                o.Date.Format(schedule.DateLayout),
		Type:                o.Type,
		StartTime:           o.StartTime,
		EndTime:             o.EndTime,
		SlotDurationMinutes: o.SlotDurationMinutes,
		MaxPatientsPerSlot:  o.MaxPatientsPerSlot,
		Reason:              o.Reason,
	}
}
