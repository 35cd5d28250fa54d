package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const microsPerMinute = int64(time.Minute / time.Microsecond)

// ClockToPg encodes c for a TIME column.
func ClockToPg(c Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * microsPerMinute, Valid: true}
}

// ClockPtrToPg encodes an optional Clock; nil becomes NULL.
func ClockPtrToPg(c *Clock) pgtype.Time {
	if c == nil {
		return pgtype.Time{}
	}
	return ClockToPg(*c)
}

// ClockFromPg decodes a TIME column, truncating to the minute.
func ClockFromPg(t pgtype.Time) *Clock {
	if !t.Valid {
		return nil
	}
	c := Clock(t.Microseconds / microsPerMinute)
	return &c
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var types []string
	var fees map[string]int64

	err := row.Scan(
		&d.ID,
		&d.HospitalID,
		&d.Name,
		&d.Specialty,
		&d.IsActive,
		&d.IsVerified,
		&types,
		&fees,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.ConsultationTypes = make([]ConsultationType, 0, len(types))
	for _, t := range types {
		d.ConsultationTypes = append(d.ConsultationTypes, ConsultationType(t))
	}
	d.Fees = make(map[ConsultationType]int64, len(fees))
	for k, v := range fees {
		d.Fees[ConsultationType(k)] = v
	}
	return &d, nil
}

const templateColumns = `id, doctor_id, day_of_week, start_time, end_time, break_start, break_end,
	slot_duration_minutes, max_patients_per_slot, is_active, created_at, updated_at`

func scanTemplate(row pgx.Row) (*WeeklyTemplate, error) {
	var t WeeklyTemplate
	var day int16
	var start, end, breakStart, breakEnd pgtype.Time

	err := row.Scan(
		&t.ID,
		&t.DoctorID,
		&day,
		&start,
		&end,
		&breakStart,
		&breakEnd,
		&t.SlotDurationMinutes,
		&t.MaxPatientsPerSlot,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	t.DayOfWeek = time.Weekday(day)
	t.StartTime = *ClockFromPg(start)
	t.EndTime = *ClockFromPg(end)
	t.BreakStart = ClockFromPg(breakStart)
	t.BreakEnd = ClockFromPg(breakEnd)
	return &t, nil
}

const overrideColumns = `id, doctor_id, override_date, override_type, start_time, end_time,
	slot_duration_minutes, max_patients_per_slot, reason, created_at, updated_at`

func scanOverride(row pgx.Row) (*ScheduleOverride, error) {
	var o ScheduleOverride
	var start, end pgtype.Time

	err := row.Scan(
		&o.ID,
		&o.DoctorID,
		&o.Date,
		&o.Type,
		&start,
		&end,
		&o.SlotDurationMinutes,
		&o.MaxPatientsPerSlot,
		&o.Reason,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOverrideNotFound
		}
		return nil, err
	}

	o.Date = Day(o.Date)
	o.StartTime = ClockFromPg(start)
	o.EndTime = ClockFromPg(end)
	return &o, nil
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, hospital_id, name, specialty, is_active, is_verified,
		       consultation_types, fees, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) ListTemplates(ctx context.Context, doctorID uuid.UUID, activeOnly bool) ([]WeeklyTemplate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+templateColumns+`
		FROM weekly_templates
		WHERE doctor_id = $1
		  AND (is_active OR NOT $2)
		ORDER BY day_of_week, created_at
	`, doctorID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WeeklyTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) GetTemplateByID(ctx context.Context, id uuid.UUID) (*WeeklyTemplate, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM weekly_templates
		WHERE id = $1
	`, id)
	return scanTemplate(row)
}

func (r *PgRepository) ReplaceActiveTemplate(ctx context.Context, t WeeklyTemplate) (*WeeklyTemplate, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE weekly_templates
		SET is_active = false,
		    updated_at = now()
		WHERE doctor_id = $1
		  AND day_of_week = $2
		  AND is_active
	`, t.DoctorID, int16(t.DayOfWeek))
	if err != nil {
		return nil, fmt.Errorf("deactivate previous template: %w", err)
	}

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO weekly_templates (id, doctor_id, day_of_week, start_time, end_time, break_start, break_end,
		                              slot_duration_minutes, max_patients_per_slot, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true, now(), now())
		RETURNING `+templateColumns,
		t.ID, t.DoctorID, int16(t.DayOfWeek),
		ClockToPg(t.StartTime), ClockToPg(t.EndTime),
		ClockPtrToPg(t.BreakStart), ClockPtrToPg(t.BreakEnd),
		t.SlotDurationMinutes, t.MaxPatientsPerSlot,
	)
	saved, err := scanTemplate(row)
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *PgRepository) DeactivateTemplate(ctx context.Context, id uuid.UUID) (*WeeklyTemplate, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE weekly_templates
		SET is_active = false,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+templateColumns, id)
	return scanTemplate(row)
}

func (r *PgRepository) ListOverrides(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]ScheduleOverride, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+overrideColumns+`
		FROM schedule_overrides
		WHERE doctor_id = $1
		  AND override_date BETWEEN $2 AND $3
		ORDER BY override_date
	`, doctorID, Day(from), Day(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ScheduleOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) UpsertOverride(ctx context.Context, o ScheduleOverride) (*ScheduleOverride, error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO schedule_overrides (id, doctor_id, override_date, override_type, start_time, end_time,
		                                slot_duration_minutes, max_patients_per_slot, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (doctor_id, override_date) DO UPDATE
		SET override_type         = EXCLUDED.override_type,
		    start_time            = EXCLUDED.start_time,
		    end_time              = EXCLUDED.end_time,
		    slot_duration_minutes = EXCLUDED.slot_duration_minutes,
		    max_patients_per_slot = EXCLUDED.max_patients_per_slot,
		    reason                = EXCLUDED.reason,
		    updated_at            = now()
		RETURNING `+overrideColumns,
		o.ID, o.DoctorID, Day(o.Date), o.Type,
		ClockPtrToPg(o.StartTime), ClockPtrToPg(o.EndTime),
		o.SlotDurationMinutes, o.MaxPatientsPerSlot, o.Reason,
	)
	return scanOverride(row)
}

func (r *PgRepository) DeleteOverride(ctx context.Context, doctorID uuid.UUID, date time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM schedule_overrides
		WHERE doctor_id = $1
		  AND override_date = $2
	`, doctorID, Day(date))
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOverrideNotFound
	}
	return nil
}
