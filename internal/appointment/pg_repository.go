package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/doctor-appointment-booking/internal/schedule"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const (
	pgUniqueViolation = "23505"

	constraintSlotPatient = "bookings_slot_patient_active"
	constraintLiveDay     = "bookings_patient_doctor_day_live"
	constraintIdempotency = "bookings_idempotency"
)

// statuses that do not hold slot capacity; mirrors AppointmentStatus.HoldsCapacity
const releasedStatuses = `('cancelled', 'no_show')`

const bookingColumns = `id, patient_id, doctor_id, hospital_id, family_member_id, booking_date, start_time, end_time,
	consultation_type, status, consultation_fee, platform_fee, total_amount, payment_status, payment_ref,
	payment_order_id, refund_amount, idempotency_key, confirmed_at, checked_in_at, started_at, completed_at,
	cancelled_at, no_show_at, rescheduled_at, cancelled_by, cancellation_reason, rescheduled_from_date,
	rescheduled_from_start, rescheduled_from_end, created_at, updated_at`

// Helpers

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var start, end, fromStart, fromEnd pgtype.Time
	var fromDate pgtype.Date

	err := row.Scan(
		&b.ID,
		&b.PatientID,
		&b.DoctorID,
		&b.HospitalID,
		&b.FamilyMemberID,
		&b.Date,
		&start,
		&end,
		&b.ConsultationType,
		&b.Status,
		&b.ConsultationFee,
		&b.PlatformFee,
		&b.TotalAmount,
		&b.PaymentStatus,
		&b.PaymentRef,
		&b.PaymentOrderID,
		&b.RefundAmount,
		&b.IdempotencyKey,
		&b.ConfirmedAt,
		&b.CheckedInAt,
		&b.StartedAt,
		&b.CompletedAt,
		&b.CancelledAt,
		&b.NoShowAt,
		&b.RescheduledAt,
		&b.CancelledBy,
		&b.CancellationReason,
		&fromDate,
		&fromStart,
		&fromEnd,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	b.Date = schedule.Day(b.Date)
	b.StartTime = *schedule.ClockFromPg(start)
	b.EndTime = *schedule.ClockFromPg(end)
	if fromDate.Valid && fromStart.Valid && fromEnd.Valid {
		b.RescheduledFrom = &SlotRef{
			Date:      schedule.Day(fromDate.Time),
			StartTime: *schedule.ClockFromPg(fromStart),
			EndTime:   *schedule.ClockFromPg(fromEnd),
		}
	}
	return &b, nil
}

func scanBookings(rows pgx.Rows) ([]Booking, error) {
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintIdempotency:
		return ErrIdempotencyReplay
	case constraintLiveDay, constraintSlotPatient:
		return ErrDuplicateBooking
	}
	return err
}

// lockSlot takes a transaction-scoped advisory lock on the slot key so that
// concurrent check-and-write statements on one slot run one after another.
func lockSlot(ctx context.Context, tx pgx.Tx, key string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("lock slot: %w", err)
	}
	return nil
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) GetFamilyMember(ctx context.Context, id uuid.UUID) (*FamilyMember, error) {
	var fm FamilyMember
	err := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, name, relation
		FROM family_members
		WHERE id = $1
	`, id).Scan(&fm.ID, &fm.PatientID, &fm.Name, &fm.Relation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFamilyMemberNotFound
		}
		return nil, err
	}
	return &fm, nil
}

func (r *PgRepository) FindLiveBooking(ctx context.Context, patientID, doctorID uuid.UUID, date time.Time) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE patient_id = $1
		  AND doctor_id = $2
		  AND booking_date = $3
		  AND status NOT IN ('completed', 'cancelled', 'no_show')
		LIMIT 1
	`, patientID, doctorID, schedule.Day(date))
	return scanBooking(row)
}

func (r *PgRepository) FindByIdempotencyKey(ctx context.Context, patientID uuid.UUID, key string) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE patient_id = $1
		  AND idempotency_key = $2
	`, patientID, key)
	return scanBooking(row)
}

func (r *PgRepository) CountActiveBookings(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (map[schedule.SlotKey]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT booking_date, start_time, count(*)
		FROM bookings
		WHERE doctor_id = $1
		  AND booking_date BETWEEN $2 AND $3
		  AND status NOT IN `+releasedStatuses+`
		GROUP BY booking_date, start_time
	`, doctorID, schedule.Day(from), schedule.Day(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[schedule.SlotKey]int)
	for rows.Next() {
		var date time.Time
		var start pgtype.Time
		var n int
		if err := rows.Scan(&date, &start, &n); err != nil {
			return nil, err
		}
		counts[schedule.SlotKey{Date: schedule.Day(date), Start: *schedule.ClockFromPg(start)}] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *PgRepository) InsertBookingIfCapacityAvailable(ctx context.Context, b *Booking, capacity int) (*Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := lockSlot(ctx, tx, b.LockKey()); err != nil {
		return nil, err
	}

	if b.IdempotencyKey != nil {
		var exists bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM bookings WHERE patient_id = $1 AND idempotency_key = $2)
		`, b.PatientID, *b.IdempotencyKey).Scan(&exists)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrIdempotencyReplay
		}
	}

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO bookings (id, patient_id, doctor_id, hospital_id, family_member_id, booking_date, start_time,
		                      end_time, consultation_type, status, consultation_fee, platform_fee, total_amount,
		                      payment_status, idempotency_key, confirmed_at, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now(), now()
		WHERE (
			SELECT count(*)
			FROM bookings
			WHERE doctor_id = $3
			  AND booking_date = $6
			  AND start_time = $7
			  AND status NOT IN `+releasedStatuses+`
		) < $17
		RETURNING `+bookingColumns,
		b.ID, b.PatientID, b.DoctorID, b.HospitalID, b.FamilyMemberID, schedule.Day(b.Date),
		schedule.ClockToPg(b.StartTime), schedule.ClockToPg(b.EndTime), b.ConsultationType, b.Status,
		b.ConsultationFee, b.PlatformFee, b.TotalAmount, b.PaymentStatus, b.IdempotencyKey, b.ConfirmedAt,
		capacity,
	)

	saved, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrCapacityExhausted
		}
		return nil, mapUniqueViolation(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapUniqueViolation(err)
	}
	return saved, nil
}

func (r *PgRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from AppointmentStatus, c StatusChange) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status              = $3,
		    confirmed_at        = CASE WHEN $3 = 'confirmed'   THEN $4 ELSE confirmed_at END,
		    checked_in_at       = CASE WHEN $3 = 'checked_in'  THEN $4 ELSE checked_in_at END,
		    started_at          = CASE WHEN $3 = 'in_progress' THEN $4 ELSE started_at END,
		    completed_at        = CASE WHEN $3 = 'completed'   THEN $4 ELSE completed_at END,
		    cancelled_at        = CASE WHEN $3 = 'cancelled'   THEN $4 ELSE cancelled_at END,
		    no_show_at          = CASE WHEN $3 = 'no_show'     THEN $4 ELSE no_show_at END,
		    cancelled_by        = COALESCE($5, cancelled_by),
		    cancellation_reason = COALESCE($6, cancellation_reason),
		    refund_amount       = COALESCE($7, refund_amount),
		    payment_status      = COALESCE($8, payment_status),
		    payment_ref         = COALESCE($9, payment_ref),
		    updated_at          = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+bookingColumns,
		id, from, c.To, c.At, c.CancelledBy, c.CancellationReason, c.RefundAmount, c.PaymentStatus, c.PaymentRef,
	)

	updated, err := scanBooking(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		if _, getErr := r.GetAppointmentByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStatusChanged
	}
	return updated, err
}

func (r *PgRepository) RescheduleIfCapacityAvailable(ctx context.Context, id uuid.UUID, rs Reschedule) (*Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	current, err := scanBooking(tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, err
	}
	if current.Status != rs.From {
		return nil, ErrStatusChanged
	}

	if err := lockSlot(ctx, tx, schedule.LockKey(current.DoctorID, rs.Date, rs.StartTime)); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE bookings b
		SET rescheduled_from_date  = b.booking_date,
		    rescheduled_from_start = b.start_time,
		    rescheduled_from_end   = b.end_time,
		    booking_date           = $2,
		    start_time             = $3,
		    end_time               = $4,
		    status                 = 'rescheduled',
		    rescheduled_at         = $5,
		    updated_at             = now()
		WHERE b.id = $1
		  AND (
			SELECT count(*)
			FROM bookings o
			WHERE o.doctor_id = b.doctor_id
			  AND o.booking_date = $2
			  AND o.start_time = $3
			  AND o.id <> b.id
			  AND o.status NOT IN `+releasedStatuses+`
		  ) < $6
		RETURNING `+bookingColumns,
		id, schedule.Day(rs.Date), schedule.ClockToPg(rs.StartTime), schedule.ClockToPg(rs.EndTime), rs.At, rs.Capacity,
	)

	moved, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrCapacityExhausted
		}
		return nil, mapUniqueViolation(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapUniqueViolation(err)
	}
	return moved, nil
}

func (r *PgRepository) SetPaymentOrder(ctx context.Context, id uuid.UUID, orderID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE bookings
		SET payment_order_id = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, orderID)
	if err != nil {
		return fmt.Errorf("set payment order: %w", err)
	}
	return nil
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE patient_id = $1
		ORDER BY booking_date DESC, start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE doctor_id = $1
		  AND booking_date = $2
		ORDER BY start_time, created_at
	`, doctorID, schedule.Day(date))
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at, dispatched_at, last_error)
		VALUES ($1, $2, $3, COALESCE($4::timestamptz, now()), $5, $6)
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt), ev.DispatchedAt, ev.LastError)
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func (r *PgRepository) ListUndispatchedEvents(ctx context.Context, maxAttempts, limit int) ([]EventLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, appointment_id, payload, created_at, dispatched_at, attempts, last_error
		FROM event_logs
		WHERE dispatched_at IS NULL
		  AND attempts < $1
		ORDER BY created_at
		LIMIT $2
	`, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []EventLog
	for rows.Next() {
		var ev EventLog
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.AppointmentID, &ev.Payload, &ev.CreatedAt,
			&ev.DispatchedAt, &ev.Attempts, &ev.LastError); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) MarkEventDispatched(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE event_logs
		SET dispatched_at = now(),
		    attempts = attempts + 1
		WHERE id = $1
	`, id)
	return err
}

func (r *PgRepository) RecordEventFailure(ctx context.Context, id int64, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE event_logs
		SET attempts = attempts + 1,
		    last_error = $2
		WHERE id = $1
	`, id, errMsg)
	return err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
