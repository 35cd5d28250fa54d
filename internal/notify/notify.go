// Package notify delivers booking lifecycle notifications. Delivery is fire and
// forget from the booking engine; failures are recorded in the outbox.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Event string

const (
	EventBookingCreated     Event = "booking_created"
	EventBookingConfirmed   Event = "booking_confirmed"
	EventBookingCheckedIn   Event = "booking_checked_in"
	EventBookingStarted     Event = "booking_started"
	EventBookingCompleted   Event = "booking_completed"
	EventBookingCancelled   Event = "booking_cancelled"
	EventBookingNoShow      Event = "booking_no_show"
	EventBookingRescheduled Event = "booking_rescheduled"
)

type Notification struct {
	Event     Event     `json:"event"`
	BookingID uuid.UUID `json:"booking_id"`
	Recipient uuid.UUID `json:"recipient"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Status    string    `json:"status"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	SentAt    time.Time `json:"sent_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log. Used when no channel is configured.
type LogNotifier struct {
	log *logrus.Entry
}

func NewLogNotifier(log *logrus.Entry) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.log.WithFields(logrus.Fields{
		"event":      n.Event,
		"booking_id": n.BookingID,
		"recipient":  n.Recipient,
		"status":     n.Status,
	}).Info("notification")
	return nil
}

// RedisPublisher publishes notifications as JSON on a pub/sub channel that the
// delivery service (SMS, push) subscribes to.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Notify(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
