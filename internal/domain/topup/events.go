package topup

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tapcard/tapcard-api/internal/pkg/momo"
)

// WakeChannel is the redis channel the status-poll worker listens on
const WakeChannel = "momo:requests:pending"

// EventType for realtime top-up messages
type EventType string

const (
	EventRequested EventType = "momo.requested"
	EventSucceeded EventType = "momo.succeeded"
	EventFailed    EventType = "momo.failed"
)

// Event is pushed to the paying account and, when set, the merchant's terminals
type Event struct {
	Type       EventType     `json:"type"`
	Reference  uuid.UUID     `json:"reference"`
	Provider   momo.Provider `json:"provider"`
	Status     momo.Status   `json:"status"`
	Amount     int64         `json:"amount"`
	Currency   string        `json:"currency"`
	AccountID  uuid.UUID     `json:"account_id"`
	MerchantID *uuid.UUID    `json:"merchant_id,omitempty"`
	OrderID    string        `json:"order_id,omitempty"`
	Message    string        `json:"message,omitempty"`
	At         time.Time     `json:"at"`
}

func newEvent(t EventType, req *Request, at time.Time) *Event {
	ev := &Event{
		Type:      t,
		Reference: req.Reference,
		Provider:  req.Provider,
		Status:    req.Status,
		Amount:    req.Amount,
		Currency:  req.Currency,
		AccountID: req.AccountID,
		OrderID:   req.OrderID.String,
		Message:   req.ProviderMessage.String,
		At:        at,
	}
	if req.MerchantID.Valid {
		id := req.MerchantID.UUID
		ev.MerchantID = &id
	}
	return ev
}

// Recipients returns the accounts an event is delivered to
func (e *Event) Recipients() []uuid.UUID {
	out := []uuid.UUID{e.AccountID}
	if e.MerchantID != nil && *e.MerchantID != e.AccountID {
		out = append(out, *e.MerchantID)
	}
	return out
}

// RedisWaker nudges the status-poll worker after a new request is stored
type RedisWaker struct {
	rdb *redis.Client
}

// NewRedisWaker creates worker wake-up publisher
func NewRedisWaker(rdb *redis.Client) *RedisWaker {
	return &RedisWaker{rdb: rdb}
}

// Wake publishes a wake-up; polling on the ticker still runs if this is lost
func (w *RedisWaker) Wake(ctx context.Context) {
	if w.rdb == nil {
		return
	}
	if err := w.rdb.Publish(ctx, WakeChannel, "1").Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to publish momo worker wake-up")
	}
}

// SubscribeWakeups forwards wake-ups from redis into wake without blocking
func SubscribeWakeups(ctx context.Context, rdb *redis.Client, wake chan<- struct{}) {
	sub := rdb.Subscribe(ctx, WakeChannel)
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Channel():
			if !ok {
				return
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}
