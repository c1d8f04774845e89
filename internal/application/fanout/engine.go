// Package fanout delivers persisted notifications across every channel a
// recipient can be reached on and prunes push tokens the provider rejects.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-api-notify/internal/domain"
	"github.com/go-api-notify/internal/pkg/logger"
)

// Channel names a delivery mechanism.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// DefaultTimeout bounds one delivery attempt when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// DeviceDirectory is the persistence the engine needs. Callers pass one bound
// to their transaction.
type DeviceDirectory interface {
	ContactsForUsers(ctx context.Context, userIDs []string) (map[string]domain.Contacts, error)
	DeleteByTokens(ctx context.Context, tokens []string) (int64, error)
}

// Publisher performs in-app delivery.
type Publisher interface {
	Publish(ctx context.Context, n domain.Notification) error
}

// PushSender delivers to device tokens and returns the tokens the provider
// reported as invalid.
type PushSender interface {
	Send(ctx context.Context, tokens []string, title, body string) ([]string, error)
}

// SMSSender delivers to phone numbers.
type SMSSender interface {
	Send(ctx context.Context, phones []string, n domain.Notification) error
}

// EmailSender delivers to email addresses.
type EmailSender interface {
	Send(ctx context.Context, addresses []string, n domain.Notification) error
}

// Recorder observes attempts. Implemented by the metrics package.
type Recorder interface {
	ObserveAttempt(channel string, err error, took time.Duration)
	DevicesRemoved(n int64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(string, error, time.Duration) {}
func (nopRecorder) DevicesRemoved(int64)                        {}

// Report summarises one Send call.
type Report struct {
	Notifications   int
	Attempts        int
	Failed          int
	FailedByChannel map[Channel]int
	RemovedTokens   []string
	RemovedDevices  int64
}

// Engine fans notifications out to in-app, push, SMS and email delivery.
// In-app delivery always happens. Nil push, SMS or email senders disable
// their channel.
type Engine struct {
	publisher   Publisher
	push        PushSender
	sms         SMSSender
	email       EmailSender
	timeout     time.Duration
	concurrency int
	recorder    Recorder
	log         *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds every attempt. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithConcurrency caps in-flight attempts per Send. Zero means unlimited.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// New builds an Engine. It panics when publisher is nil.
func New(publisher Publisher, push PushSender, sms SMSSender, email EmailSender, opts ...Option) *Engine {
	if publisher == nil {
		panic("fanout: publisher is required")
	}
	e := &Engine{
		publisher: publisher,
		push:      push,
		sms:       sms,
		email:     email,
		timeout:   DefaultTimeout,
		recorder:  nopRecorder{},
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type attempt struct {
	channel Channel
	notif   domain.Notification
	do      func(ctx context.Context) (invalidTokens []string, err error)
}

type result struct {
	invalidTokens []string
	err           error
}

// Send delivers already-persisted notifications. Recipient lookup and stale
// token removal go through dir in one call each; their failures are returned.
// Delivery failures are isolated per attempt and only reported.
func (e *Engine) Send(ctx context.Context, dir DeviceDirectory, notifications []domain.Notification) (Report, error) {
	report := Report{Notifications: len(notifications), FailedByChannel: map[Channel]int{}}
	if len(notifications) == 0 {
		return report, nil
	}

	contacts, err := dir.ContactsForUsers(ctx, distinctUserIDs(notifications))
	if err != nil {
		return report, fmt.Errorf("resolve recipients: %w", err)
	}

	attempts := e.plan(notifications, contacts)
	results := make([]result, len(attempts))

	var g errgroup.Group
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, a := range attempts {
		g.Go(func() error {
			results[i] = e.run(ctx, a)
			return nil
		})
	}
	_ = g.Wait()

	report.Attempts = len(attempts)
	var stale []string
	for i, res := range results {
		if res.err != nil {
			report.Failed++
			report.FailedByChannel[attempts[i].channel]++
		}
		stale = append(stale, res.invalidTokens...)
	}
	slices.Sort(stale)
	stale = slices.Compact(stale)
	if len(stale) == 0 {
		return report, nil
	}

	removed, err := dir.DeleteByTokens(ctx, stale)
	if err != nil {
		return report, fmt.Errorf("remove stale devices: %w", err)
	}
	report.RemovedTokens = stale
	report.RemovedDevices = removed
	e.recorder.DevicesRemoved(removed)
	e.log.InfoContext(ctx, "removed stale push registrations",
		slog.Int("tokens", len(stale)), slog.Int64("devices", removed))
	return report, nil
}

// plan lists the attempts for every notification: in-app always, then push,
// SMS and email when the recipient has the matching address.
func (e *Engine) plan(notifications []domain.Notification, contacts map[string]domain.Contacts) []attempt {
	attempts := make([]attempt, 0, len(notifications)*4)
	for _, n := range notifications {
		attempts = append(attempts, attempt{channel: ChannelInApp, notif: n, do: func(ctx context.Context) ([]string, error) {
			return nil, e.publisher.Publish(ctx, n)
		}})

		c := contacts[n.UserID]
		if e.push != nil && len(c.PushTokens) > 0 {
			tokens := c.PushTokens
			attempts = append(attempts, attempt{channel: ChannelPush, notif: n, do: func(ctx context.Context) ([]string, error) {
				return e.push.Send(ctx, tokens, n.Title(), n.Message)
			}})
		}
		if e.sms != nil && c.Phone != "" {
			phone := c.Phone
			attempts = append(attempts, attempt{channel: ChannelSMS, notif: n, do: func(ctx context.Context) ([]string, error) {
				return nil, e.sms.Send(ctx, []string{phone}, n)
			}})
		}
		if e.email != nil && c.Email != "" {
			addr := c.Email
			attempts = append(attempts, attempt{channel: ChannelEmail, notif: n, do: func(ctx context.Context) ([]string, error) {
				return nil, e.email.Send(ctx, []string{addr}, n)
			}})
		}
	}
	return attempts
}

// run executes one attempt under its own timeout. A panicking sender counts
// as a failed attempt.
func (e *Engine) run(ctx context.Context, a attempt) (res result) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = result{err: fmt.Errorf("%s sender panicked: %v", a.channel, r)}
		}
		e.recorder.ObserveAttempt(string(a.channel), res.err, time.Since(start))
		if res.err != nil {
			e.log.WarnContext(ctx, "notification delivery failed",
				slog.String("channel", string(a.channel)),
				logger.NotificationID(a.notif.ID),
				logger.UserID(a.notif.UserID),
				logger.Error(res.err))
		}
	}()

	res.invalidTokens, res.err = a.do(ctx)
	return res
}

func distinctUserIDs(notifications []domain.Notification) []string {
	ids := make([]string, 0, len(notifications))
	seen := make(map[string]struct{}, len(notifications))
	for _, n := range notifications {
		if _, ok := seen[n.UserID]; ok {
			continue
		}
		seen[n.UserID] = struct{}{}
		ids = append(ids, n.UserID)
	}
	return ids
}
