package notification

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/go-api-notify/internal/application/fanout"
	"github.com/go-api-notify/internal/domain"
	"github.com/go-api-notify/internal/pkg/logger"
)

// Page size bounds for List.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// NotificationStore is the persistence the service needs for notifications.
type NotificationStore interface {
	Create(ctx context.Context, n domain.Notification) (*domain.Notification, error)
	// ListByUser returns a page and the cursor of the next one. next is nil
	// once the rows are exhausted, even when rows were dropped from items.
	ListByUser(ctx context.Context, userID string, limit int, cursor *time.Time) (items []domain.Notification, next *time.Time, err error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	CountUnread(ctx context.Context, userID string) (int, error)
}

// Repos are the repositories bound to one transaction.
type Repos struct {
	Notifications NotificationStore
	Devices       fanout.DeviceDirectory
}

// UnitOfWork runs fn inside one transaction. A non-nil error from fn rolls
// back every write made through repos.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(repos Repos) error) error
}

// Dispatcher fans persisted notifications out. Implemented by *fanout.Engine.
type Dispatcher interface {
	Send(ctx context.Context, dir fanout.DeviceDirectory, notifications []domain.Notification) (fanout.Report, error)
}

// Subscriber streams live notifications for one user.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) iter.Seq2[domain.Notification, error]
}

// Page is one slice of a user's notifications, newest first. NextCursor is
// set when more rows may follow. Items can be shorter than the limit while a
// cursor is still returned.
type Page struct {
	Items      []domain.Notification
	NextCursor *time.Time
}

type Service interface {
	Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error)
	CreateBatch(ctx context.Context, reqs []domain.CreateNotificationRequest) ([]domain.Notification, error)
	List(ctx context.Context, userID string, limit int, cursor *time.Time) (*Page, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	CountUnread(ctx context.Context, userID string) (int, error)
	Subscribe(ctx context.Context, userID string) iter.Seq2[domain.Notification, error]
}

type ServiceDeps struct {
	UnitOfWork UnitOfWork
	Dispatcher Dispatcher
	Subscriber Subscriber
	Logger     *slog.Logger
}

type service struct {
	uow        UnitOfWork
	dispatcher Dispatcher
	subscriber Subscriber
	log        *slog.Logger
}

func NewService(deps ServiceDeps) Service {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &service{
		uow:        deps.UnitOfWork,
		dispatcher: deps.Dispatcher,
		subscriber: deps.Subscriber,
		log:        log,
	}
}

// Create persists one notification and fans it out in the same transaction.
// It returns nil when the store skipped the write.
func (s *service) Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	n, err := req.ToNotification()
	if err != nil {
		return nil, err
	}

	var created *domain.Notification
	err = s.uow.Do(ctx, func(r Repos) error {
		stored, err := r.Notifications.Create(ctx, n)
		if err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		if stored == nil {
			return nil
		}
		created = stored
		return s.dispatch(ctx, r.Devices, []domain.Notification{*stored})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateBatch persists every request and fans the stored ones out with a
// single recipient lookup. Any invalid request fails the whole batch before
// anything is written.
func (s *service) CreateBatch(ctx context.Context, reqs []domain.CreateNotificationRequest) ([]domain.Notification, error) {
	if len(reqs) == 0 {
		return []domain.Notification{}, nil
	}
	pending := make([]domain.Notification, 0, len(reqs))
	for i, req := range reqs {
		n, err := req.ToNotification()
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		pending = append(pending, n)
	}

	var created []domain.Notification
	err := s.uow.Do(ctx, func(r Repos) error {
		created = make([]domain.Notification, 0, len(pending))
		for _, n := range pending {
			stored, err := r.Notifications.Create(ctx, n)
			if err != nil {
				return fmt.Errorf("create notification: %w", err)
			}
			if stored != nil {
				created = append(created, *stored)
			}
		}
		return s.dispatch(ctx, r.Devices, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) dispatch(ctx context.Context, dir fanout.DeviceDirectory, ns []domain.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	report, err := s.dispatcher.Send(ctx, dir, ns)
	if err != nil {
		return fmt.Errorf("fan out: %w", err)
	}
	if report.Failed > 0 {
		s.log.WarnContext(ctx, "fan-out finished with failed deliveries",
			slog.Int("notifications", report.Notifications),
			slog.Int("attempts", report.Attempts),
			slog.Int("failed", report.Failed))
	}
	return nil
}

// List returns a page of the user's notifications, newest first.
func (s *service) List(ctx context.Context, userID string, limit int, cursor *time.Time) (*Page, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	var (
		items []domain.Notification
		next  *time.Time
	)
	err := s.uow.Do(ctx, func(r Repos) error {
		var err error
		items, next, err = r.Notifications.ListByUser(ctx, userID, limit, cursor)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if items == nil {
		items = []domain.Notification{}
	}

	return &Page{Items: items, NextCursor: next}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID string) error {
	err := s.uow.Do(ctx, func(r Repos) error {
		return r.Notifications.MarkRead(ctx, userID, notificationID)
	})
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	s.log.DebugContext(ctx, "notification marked read", logger.UserID(userID), logger.NotificationID(notificationID))
	return nil
}

func (s *service) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.uow.Do(ctx, func(r Repos) error {
		var err error
		count, err = r.Notifications.CountUnread(ctx, userID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (s *service) Subscribe(ctx context.Context, userID string) iter.Seq2[domain.Notification, error] {
	return s.subscriber.Subscribe(ctx, userID)
}
