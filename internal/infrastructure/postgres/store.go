package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-api-notify/internal/application/notification"
	"github.com/jackc/pgx/v5"
)

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store runs units of work against the pool. Every Do call gets one
// transaction shared by the notification and device repositories.
type Store struct {
	db  beginner
	log *slog.Logger
}

func NewStore(db beginner, log *slog.Logger) *Store {
	return &Store{db: db, log: log}
}

// Do begins a transaction, hands fn repositories bound to it, and commits when
// fn returns nil. Any error rolls the transaction back.
func (s *Store) Do(ctx context.Context, fn func(notification.Repos) error) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(notification.Repos{
			Notifications: NewNotificationRepo(tx, s.log),
			Devices:       NewDeviceRepo(tx),
		})
	})
	if err != nil {
		return fmt.Errorf("unit of work: %w", err)
	}
	return nil
}
