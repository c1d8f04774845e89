package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-api-notify/internal/domain"
	"github.com/go-api-notify/internal/pkg/id"
	"github.com/go-api-notify/internal/pkg/logger"
	"github.com/jackc/pgx/v5"
)

const notificationColumns = `id, user_id, type, message, read, created_at, order_id, order_type, inquiry_id, quote_id`

// MaxListLimit caps a single page of ListByUser.
const MaxListLimit = 100

// NotificationRepo provides typed operations on the notifications table.
type NotificationRepo struct {
	db  DBTX
	log *slog.Logger
}

func NewNotificationRepo(db DBTX, log *slog.Logger) *NotificationRepo {
	return &NotificationRepo{db: db, log: log}
}

type notificationRow struct {
	ID        string
	UserID    string
	Type      string
	Message   string
	Read      bool
	CreatedAt time.Time
	OrderID   *string
	OrderType *string
	InquiryID *string
	QuoteID   *string
}

func (r *notificationRow) dest() []any {
	return []any{&r.ID, &r.UserID, &r.Type, &r.Message, &r.Read, &r.CreatedAt, &r.OrderID, &r.OrderType, &r.InquiryID, &r.QuoteID}
}

func (r notificationRow) toDomain() (domain.Notification, error) {
	t := domain.NotificationType(r.Type)
	n := domain.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      t,
		Message:   r.Message,
		Read:      r.Read,
		CreatedAt: r.CreatedAt,
		Payload:   domain.BuildPayload(t, deref(r.OrderID), domain.OrderType(deref(r.OrderType)), deref(r.InquiryID), deref(r.QuoteID)),
	}
	return n, n.Validate()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Create inserts n with a fresh id and read=false. CreatedAt defaults to now.
// It returns nil, nil when the insert wrote no row.
func (r *NotificationRepo) Create(ctx context.Context, n domain.Notification) (*domain.Notification, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	orderID, orderType, inquiryID, quoteID := n.Columns()

	var row notificationRow
	err := r.db.QueryRow(ctx,
		`INSERT INTO notifications (`+notificationColumns+`)
		 VALUES ($1, $2, $3, $4, false, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING
		 RETURNING `+notificationColumns,
		id.At(n.CreatedAt), n.UserID, string(n.Type), n.Message, n.CreatedAt, orderID, orderType, inquiryID, quoteID,
	).Scan(row.dest()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	created, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return &created, nil
}

// ListByUser returns up to limit notifications for userID, newest first. With a
// cursor only rows strictly older than it are returned. Rows that fail
// validation are logged and skipped, so a page may be shorter than limit.
// next is the created_at of the last row read, dropped or not, and is set only
// when the query filled the page.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID string, limit int, cursor *time.Time) (items []domain.Notification, next *time.Time, err error) {
	limit = clampLimit(limit)

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	args := []any{userID}
	if cursor != nil {
		query += ` AND created_at < $2`
		args = append(args, *cursor)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Notification, 0, limit)
	var (
		read int
		last time.Time
	)
	for rows.Next() {
		var row notificationRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, nil, fmt.Errorf("scan notification: %w", err)
		}
		read++
		last = row.CreatedAt
		n, err := row.toDomain()
		if err != nil {
			r.log.WarnContext(ctx, "dropping invalid notification row",
				logger.NotificationID(row.ID), logger.UserID(userID), logger.Error(err))
			continue
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("list notifications: %w", err)
	}
	if read == limit {
		next = &last
	}
	return out, next, nil
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// MarkRead sets read=true on the notification owned by userID. Missing rows are not an error.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID, notificationID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notifications SET read = true WHERE user_id = $1 AND id = $2`,
		userID, notificationID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// CountUnread returns the number of unread notifications of userID.
func (r *NotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1 AND read = false`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}
