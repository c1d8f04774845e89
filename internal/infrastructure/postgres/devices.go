package postgres

import (
	"context"
	"fmt"

	"github.com/go-api-notify/internal/domain"
)

// DeviceRepo resolves delivery addresses from the devices and users tables.
type DeviceRepo struct {
	db DBTX
}

func NewDeviceRepo(db DBTX) *DeviceRepo {
	return &DeviceRepo{db: db}
}

// ContactsForUsers loads push tokens and contact info for userIDs in one query.
// Rows are visited oldest device first; the first non-empty phone and email
// seen for a user win. Users without a device row are absent from the result.
func (r *DeviceRepo) ContactsForUsers(ctx context.Context, userIDs []string) (map[string]domain.Contacts, error) {
	out := make(map[string]domain.Contacts, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT d.user_id, d.expo_push_token, COALESCE(u.phone, ''), COALESCE(u.email, '')
		 FROM devices d
		 JOIN users u ON u.id = d.user_id
		 WHERE d.user_id = ANY($1)
		 ORDER BY d.created_at, d.expo_push_token`,
		userIDs)
	if err != nil {
		return nil, fmt.Errorf("query device contacts: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var userID, token, phone, email string
		if err := rows.Scan(&userID, &token, &phone, &email); err != nil {
			return nil, fmt.Errorf("scan device contact: %w", err)
		}
		c := out[userID]
		if _, dup := seen[token]; token != "" && !dup {
			seen[token] = struct{}{}
			c.PushTokens = append(c.PushTokens, token)
		}
		if c.Phone == "" {
			c.Phone = phone
		}
		if c.Email == "" {
			c.Email = email
		}
		out[userID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query device contacts: %w", err)
	}
	return out, nil
}

// DeleteByTokens removes every device registered with one of tokens.
func (r *DeviceRepo) DeleteByTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM devices WHERE expo_push_token = ANY($1)`, tokens)
	if err != nil {
		return 0, fmt.Errorf("delete devices by token: %w", err)
	}
	return tag.RowsAffected(), nil
}
