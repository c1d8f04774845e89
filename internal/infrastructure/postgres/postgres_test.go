package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/go-api-notify/internal/application/notification"
	"github.com/go-api-notify/internal/domain"
	"github.com/go-api-notify/internal/pkg/logger"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cols = []string{"id", "user_id", "type", "message", "read", "created_at", "order_id", "order_type", "inquiry_id", "quote_id"}

func ptr(s string) *string { return &s }

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

// --- NotificationRepo ---

func TestCreate_ReturnsStoredRow(t *testing.T) {
	m := newMock(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n := domain.Notification{
		UserID: "u1", Type: domain.TypeOrderPlaced, Message: "placed", CreatedAt: at,
		Payload: domain.OrderRef{OrderID: "o1", OrderType: domain.OrderTypeRegular},
	}

	m.ExpectQuery(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(pgxmock.AnyArg(), "u1", "ORDER_PLACED", "placed", at, ptr("o1"), ptr("REGULAR"), (*string)(nil), (*string)(nil)).
		WillReturnRows(m.NewRows(cols).AddRow("01J0", "u1", "ORDER_PLACED", "placed", false, at, ptr("o1"), ptr("REGULAR"), (*string)(nil), (*string)(nil)))

	got, err := NewNotificationRepo(m, logger.Discard()).Create(context.Background(), n)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "01J0", got.ID)
	assert.False(t, got.Read)
	assert.Equal(t, domain.OrderRef{OrderID: "o1", OrderType: domain.OrderTypeRegular}, got.Payload)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestCreate_NoRowWrittenIsNoOp(t *testing.T) {
	m := newMock(t)
	m.ExpectQuery(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(m.NewRows(cols))

	got, err := NewNotificationRepo(m, logger.Discard()).Create(context.Background(), domain.Notification{
		UserID: "u1", Type: domain.TypeInquiryReceived, Message: "m", Payload: domain.InquiryRef{InquiryID: "i1"},
	})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestListByUser_CursorClampAndInvalidRows(t *testing.T) {
	m := newMock(t)
	cursor := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	older := cursor.Add(-time.Hour)

	m.ExpectQuery(regexp.QuoteMeta("FROM notifications WHERE user_id = $1 AND created_at < $2 ORDER BY created_at DESC LIMIT $3")).
		WithArgs("u1", cursor, MaxListLimit).
		WillReturnRows(m.NewRows(cols).
			AddRow("a", "u1", "QUOTE_ACCEPTED", "ok", true, older, (*string)(nil), (*string)(nil), ptr("i1"), ptr("q1")).
			AddRow("b", "u1", "PARCEL_LOST", "?", false, older, (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil)).
			AddRow("c", "u1", "ORDER_SHIPPED", "no type", false, older, ptr("o1"), (*string)(nil), (*string)(nil), (*string)(nil)))

	got, next, err := NewNotificationRepo(m, logger.Discard()).ListByUser(context.Background(), "u1", 1000, &cursor)
	require.NoError(t, err)
	assert.Nil(t, next, "fewer rows than the limit ends the listing")
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, domain.QuoteRef{QuoteID: "q1", InquiryID: "i1"}, got[0].Payload)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestListByUser_FirstPage(t *testing.T) {
	m := newMock(t)
	m.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2")).
		WithArgs("u1", 1).
		WillReturnRows(m.NewRows(cols))

	got, next, err := NewNotificationRepo(m, logger.Discard()).ListByUser(context.Background(), "u1", 0, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Nil(t, next)
}

func TestListByUser_FullPageWithDroppedRowKeepsCursor(t *testing.T) {
	m := newMock(t)
	newer := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Minute)

	m.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2")).
		WithArgs("u1", 2).
		WillReturnRows(m.NewRows(cols).
			AddRow("a", "u1", "INQUIRY_RECEIVED", "ok", false, newer, (*string)(nil), (*string)(nil), ptr("i1"), (*string)(nil)).
			AddRow("b", "u1", "PARCEL_LOST", "?", false, older, (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil)))

	got, next, err := NewNotificationRepo(m, logger.Discard()).ListByUser(context.Background(), "u1", 2, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	require.NotNil(t, next)
	assert.True(t, next.Equal(older))
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestServiceList_DroppedRowDoesNotEndPaging(t *testing.T) {
	m := newMock(t)
	newer := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Minute)

	m.ExpectBegin()
	m.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2")).
		WithArgs("u1", 2).
		WillReturnRows(m.NewRows(cols).
			AddRow("a", "u1", "INQUIRY_RECEIVED", "ok", false, newer, (*string)(nil), (*string)(nil), ptr("i1"), (*string)(nil)).
			AddRow("b", "u1", "PARCEL_LOST", "?", false, older, (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil)))
	m.ExpectCommit()
	m.ExpectRollback()

	svc := notification.NewService(notification.ServiceDeps{UnitOfWork: NewStore(m, logger.Discard()), Logger: logger.Discard()})
	page, err := svc.List(context.Background(), "u1", 2, nil)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotNil(t, page.NextCursor)
	assert.True(t, page.NextCursor.Equal(older))
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestMarkRead_ScopedToOwner(t *testing.T) {
	m := newMock(t)
	m.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read = true WHERE user_id = $1 AND id = $2")).
		WithArgs("u1", "n1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, NewNotificationRepo(m, logger.Discard()).MarkRead(context.Background(), "u1", "n1"))
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestCountUnread(t *testing.T) {
	m := newMock(t)
	m.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM notifications WHERE user_id = $1 AND read = false")).
		WithArgs("u1").
		WillReturnRows(m.NewRows([]string{"count"}).AddRow(4))

	n, err := NewNotificationRepo(m, logger.Discard()).CountUnread(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

// --- DeviceRepo ---

func TestContactsForUsers_FirstSeenWins(t *testing.T) {
	m := newMock(t)
	m.ExpectQuery(regexp.QuoteMeta("FROM devices d")).
		WithArgs([]string{"u1", "u2"}).
		WillReturnRows(m.NewRows([]string{"user_id", "expo_push_token", "phone", "email"}).
			AddRow("u1", "ExponentPushToken[a]", "", "u1@example.com").
			AddRow("u1", "ExponentPushToken[b]", "+1555", "other@example.com").
			AddRow("u1", "ExponentPushToken[a]", "+1999", "").
			AddRow("u2", "ExponentPushToken[c]", "", ""))

	got, err := NewDeviceRepo(m).ContactsForUsers(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.Contacts{
		"u1": {PushTokens: []string{"ExponentPushToken[a]", "ExponentPushToken[b]"}, Phone: "+1555", Email: "u1@example.com"},
		"u2": {PushTokens: []string{"ExponentPushToken[c]"}},
	}, got)
}

func TestContactsForUsers_EmptyInputSkipsQuery(t *testing.T) {
	m := newMock(t)
	got, err := NewDeviceRepo(m).ContactsForUsers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestDeleteByTokens(t *testing.T) {
	m := newMock(t)
	m.ExpectExec(regexp.QuoteMeta("DELETE FROM devices WHERE expo_push_token = ANY($1)")).
		WithArgs([]string{"t1", "t2"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := NewDeviceRepo(m).DeleteByTokens(context.Background(), []string{"t1", "t2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = NewDeviceRepo(m).DeleteByTokens(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, m.ExpectationsWereMet())
}

// --- Store ---

func TestStoreDo_CommitsOnSuccess(t *testing.T) {
	m := newMock(t)
	m.ExpectBegin()
	m.ExpectExec(regexp.QuoteMeta("UPDATE notifications")).WithArgs("u1", "n1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	m.ExpectCommit()
	m.ExpectRollback()

	err := NewStore(m, logger.Discard()).Do(context.Background(), func(r notification.Repos) error {
		return r.Notifications.MarkRead(context.Background(), "u1", "n1")
	})
	require.NoError(t, err)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestStoreDo_RollsBackOnError(t *testing.T) {
	m := newMock(t)
	m.ExpectBegin()
	m.ExpectRollback()
	m.ExpectRollback()

	boom := errors.New("fan out failed")
	err := NewStore(m, logger.Discard()).Do(context.Background(), func(notification.Repos) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestHealthcheck(t *testing.T) {
	m := newMock(t)

	m.ExpectPing()
	assert.NoError(t, Healthcheck(m)(context.Background()))

	m.ExpectPing().WillReturnError(errors.New("down"))
	assert.ErrorIs(t, Healthcheck(m)(context.Background()), ErrHealthcheckFailed)
}
