package http

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"iter"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-api-notify/internal/application/notification"
	"github.com/go-api-notify/internal/config"
	"github.com/go-api-notify/internal/domain"
	jwtinfra "github.com/go-api-notify/internal/infrastructure/jwt"
	"github.com/go-api-notify/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSvc answers every call with empty results.
type stubSvc struct{ created int }

func (s *stubSvc) Create(context.Context, domain.CreateNotificationRequest) (*domain.Notification, error) {
	s.created++
	return nil, nil
}
func (s *stubSvc) CreateBatch(context.Context, []domain.CreateNotificationRequest) ([]domain.Notification, error) {
	return []domain.Notification{}, nil
}
func (s *stubSvc) List(context.Context, string, int, *time.Time) (*notification.Page, error) {
	return &notification.Page{Items: []domain.Notification{}}, nil
}
func (s *stubSvc) MarkRead(context.Context, string, string) error { return nil }
func (s *stubSvc) CountUnread(context.Context, string) (int, error) {
	return 3, nil
}
func (s *stubSvc) Subscribe(context.Context, string) iter.Seq2[domain.Notification, error] {
	return func(func(domain.Notification, error) bool) {}
}

func newProvider(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), 0600))
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub}), 0600))

	p, err := jwtinfra.NewProvider(&config.Config{JWTPrivateKeyPath: privPath, JWTPublicKeyPath: pubPath, JWTExpiry: time.Hour})
	require.NoError(t, err)
	return p
}

func TestRouter(t *testing.T) {
	p := newProvider(t)
	svc := &stubSvc{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	router := NewRouter(ctx, &config.Config{AllowedOrigins: []string{"*"}}, &Deps{
		NotificationSvc: svc,
		JWTProvider:     p,
		Logger:          logger.Discard(),
	})

	token := func(role string) string {
		s, err := p.Sign("u1", role)
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name   string
		method string
		path   string
		role   string
		body   string
		want   int
	}{
		{"ping is public", http.MethodGet, "/v1/health-check/ping", "", "", http.StatusOK},
		{"list requires auth", http.MethodGet, "/v1/notifications", "", "", http.StatusUnauthorized},
		{"list as user", http.MethodGet, "/v1/notifications", domain.RoleUser, "", http.StatusOK},
		{"unread count", http.MethodGet, "/v1/notifications/unread-count", domain.RoleUser, "", http.StatusOK},
		{"mark read", http.MethodPut, "/v1/notifications/n1/read", domain.RoleUser, "", http.StatusNoContent},
		{"create as user is forbidden", http.MethodPost, "/v1/notifications", domain.RoleUser, "{}", http.StatusForbidden},
		{"create as service", http.MethodPost, "/v1/notifications", domain.RoleService, "{}", http.StatusNoContent},
		{"batch as admin", http.MethodPost, "/v1/notifications/batch", domain.RoleAdmin, `{"notifications":[]}`, http.StatusCreated},
		{"metrics", http.MethodGet, "/metrics", "", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.role != "" {
				req.Header.Set("Authorization", "Bearer "+token(tt.role))
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
	assert.Equal(t, 1, svc.created)
}
