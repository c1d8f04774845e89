// Package expo sends push notifications through the Expo push service.
package expo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-api-notify/internal/config"
)

// MaxMessagesPerRequest is the Expo limit for one push request.
const MaxMessagesPerRequest = 100

// errorDeviceNotRegistered is the ticket error Expo returns for tokens that
// no longer belong to an installed app.
const errorDeviceNotRegistered = "DeviceNotRegistered"

var ErrPushRejected = errors.New("expo rejected push request")

type message struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound,omitempty"`
}

type ticket struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details"`
}

type response struct {
	Data   []ticket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Client implements push delivery. The zero value is not usable.
type Client struct {
	http        *http.Client
	url         string
	accessToken string
	log         *slog.Logger
}

func NewClient(cfg config.Expo, log *slog.Logger) *Client {
	return NewClientWithHTTP(cfg, &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}, log)
}

// NewClientWithHTTP uses a caller-provided http.Client, e.g. in tests.
func NewClientWithHTTP(cfg config.Expo, hc *http.Client, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{http: hc, url: cfg.PushURL, accessToken: cfg.AccessToken, log: log}
}

// IsPushToken reports whether token has the Expo push token format.
func IsPushToken(token string) bool {
	for _, prefix := range []string{"ExponentPushToken[", "ExpoPushToken["} {
		if strings.HasPrefix(token, prefix) && strings.HasSuffix(token, "]") && len(token) > len(prefix)+1 {
			return true
		}
	}
	return false
}

// Send pushes one message per token in chunks of MaxMessagesPerRequest. It
// returns the tokens Expo will never deliver to: malformed ones and those
// whose ticket reports DeviceNotRegistered. A failing chunk does not stop the
// others; their errors are joined.
func (c *Client) Send(ctx context.Context, tokens []string, title, body string) ([]string, error) {
	var invalid []string
	msgs := make([]message, 0, len(tokens))
	for _, t := range tokens {
		if !IsPushToken(t) {
			invalid = append(invalid, t)
			continue
		}
		msgs = append(msgs, message{To: t, Title: title, Body: body, Sound: "default"})
	}

	var errs []error
	for start := 0; start < len(msgs); start += MaxMessagesPerRequest {
		chunk := msgs[start:min(start+MaxMessagesPerRequest, len(msgs))]
		stale, err := c.sendChunk(ctx, chunk)
		invalid = append(invalid, stale...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return invalid, errors.Join(errs...)
}

func (c *Client) sendChunk(ctx context.Context, chunk []message) ([]string, error) {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return nil, fmt.Errorf("marshal push messages: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read push response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: status %d: %s", ErrPushRejected, resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode push response: %w", err)
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s: %s", ErrPushRejected, out.Errors[0].Code, out.Errors[0].Message)
	}

	var (
		stale  []string
		failed int
	)
	for i, t := range out.Data {
		if i >= len(chunk) || t.Status != "error" {
			continue
		}
		if t.Details.Error == errorDeviceNotRegistered {
			stale = append(stale, chunk[i].To)
			continue
		}
		failed++
		c.log.WarnContext(ctx, "push ticket error",
			slog.String("error_code", t.Details.Error), slog.String("message", t.Message))
	}
	if failed > 0 {
		return stale, fmt.Errorf("%w: %d of %d tickets failed", ErrPushRejected, failed, len(chunk))
	}
	return stale, nil
}
