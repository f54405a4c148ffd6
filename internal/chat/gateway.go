package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/taoyao-code/isp-ops/internal/phone"
)

// Sender pushes a reply to a chat user.
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

// Gateway posts outbound messages to the WhatsApp gateway send API.
type Gateway struct {
	URL     string
	Token   string
	Client  *http.Client
	Retries int
	Backoff []time.Duration
}

func NewGateway(url, token string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		URL:     url,
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
		Retries: 3,
		Backoff: []time.Duration{200 * time.Millisecond, 500 * time.Millisecond, time.Second},
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// Send retries network errors and 5xx answers; a 4xx answer is final.
func (g *Gateway) Send(ctx context.Context, to, text string) error {
	if g == nil || g.URL == "" {
		return errors.New("chat gateway not configured")
	}
	if n := phone.International(to); n != "" {
		to = n
	}
	body, err := json.Marshal(sendRequest{To: to, Message: text})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= g.Retries; attempt++ {
		code, err := g.post(ctx, body)
		switch {
		case err != nil:
			lastErr = err
		case code >= 200 && code < 300:
			return nil
		case code < 500:
			return fmt.Errorf("gateway answered %d", code)
		default:
			lastErr = fmt.Errorf("gateway answered %d", code)
		}
		if attempt == g.Retries || len(g.Backoff) == 0 {
			break
		}
		backoff := g.Backoff[min(attempt, len(g.Backoff)-1)]
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("send to %s: %w", to, lastErr)
}

func (g *Gateway) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
