// Package chatwork posts messages through the Chatwork REST API (v2).
package chatwork

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

const DefaultBaseURL = "https://api.chatwork.com"

type Config struct {
	BaseURL string
	// Token is used when a post carries no api token of its own.
	Token   string
	Timeout time.Duration
}

// Client is a kit.Poster for Chatwork rooms.
type Client struct {
	base  string
	token string
	http  *http.Client
	log   logx.Logger
}

// APIError is a non-2xx answer from Chatwork.
type APIError struct {
	Status int
	Errors []string
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("chatwork: http=%d: %s", e.Status, strings.Join(e.Errors, "; "))
	}
	return fmt.Sprintf("chatwork: http=%d", e.Status)
}

// Permanent reports a client error that a retry cannot fix. 429 is excluded.
func (e *APIError) Permanent() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusTooManyRequests
}

func New(cfg Config, log logx.Logger) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base:  base,
		token: strings.TrimSpace(cfg.Token),
		http:  &http.Client{Timeout: timeout},
		log:   log,
	}
}

func (c *Client) Name() string { return "chatwork" }

// Post sends p.Body to room p.RoomID.
func (c *Client) Post(ctx context.Context, p kit.Post) (kit.MessageRef, error) {
	token := strings.TrimSpace(p.APIToken)
	if token == "" {
		token = c.token
	}
	if token == "" {
		return kit.MessageRef{}, kit.NoRetry(errors.New("chatwork: api token is empty"))
	}
	room := strings.TrimSpace(p.RoomID)
	if room == "" {
		return kit.MessageRef{}, kit.NoRetry(errors.New("chatwork: room id is empty"))
	}

	form := url.Values{}
	form.Set("body", p.Body)
	if p.SelfUnread {
		form.Set("self_unread", "1")
	} else {
		form.Set("self_unread", "0")
	}

	endpoint := c.base + "/v2/rooms/" + url.PathEscape(room) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return kit.MessageRef{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-chatworktoken", token)

	resp, err := c.http.Do(req)
	if err != nil {
		return kit.MessageRef{}, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		var out struct {
			Errors []string `json:"errors"`
		}
		if json.Unmarshal(body, &out) == nil {
			apiErr.Errors = out.Errors
		}
		if apiErr.Permanent() {
			return kit.MessageRef{}, kit.NoRetry(apiErr)
		}
		return kit.MessageRef{}, apiErr
	}

	var out struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		c.log.Debug("chatwork response not decoded", logx.Err(err))
	}
	return kit.MessageRef{RoomID: room, MessageID: out.MessageID}, nil
}
