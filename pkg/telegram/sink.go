// Package telegram delivers reminder texts through the Telegram Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrDeliveryFailure marks a transient send failure. The reminder scheduler
// retries these on its next cycle; nothing else does.
var ErrDeliveryFailure = errors.New("delivery failure")

const defaultAPIBase = "https://api.telegram.org"

// Client is a minimal sendMessage client.
type Client struct {
	token   string
	apiBase string
	httpc   *http.Client
}

// NewClient creates a Client for the given bot token. apiBase overrides the
// Telegram endpoint when non-empty (tests point it at a local server).
func NewClient(token, apiBase string) *Client {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &Client{
		token:   token,
		apiBase: strings.TrimRight(apiBase, "/"),
		// the per-delivery timeout comes in through ctx; this is only a
		// hard upper bound in case a caller forgets one
		httpc: &http.Client{Timeout: 30 * time.Second},
	}
}

// apiResponse is the slice of Telegram's envelope we care about.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Deliver sends text to the chat. Any transport error, non-2xx status or
// ok=false envelope comes back wrapped in ErrDeliveryFailure.
func (c *Client) Deliver(ctx context.Context, chatID int64, text string) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("text", text)

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrDeliveryFailure, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !body.OK {
		return fmt.Errorf("%w: status %d: %s", ErrDeliveryFailure, resp.StatusCode, body.Description)
	}
	return nil
}
