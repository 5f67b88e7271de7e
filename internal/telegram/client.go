// Package telegram delivers alert messages over the Telegram Bot API. It
// talks HTTP directly through the shared retrying client so rate-limit and
// terminal responses are classified per attempt, not per library call.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"matchbell/internal/httpx"
	"matchbell/internal/model"
	"matchbell/pkg/logx"
)

var (
	tokenPattern    = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{35,}$`)
	usernamePattern = regexp.MustCompile(`^@[a-zA-Z][a-zA-Z0-9_]{3,29}$`)
	chatIDPattern   = regexp.MustCompile(`^[1-9]\d*$`)
)

// ErrInvalidToken is returned when the configured token cannot be a bot token.
var ErrInvalidToken = errors.New("telegram: invalid bot token format")

type Config struct {
	Token  string
	APIURL string
	// Timeout bounds each API call.
	Timeout time.Duration
	// MaxRetries is passed to the underlying resilient client.
	MaxRetries int
	// Transport overrides the HTTP round tripper. Tests inject mocks here.
	Transport http.RoundTripper
}

// Client is the alert transport. Safe for concurrent use.
type Client struct {
	http    *httpx.Client
	baseURL string
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.telegram.org/bot"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		http: httpx.New(httpx.Config{
			MaxRetries: cfg.MaxRetries,
			Timeout:    cfg.Timeout,
			Transport:  cfg.Transport,
			// Bot API allows ~30 messages/s; stay under it.
			RatePerSec: 25,
		}, log),
		baseURL: cfg.APIURL + cfg.Token,
		log:     log,
	}
}

// ValidateToken checks the bot token shape without touching the network.
func ValidateToken(token string) error {
	if !tokenPattern.MatchString(strings.TrimSpace(token)) {
		return ErrInvalidToken
	}
	return nil
}

// ValidateRecipient accepts a positive integer chat id or an @username
// (letter start, 4-30 characters after the @). Invalid recipients are
// rejected before any network call is made. The stricter 5-15 digit rule for
// subscriber ids lives in model.ValidateUserID; the transport only cares
// that the chat id is addressable.
func ValidateRecipient(recipient string) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return errors.New("recipient is empty")
	}
	if strings.HasPrefix(recipient, "@") {
		if !usernamePattern.MatchString(recipient) {
			return fmt.Errorf("invalid username %q", recipient)
		}
		return nil
	}
	if !chatIDPattern.MatchString(recipient) {
		return fmt.Errorf("invalid chat id %q: must be a positive integer", recipient)
	}
	return nil
}

// Send delivers one HTML-formatted message to the recipient. Recipient and
// message are validated locally first; validation failures cost zero network
// calls. Transport failures come back as *DeliveryError.
func (c *Client) Send(ctx context.Context, recipient, text string) error {
	if err := ValidateRecipient(recipient); err != nil {
		return &DeliveryError{Recipient: recipient, Reason: err.Error(), Terminal: true}
	}
	if err := model.ValidateMessage(text); err != nil {
		return &DeliveryError{Recipient: recipient, Reason: err.Error(), Terminal: true}
	}

	payload := sendMessageRequest{
		ChatID:                recipient,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}
	var result struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.call(ctx, "sendMessage", payload, &result); err != nil {
		return c.deliveryError(recipient, err)
	}
	c.log.Debug("message delivered",
		logx.String("recipient", recipient),
		logx.Int64("message_id", result.MessageID))
	return nil
}

// SendTest delivers a canned self-check message.
func (c *Client) SendTest(ctx context.Context, recipient string) error {
	return c.Send(ctx, recipient, "✅ matchbell test message. Alerts are working.")
}

// ChatReachable reports whether the recipient's chat can be opened by the
// bot, without sending anything. Invalid recipients and any API failure
// (unknown chat, blocked bot, network trouble) come back as false, never as
// an error.
func (c *Client) ChatReachable(ctx context.Context, recipient string) bool {
	if err := ValidateRecipient(recipient); err != nil {
		return false
	}
	var chat struct {
		ID   int64  `json:"id"`
		Type string `json:"type"`
	}
	payload := struct {
		ChatID string `json:"chat_id"`
	}{ChatID: recipient}
	if err := c.call(ctx, "getChat", payload, &chat); err != nil {
		c.log.Debug("chat reachability probe failed",
			logx.String("recipient", recipient), logx.Err(err))
		return false
	}
	return true
}

// BotInfo is the subset of getMe the startup check cares about.
type BotInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsBot    bool   `json:"is_bot"`
}

// Me verifies the token against the live API and returns the bot identity.
func (c *Client) Me(ctx context.Context) (*BotInfo, error) {
	var info BotInfo
	if err := c.call(ctx, "getMe", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// WebhookInfo reports whether a webhook is set, which would starve long
// polling.
func (c *Client) WebhookInfo(ctx context.Context) (string, error) {
	var info struct {
		URL string `json:"url"`
	}
	if err := c.call(ctx, "getWebhookInfo", nil, &info); err != nil {
		return "", err
	}
	return info.URL, nil
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// apiEnvelope is the Bot API response wrapper.
type apiEnvelope struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (c *Client) call(ctx context.Context, method string, payload, result any) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("telegram: encode %s: %w", method, err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("telegram: decode %s response: %w", method, err)
	}
	if !env.OK {
		return fmt.Errorf("telegram: %s: %s (code %d)", method, env.Description, env.ErrorCode)
	}
	if result != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("telegram: decode %s result: %w", method, err)
		}
	}
	return nil
}

// deliveryError maps a transport error onto a recipient-scoped failure with a
// stable human-readable reason.
func (c *Client) deliveryError(recipient string, err error) *DeliveryError {
	de := &DeliveryError{Recipient: recipient, Reason: err.Error(), Err: err}

	var re *httpx.RequestError
	if errors.As(err, &re) {
		switch re.StatusCode {
		case http.StatusBadRequest:
			de.Terminal = true
			de.Reason = "bad request (chat not found or malformed message)"
		case http.StatusUnauthorized:
			de.Terminal = true
			de.Reason = "unauthorized (bot token rejected)"
		case http.StatusForbidden:
			de.Terminal = true
			de.Reason = "recipient blocked the bot"
		case http.StatusNotFound:
			de.Terminal = true
			de.Reason = "unknown api method or recipient"
		}
	}
	return de
}

// DeliveryError is one failed delivery to one recipient. Terminal failures
// will not succeed on resend with the same inputs.
type DeliveryError struct {
	Recipient string
	Reason    string
	Terminal  bool
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %s", e.Recipient, e.Reason)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
