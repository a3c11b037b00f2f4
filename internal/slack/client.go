package slack

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/prite36/floraseven/internal/health"
)

type poster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// Client wraps the slack client. A nil *Client is a disabled notifier and
// every method is a no-op on it.
type Client struct {
	api       poster
	channelID string

	mu           sync.Mutex
	backoffUntil time.Time
	now          func() time.Time
}

// NewClient creates a new slack client
func NewClient(token, channelID string) *Client {
	if token == "" || channelID == "" {
		log.Println("[INFO] Slack token or channel ID is not configured. Slack notifications will be disabled.")
		return nil
	}
	return newClient(slack.New(token), channelID)
}

func newClient(api poster, channelID string) *Client {
	return &Client{api: api, channelID: channelID, now: time.Now}
}

// SendInfo sends a titled info message.
func (c *Client) SendInfo(title, message string) bool {
	return c.SendRichMessage(NewInfoMessage(title, message))
}

// SendMessage sends a simple text message wrapped as an info block.
func (c *Client) SendMessage(message string) bool {
	return c.SendInfo("FloraSeven", message)
}

// SendHealthAlert posts a health verdict to the alert channel.
func (c *Client) SendHealthAlert(overall health.OverallHealth, index health.ConditionIndex, at time.Time) bool {
	return c.SendRichMessage(NewHealthAlert(overall, index, at))
}

// PostReply answers in a thread of the given channel.
func (c *Client) PostReply(channelID, threadTS, text string) bool {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	return c.post(channelID, opts...)
}

// SendRichMessage sends a block kit message to the alert channel. It
// reports whether the message was accepted.
func (c *Client) SendRichMessage(options ...slack.MsgOption) bool {
	if c == nil {
		return false
	}
	return c.post(c.channelID, options...)
}

func (c *Client) post(channelID string, options ...slack.MsgOption) bool {
	if c == nil || c.api == nil {
		return false
	}
	if c.IsRateLimited() {
		log.Printf("[WARN] Skipping Slack message due to rate limit backoff")
		return false
	}

	_, _, err := c.api.PostMessage(channelID, options...)
	if err != nil {
		if c.isRateLimitError(err) {
			c.handleRateLimit(err)
		} else {
			log.Printf("[ERROR] Failed to send Slack message: %v", err)
		}
		return false
	}
	return true
}

// isRateLimitError checks if the error is related to rate limiting
func (c *Client) isRateLimitError(err error) bool {
	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "rate_limited") ||
		strings.Contains(errStr, "message_limit_exceeded") ||
		strings.Contains(errStr, "too_many_requests")
}

// handleRateLimit suppresses messages for a while. Slack's Retry-After wins
// when present.
func (c *Client) handleRateLimit(err error) {
	backoff := time.Minute
	var rl *slack.RateLimitedError
	switch {
	case errors.As(err, &rl) && rl.RetryAfter > 0:
		backoff = rl.RetryAfter
	case strings.Contains(strings.ToLower(err.Error()), "message_limit_exceeded"):
		backoff = 5 * time.Minute
	}

	c.mu.Lock()
	c.backoffUntil = c.clock().Add(backoff)
	c.mu.Unlock()
	log.Printf("[WARN] Slack rate limit detected (%v). Messages will be suppressed for %v", err, backoff)
}

func (c *Client) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// IsRateLimited returns true if the client is currently in a rate limit backoff period
func (c *Client) IsRateLimited() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock().Before(c.backoffUntil)
}
