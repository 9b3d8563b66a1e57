package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"dlmm-rebalancer/internal/domain"
)

// Sender delivers one rendered message to the chat transport.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// WebhookSender posts messages to a chat webhook as {"text": "..."}.
type WebhookSender struct {
	URL    string
	Client *http.Client
}

// Send posts the message. Non-2xx responses are errors.
func (s *WebhookSender) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Notifier renders alert and rebalance events as chat messages.
// Implements fanout.Notifier.
type Notifier struct {
	sender Sender
	logger *log.Logger
}

// NewNotifier creates a Notifier over the given sender.
func NewNotifier(sender Sender, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{sender: sender, logger: logger}
}

// Notify renders and sends one event. Unsupported event types are ignored.
func (n *Notifier) Notify(ctx context.Context, e *domain.Event) error {
	text := RenderEvent(e)
	if text == "" {
		return nil
	}
	return n.sender.Send(ctx, text)
}

// RenderEvent converts an alert or rebalance event to message text.
// Returns "" for event types the chat surface does not carry.
func RenderEvent(e *domain.Event) string {
	switch e.Type {
	case domain.EventAlert:
		if e.Alert == nil {
			return ""
		}
		return fmt.Sprintf("[%s] %s: %s", e.Alert.Severity, e.Alert.Title, e.Alert.Message)

	case domain.EventRebalance:
		if e.Rebalance == nil {
			return ""
		}
		a := e.Rebalance
		switch {
		case a.Kind == domain.ActionStopLoss && a.Status == domain.ActionSuccess:
			return fmt.Sprintf("Stop-loss closed position %s: %s", a.PositionID, a.Reason)
		case a.Status == domain.ActionFailed:
			return fmt.Sprintf("%s failed for position %s: %s", a.Kind, a.PositionID, a.Error)
		case a.Kind == domain.ActionRebalance && a.Status == domain.ActionSuccess && a.NewRange != nil:
			return fmt.Sprintf("Rebalanced position %s: [%d, %d] -> [%d, %d]",
				a.PositionID, a.OldRange.Lower, a.OldRange.Upper, a.NewRange.Lower, a.NewRange.Upper)
		default:
			return ""
		}

	default:
		return ""
	}
}
