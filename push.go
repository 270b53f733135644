package prayersw

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Notification is the displayable descriptor handed to the host's
// notification capability. URL is the absolute click target.
type Notification struct {
	ID    string
	Title string
	Body  string
	Icon  string
	Badge string
	URL   string
}

// Notifier is the host capability for displaying notifications.
type Notifier interface {
	// Show displays the notification. It is awaited as part of the push
	// event's lifetime, so the worker is not torn down before the
	// notification appears.
	Show(ctx context.Context, n Notification) error
	// Close dismisses a previously shown notification.
	Close(ctx context.Context, id string) error
}

// pushPayload is the push message wire format. All fields are optional.
type pushPayload struct {
	Data struct {
		Title string `json:"title"`
		Body  string `json:"body"`
		URL   string `json:"url"`
	} `json:"data"`
}

// HandlePush decodes an inbound push payload and displays it.
// An empty payload is a no-op. A malformed payload is logged, dropped,
// and returned as an error; no notification is shown for it.
func (w *Worker) HandlePush(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}

	var p pushPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		w.log.Warn().Err(err).Msg("Dropping malformed push payload")
		return fmt.Errorf("decoding push payload: %w", err)
	}

	n := Notification{
		ID:    uuid.NewString(),
		Title: p.Data.Title,
		Body:  p.Data.Body,
		Icon:  w.push.Icon,
		Badge: w.push.Badge,
	}
	if n.Title == "" {
		n.Title = w.push.Title
	}
	if n.Body == "" {
		n.Body = w.push.Body
	}
	target := p.Data.URL
	if target == "" {
		target = DefaultURL
	}
	n.URL = w.resolvePath(target)

	if w.notifier == nil {
		w.log.Debug().Str("title", n.Title).Msg("No notifier, dropping push")
		return nil
	}
	if err := w.notifier.Show(ctx, n); err != nil {
		return fmt.Errorf("showing notification: %w", err)
	}
	w.log.Debug().
		Str("id", n.ID).
		Str("title", n.Title).
		Str("url", n.URL).
		Msg("Displayed notification")
	return nil
}
