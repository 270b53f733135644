package prayersw

import (
	"context"
	"fmt"
)

// Window is a live browser window handle supplied by the host. The
// worker only reads its URL and requests focus or navigation; window
// lifetime is owned by the host.
type Window interface {
	URL() string
	// Focus brings the window to the foreground and returns the
	// resulting handle.
	Focus(ctx context.Context) (Window, error)
	// Navigate points the window at a new URL and returns the handle
	// for the navigated window.
	Navigate(ctx context.Context, url string) (Window, error)
}

// Clients enumerates the open windows visible to this worker,
// including ones it does not currently control.
type Clients interface {
	List(ctx context.Context) ([]Window, error)
}

// WindowOpener is an optional capability of a Clients implementation.
// Hosts that cannot open windows simply do not implement it.
type WindowOpener interface {
	OpenWindow(ctx context.Context, url string) (Window, error)
}

// HandleNotificationClick routes a clicked notification to a window.
// The notification is closed first, then an open window showing the
// exact target URL is focused; failing that, the first open window is
// navigated to the target and focused; failing that, a new window is
// opened at the target when the host supports it. No windows and no
// open capability is a silent no-op.
func (w *Worker) HandleNotificationClick(ctx context.Context, n Notification) error {
	if w.notifier != nil {
		// best effort, the notification must not outlive the click
		if err := w.notifier.Close(ctx, n.ID); err != nil {
			w.log.Debug().Err(err).Str("id", n.ID).Msg("Could not close notification")
		}
	}

	target := w.resolvePath(n.URL)

	if w.clients == nil {
		return nil
	}
	windows, err := w.clients.List(ctx)
	if err != nil {
		return fmt.Errorf("listing windows: %w", err)
	}

	var selected Window
	for _, win := range windows {
		if win.URL() == target {
			selected = win
			break
		}
	}
	if selected == nil && len(windows) > 0 {
		// tie-break is whatever order the host returned
		selected = windows[0]
	}

	if selected == nil {
		opener, ok := w.clients.(WindowOpener)
		if !ok {
			return nil
		}
		if _, err := opener.OpenWindow(ctx, target); err != nil {
			return fmt.Errorf("opening window: %w", err)
		}
		w.log.Debug().Str("url", target).Msg("Opened new window")
		return nil
	}

	if selected.URL() != target {
		moved, err := selected.Navigate(ctx, target)
		if err != nil {
			return fmt.Errorf("navigating window: %w", err)
		}
		if moved != nil {
			selected = moved
		}
	}
	if _, err := selected.Focus(ctx); err != nil {
		return fmt.Errorf("focusing window: %w", err)
	}
	w.log.Debug().Str("url", target).Msg("Focused window")
	return nil
}
