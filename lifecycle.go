package prayersw

import (
	"context"
	"fmt"
	"net/http"

	"github.com/brandonadamprice/prayer-sw/pkg/respcodec"
)

// Install precaches every manifest asset into the current bucket.
// Precaching is all-or-nothing: any asset that cannot be fetched with a
// 200 aborts the install, and the previously active version stays in
// charge until the next update cycle. On success the host is signaled
// to skip the waiting hold-back so this version activates immediately.
func (w *Worker) Install(ctx context.Context) error {
	for _, path := range w.manifest {
		if err := w.precache(ctx, path); err != nil {
			return fmt.Errorf("install aborted: %w", err)
		}
	}
	w.log.Info().Int("assets", len(w.manifest)).Msg("Precache complete")

	if w.lifecycle != nil {
		if err := w.lifecycle.SkipWaiting(ctx); err != nil {
			return fmt.Errorf("skip waiting: %w", err)
		}
	}
	return nil
}

func (w *Worker) precache(ctx context.Context, path string) error {
	target := w.resolvePath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("precaching %s: %w", path, err)
	}
	res, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("precaching %s: %w", path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("precaching %s: unexpected status %d", path, res.StatusCode)
	}
	bytes, err := respcodec.ResponseToBytes(res)
	if err != nil {
		return fmt.Errorf("precaching %s: %w", path, err)
	}
	if err := w.storage.Put(w.bucket, target, bytes); err != nil {
		return fmt.Errorf("precaching %s: %w", path, err)
	}
	w.log.Trace().Str("key", target).Msg("Precached asset")
	return nil
}

// Activate garbage-collects every bucket other than the current one and
// then claims all open pages. Deletion is awaited before the claim, so
// no page is ever controlled by this version while stale entries
// linger.
func (w *Worker) Activate(ctx context.Context) error {
	names, err := w.storage.Buckets()
	if err != nil {
		return fmt.Errorf("listing buckets: %w", err)
	}
	for _, name := range names {
		if name == w.bucket {
			continue
		}
		if err := w.storage.DeleteBucket(name); err != nil {
			return fmt.Errorf("deleting stale bucket %s: %w", name, err)
		}
		w.log.Debug().Str("stale", name).Msg("Deleted stale bucket")
	}

	if w.lifecycle != nil {
		if err := w.lifecycle.ClaimClients(ctx); err != nil {
			return fmt.Errorf("claiming clients: %w", err)
		}
	}
	return nil
}
