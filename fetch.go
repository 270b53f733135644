package prayersw

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/brandonadamprice/prayer-sw/pkg/respcodec"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// ErrNotHandled signals that the worker declines a request; the caller
// must fall through to default network handling.
var ErrNotHandled = errors.New("request not handled by worker")

// fetchStatus is surfaced in the Worker-Cache response header.
type fetchStatus string

const (
	// Served from the cache without touching the network.
	statusHit fetchStatus = "hit"
	// Served from the network.
	statusNetwork fetchStatus = "network"
	// Network failed, served the stored entry instead.
	statusFallback fetchStatus = "fallback"
	// Auth route, left completely alone.
	statusBypass fetchStatus = "bypass"
)

const statusHeader = "Worker-Cache"

// IsNavigation reports whether the request is a full-page load rather
// than a sub-resource fetch.
func IsNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}

// HandleFetch runs the interception policy for one request:
//
//  1. Auth routes are not handled at all (ErrNotHandled), preserving
//     native cookie and redirect semantics for OAuth-style flows.
//  2. Navigations go network-first; a successful 200 is stored in the
//     background to keep the cache warm, a network failure falls back
//     to the stored entry for the exact URL.
//  3. Everything else goes cache-first; a miss is fetched from the
//     network and passed through without write-back.
//
// Exactly one response is returned unless the request is declined or
// both network and cache fail.
func (w *Worker) HandleFetch(ctx context.Context, r *http.Request) (*http.Response, error) {
	res, _, err := w.handleFetch(ctx, r)
	return res, err
}

func (w *Worker) handleFetch(ctx context.Context, r *http.Request) (*http.Response, fetchStatus, error) {
	logger := w.requestLogger(r)

	if w.shouldBypass(r) {
		logger.Trace().Str("path", r.URL.Path).Msg("Bypassing auth route")
		return nil, statusBypass, ErrNotHandled
	}
	if IsNavigation(r) {
		return w.networkFirst(ctx, r, logger)
	}
	return w.cacheFirst(ctx, r, logger)
}

// shouldBypass provides a very early hint that the request should be
// completely disregarded by the worker and left to default handling.
func (w *Worker) shouldBypass(r *http.Request) bool {
	for _, prefix := range w.bypass {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// networkFirst serves navigations: fresh content when online, the last
// stored copy when not.
func (w *Worker) networkFirst(ctx context.Context, r *http.Request, logger *zerolog.Logger) (*http.Response, fetchStatus, error) {
	key := w.resolveURL(r.URL)

	res, fetchErr := w.fetch(ctx, r)
	if fetchErr == nil {
		if res.StatusCode == http.StatusOK {
			w.storeInBackground(key, res, logger)
		}
		return res, statusNetwork, nil
	}

	logger.Debug().Err(fetchErr).Str("key", key).Msg("Network failed, trying cache")
	if bytes, ok, err := w.storage.Match(w.bucket, key); err == nil && ok {
		if cached, err := respcodec.BytesToResponse(bytes); err == nil {
			return cached, statusFallback, nil
		}
		// corrupted entry, delete it so the next attempt goes clean
		logger.Error().Str("key", key).Msg("Could not read from cache")
		w.storage.Delete(w.bucket, key)
	}
	return nil, statusNetwork, fetchErr
}

// cacheFirst serves sub-resources: zero-latency hits for assets that
// are immutable per deployed version.
func (w *Worker) cacheFirst(ctx context.Context, r *http.Request, logger *zerolog.Logger) (*http.Response, fetchStatus, error) {
	key := w.resolveURL(r.URL)

	bytes, ok, err := w.storage.Match(w.bucket, key)
	if err != nil {
		logger.Error().Err(err).Str("key", key).Msg("Could not read from cache")
	}
	if err == nil && ok {
		if cached, err := respcodec.BytesToResponse(bytes); err == nil {
			logger.Trace().Str("key", key).Msg("Cache hit and serving")
			return cached, statusHit, nil
		}
		logger.Error().Str("key", key).Msg("Corrupted cache entry")
		w.storage.Delete(w.bucket, key)
	}

	res, err := w.fetch(ctx, r)
	if err != nil {
		return nil, statusNetwork, err
	}
	return res, statusNetwork, nil
}

// fetch performs the network request for the incoming request against
// the origin.
func (w *Worker) fetch(ctx context.Context, r *http.Request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, w.resolveURL(r.URL), r.Body)
	if err != nil {
		return nil, err
	}
	copyHeader(req.Header, r.Header)
	return w.client.Do(req)
}

// storeInBackground serializes the response now (restoring its body for
// the caller) and hands the storage write to a background task. The
// write is best effort and never on the response's critical path; use
// Flush to wait for it.
func (w *Worker) storeInBackground(key string, res *http.Response, logger *zerolog.Logger) {
	bytes, err := respcodec.ResponseToBytes(res)
	if err != nil {
		logger.Error().Err(err).Str("key", key).Msg("Could not serialize response")
		return
	}
	w.background.Add(1)
	go func() {
		defer w.background.Done()
		if err := w.storage.Put(w.bucket, key, bytes); err != nil {
			w.log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
			return
		}
		w.log.Trace().Str("key", key).Msg("Cache write")
	}()
}

// ServeHTTP implements the http.Handler interface, serving the worker
// as an offline caching proxy in front of the origin. Declined
// requests are proxied through untouched.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	res, status, err := w.handleFetch(r.Context(), r)
	if errors.Is(err, ErrNotHandled) {
		rw.Header().Set(statusHeader, string(statusBypass))
		w.proxy.ServeHTTP(rw, r)
		return
	}
	if err != nil {
		w.requestLogger(r).Debug().Err(err).Str("url", r.URL.String()).Msg("Request failed")
		http.Error(rw, "Could not get response", http.StatusBadGateway)
		return
	}
	defer res.Body.Close()
	copyHeader(rw.Header(), res.Header)
	rw.Header().Set(statusHeader, string(status))
	rw.WriteHeader(res.StatusCode)
	io.Copy(rw, res.Body)
}

// requestLogger returns the logger from the request context.
// If no logger is found, it will return the worker logger.
func (w *Worker) requestLogger(r *http.Request) *zerolog.Logger {
	logger := hlog.FromRequest(r)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &w.log
	}
	return logger
}
