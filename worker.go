// Package prayersw implements the offline worker core of the prayer
// app: a versioned precache of the application shell, a fetch
// interception policy (network-first navigations, cache-first static
// assets, auth routes untouched), and push notification display and
// click routing against host-provided window capabilities.
package prayersw

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"

	"github.com/brandonadamprice/prayer-sw/cache"

	"github.com/rs/zerolog"
)

const (
	// DefaultName is the cache bucket base name.
	DefaultName = "prayer-app"
	// DefaultTitle is shown when a push payload carries no title.
	DefaultTitle = "Prayer Reminder"
	// DefaultBody is shown when a push payload carries no body.
	DefaultBody = "It's time for prayer."
	// DefaultIcon and DefaultBadge decorate every notification.
	DefaultIcon  = "/static/icons/icon-192x192.png"
	DefaultBadge = "/static/icons/badge-72x72.png"
	// DefaultURL is the click target when a push payload carries none.
	DefaultURL = "/"
)

var defaultBypassPrefixes = []string{"/login", "/authorize"}

// Lifecycle is the host capability for worker activation signals.
// SkipWaiting asks the host to activate this worker version without the
// usual hold-back; ClaimClients puts all open pages under its control.
type Lifecycle interface {
	SkipWaiting(ctx context.Context) error
	ClaimClients(ctx context.Context) error
}

// PushDefaults override the built-in notification defaults.
type PushDefaults struct {
	Title string
	Body  string
	Icon  string
	Badge string
}

type Config struct {
	// Base name for the cache bucket, DefaultName if empty.
	Name string
	// Deployed version, e.g. "v10". Required.
	// The bucket name is derived as "<name>-<version>", and bumping the
	// version is the only cache invalidation mechanism.
	Version string
	// Static asset paths to precache on install.
	Manifest []string
	// URL of the origin server. Origins with paths are not supported.
	OriginURL url.URL
	// Storage for cache buckets. Required.
	Storage cache.Provider
	// Notifier displays push notifications. Optional; without it pushes
	// are decoded and dropped.
	Notifier Notifier
	// Clients enumerates open windows. Optional; without it clicks
	// resolve to the no-window path.
	Clients Clients
	// Lifecycle receives skip-waiting and claim signals. Optional.
	Lifecycle Lifecycle
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Request path prefixes left completely untouched by interception,
	// /login and /authorize if empty.
	BypassPrefixes []string
	// Push notification defaults.
	Push PushDefaults
	// HTTP client for origin fetches. A non-redirect-following client
	// is used if nil.
	Client *http.Client
}

// Worker is the offline worker instance for one deployed version.
// Its methods are the event handlers the host dispatches into; each
// returns only when the event's awaited work is done, except the
// opportunistic navigation write-back, which runs in the background
// (see Flush).
type Worker struct {
	storage    cache.Provider
	bucket     string
	manifest   []string
	origin     url.URL
	notifier   Notifier
	clients    Clients
	lifecycle  Lifecycle
	log        zerolog.Logger
	bypass     []string
	push       PushDefaults
	client     *http.Client
	proxy      *httputil.ReverseProxy
	background sync.WaitGroup
}

// New creates a worker for the given version.
// It does not touch storage; population happens in Install.
func New(config Config) (*Worker, error) {
	if config.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if config.Version == "" {
		return nil, fmt.Errorf("version is required")
	}
	if config.OriginURL.Host == "" {
		return nil, fmt.Errorf("origin URL is required")
	}

	name := config.Name
	if name == "" {
		name = DefaultName
	}
	bucket := name + "-" + config.Version

	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	logger = logger.With().
		Str("bucket", bucket).
		Logger()

	bypass := config.BypassPrefixes
	if bypass == nil {
		bypass = defaultBypassPrefixes
	}

	push := config.Push
	if push.Title == "" {
		push.Title = DefaultTitle
	}
	if push.Body == "" {
		push.Body = DefaultBody
	}
	if push.Icon == "" {
		push.Icon = DefaultIcon
	}
	if push.Badge == "" {
		push.Badge = DefaultBadge
	}

	client := config.Client
	if client == nil {
		client = &http.Client{
			// do not follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	w := &Worker{
		storage:   config.Storage,
		bucket:    bucket,
		manifest:  config.Manifest,
		origin:    config.OriginURL,
		notifier:  config.Notifier,
		clients:   config.Clients,
		lifecycle: config.Lifecycle,
		log:       logger,
		bypass:    bypass,
		push:      push,
		client:    client,
	}
	w.proxy = &httputil.ReverseProxy{
		Director: createDirector(config.OriginURL.Scheme, config.OriginURL.Host),
	}
	return w, nil
}

// Bucket returns the versioned bucket name reads and writes go to.
func (w *Worker) Bucket() string {
	return w.bucket
}

// Flush waits for all pending background cache writes to finish.
func (w *Worker) Flush() {
	w.background.Wait()
}

// resolveURL rewrites a request URL to its absolute form on the origin.
func (w *Worker) resolveURL(u *url.URL) string {
	abs := *u
	abs.Scheme = w.origin.Scheme
	abs.Host = w.origin.Host
	return abs.String()
}

// resolvePath resolves a possibly relative path against the origin.
// Relative click targets would otherwise be misread as out of scope.
func (w *Worker) resolvePath(p string) string {
	ref, err := url.Parse(p)
	if err != nil {
		return w.origin.String()
	}
	return w.origin.ResolveReference(ref).String()
}

func createDirector(scheme, host string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		req.Host = host
	}
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
