package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shortly/pkg/cache"
	"shortly/pkg/events"
	"shortly/pkg/logging"
	"shortly/pkg/metrics"
	"shortly/pkg/storage"
)

// RequestMeta carries redirect request attributes used only for analytics.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	Referer   string
}

type ResolverConfig struct {
	CacheTTL          time.Duration
	SideEffectTimeout time.Duration
	ClickFlushEvery   int64
}

// Resolver is the redirect hot path: cache fast path, store fallback with
// validation, cache write-back, and fire-and-forget side effects.
type Resolver struct {
	links   storage.LinkStore
	cache   cache.LookupCache
	sink    events.Sink
	logger  *logging.Logger
	metrics *metrics.Metrics

	cacheTTL          time.Duration
	sideEffectTimeout time.Duration
	clickFlushEvery   int64
}

func NewResolver(links storage.LinkStore, lookup cache.LookupCache, sink events.Sink, logger *logging.Logger, m *metrics.Metrics, cfg ResolverConfig) *Resolver {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = 5 * time.Second
	}
	if cfg.ClickFlushEvery <= 0 {
		cfg.ClickFlushEvery = 10
	}
	return &Resolver{
		links:             links,
		cache:             lookup,
		sink:              sink,
		logger:            logger,
		metrics:           m,
		cacheTTL:          cfg.CacheTTL,
		sideEffectTimeout: cfg.SideEffectTimeout,
		clickFlushEvery:   cfg.ClickFlushEvery,
	}
}

// Resolve maps a short code to its destination URL.
//
// Cache entries are written only for links that passed validation and carry
// a bounded TTL, so a hit is served without re-checking active/expiry/
// password state. On a miss the store row is validated, the cache is
// populated, and click accounting runs on detached goroutines that outlive
// the request.
func (r *Resolver) Resolve(ctx context.Context, shortCode, password string, meta RequestMeta) (string, error) {
	cachedURL, hit, err := r.cache.Get(ctx, shortCode)
	if err != nil {
		// a broken cache is a miss, never a failure
		r.logger.Warn(ctx, "cache get failed", "short_code", shortCode, "error", err)
	}
	if hit {
		r.metrics.CacheHitsTotal.Inc()
		r.metrics.RedirectsTotal.WithLabelValues(metrics.OutcomeHit).Inc()
		go r.recordHit(r.detach(ctx), shortCode, 0, false, meta)
		return cachedURL, nil
	}
	r.metrics.CacheMissesTotal.Inc()

	link, err := r.links.FindByCode(ctx, shortCode)
	if err != nil {
		r.metrics.RedirectsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return "", fmt.Errorf("%w: loading link: %v", ErrUnavailable, err)
	}
	if link == nil || !link.IsActive {
		// disabled links are indistinguishable from absent ones
		r.metrics.RedirectsTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
		return "", ErrLinkNotFound
	}
	if link.Expired() {
		r.metrics.RedirectsTotal.WithLabelValues(metrics.OutcomeExpired).Inc()
		return "", ErrLinkExpired
	}
	if link.HasPassword() {
		if password == "" {
			r.metrics.RedirectsTotal.WithLabelValues(metrics.OutcomePasswordRequired).Inc()
			return "", ErrPasswordRequired
		}
		// bcrypt comparison is constant-time
		if bcrypt.CompareHashAndPassword([]byte(*link.PasswordHash), []byte(password)) != nil {
			r.metrics.RedirectsTotal.WithLabelValues(metrics.OutcomeInvalidPassword).Inc()
			return "", ErrInvalidPassword
		}
	}

	// Only validated links reach the cache.
	if err := r.cache.Set(ctx, shortCode, link.OriginalURL, r.cacheTTL); err != nil {
		r.logger.Warn(ctx, "cache set failed", "short_code", shortCode, "error", err)
	}

	r.metrics.RedirectsTotal.WithLabelValues(metrics.OutcomeMiss).Inc()
	go r.recordHit(r.detach(ctx), shortCode, link.ID, true, meta)

	return link.OriginalURL, nil
}

// detach produces a context that keeps the request's values (correlation ID)
// but not its cancellation: a client disconnect must not cancel in-flight
// side effects.
func (r *Resolver) detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// recordHit performs the post-redirect side effects: live click counter in
// the cache (flushed to the store every clickFlushEvery increments, keeping
// the store a lower bound), analytics event emission, and a best-effort
// last-accessed update. Failures are logged and swallowed.
func (r *Resolver) recordHit(ctx context.Context, shortCode string, linkID int64, touchLastAccessed bool, meta RequestMeta) {
	ctx, cancel := context.WithTimeout(ctx, r.sideEffectTimeout)
	defer cancel()

	count, err := r.cache.IncrementClick(ctx, shortCode)
	if err != nil {
		r.logger.Warn(ctx, "click increment failed", "short_code", shortCode, "error", err)
	} else if count%r.clickFlushEvery == 0 {
		if err := r.links.AddClicks(ctx, shortCode, r.clickFlushEvery); err != nil {
			r.logger.Warn(ctx, "click flush failed", "short_code", shortCode, "error", err)
		}
	}

	ev := events.ClickEvent{
		ShortCode: shortCode,
		LinkID:    linkID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Referer:   meta.Referer,
		Timestamp: time.Now().UTC(),
	}
	if err := r.sink.Publish(ctx, ev); err != nil {
		r.metrics.EventsDroppedTotal.Inc()
		r.logger.Warn(ctx, "click event dropped", "short_code", shortCode, "error", err)
	}

	if touchLastAccessed {
		if err := r.links.UpdateLastAccessed(ctx, shortCode, time.Now().UTC()); err != nil {
			r.logger.Warn(ctx, "last-accessed update failed", "short_code", shortCode, "error", err)
		}
	}
}
