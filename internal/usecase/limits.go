package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/veluna/media-platform-auth/internal/core/port"
)

// RateLimitExceededError reports that a sliding-window limit was hit and how
// long the caller should wait before retrying.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Scope)
}

// checkRateLimit enforces a sliding-window limit for scope:identifier. Store
// failures degrade open: the attempt is allowed and the failure logged, so a
// Redis outage cannot lock every account out.
func checkRateLimit(ctx context.Context, store port.RateLimitStore, logger *zap.Logger, scope, identifier string, limit int, window time.Duration, now time.Time) error {
	if store == nil || limit <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Hour
	}

	key := normalizeIdentifierKey(identifier)
	if key == "" {
		return nil
	}
	storageKey := fmt.Sprintf("%s:%s", scope, key)

	if err := store.TrimWindow(ctx, storageKey, window, now); err != nil {
		logger.Warn("rate limit trim failed", zap.String("scope", scope), zap.Error(err))
		return nil
	}

	count, err := store.CountAttempts(ctx, storageKey, window, now)
	if err != nil {
		logger.Warn("rate limit count failed", zap.String("scope", scope), zap.Error(err))
		return nil
	}

	if count >= limit {
		retryAfter := time.Duration(0)
		if oldest, ok, err := store.OldestAttempt(ctx, storageKey, window, now); err == nil && ok {
			reset := oldest.Add(window)
			if reset.After(now) {
				retryAfter = reset.Sub(now)
			}
		} else if err != nil {
			logger.Warn("rate limit oldest lookup failed", zap.String("scope", scope), zap.Error(err))
		}
		return &RateLimitExceededError{Scope: scope, RetryAfter: retryAfter}
	}

	if err := store.RecordAttempt(ctx, storageKey, now); err != nil {
		logger.Warn("rate limit record failed", zap.String("scope", scope), zap.Error(err))
	}

	return nil
}

func normalizeIdentifierKey(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func metadataCopy(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func stringPtrOrNil(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
