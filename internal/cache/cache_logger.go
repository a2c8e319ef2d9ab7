package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern invalidates a pattern and only logs failures
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete deletes keys and only logs failures
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateTestResults drops cached aggregates of a test after a new
// result is written.
func InvalidateTestResults(ctx context.Context, cm *CacheManager, testID string) {
	SafeInvalidatePattern(ctx, cm.Result, fmt.Sprintf("test:%s:*", testID))
}

// InvalidateTest drops a cached test definition.
func InvalidateTest(ctx context.Context, cm *CacheManager, testID string) {
	SafeDelete(ctx, cm.Test, fmt.Sprintf("id:%s", testID))
}
