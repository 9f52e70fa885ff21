package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/easyops/twinmcp/pkg/core/errors"
)

func fastPolicy(maxRetries int) Policy {
	p := DefaultPolicy()
	p.MaxRetries = maxRetries
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 2 * time.Millisecond
	return p
}

func TestPolicy_SucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.ErrRateLimited
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPolicy_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return errors.ErrInvalidAPIKey
	})

	if !errors.Is(err, errors.ErrInvalidAPIKey) {
		t.Errorf("err = %v, want ErrInvalidAPIKey", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPolicy_BoundedRetries(t *testing.T) {
	calls := 0
	var retries []int
	p := fastPolicy(2)
	p.OnRetry = func(attempt int, err error, wait time.Duration) {
		retries = append(retries, attempt)
	}

	err := p.Do(context.Background(), func() error {
		calls++
		return fmt.Errorf("openai: %w", errors.ErrRateLimited)
	})

	if !errors.IsRateLimited(err) {
		t.Errorf("err = %v, want rate limited", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", calls)
	}
	if len(retries) != 2 {
		t.Errorf("OnRetry called %d times, want 2", len(retries))
	}
}

func TestPolicy_CustomRetryable(t *testing.T) {
	calls := 0
	p := fastPolicy(3)
	p.Retryable = errors.IsRateLimited

	err := p.Do(context.Background(), func() error {
		calls++
		return errors.ErrProviderUnavailable
	})

	if !errors.Is(err, errors.ErrProviderUnavailable) {
		t.Errorf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 when only rate limits retry", calls)
	}
}

func TestPolicy_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := fastPolicy(3)
	p.BaseDelay = time.Second
	err := p.Do(ctx, func() error {
		return errors.ErrRateLimited
	})
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
}
