package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/domain"
)

func testRetryer(maxAttempts, breakerThreshold int) *Retryer {
	return NewRetryer(
		NewGovernor(GovernorConfig{
			PlacementBurst: 100, PlacementRate: 1000,
			CancelBurst: 100, CancelRate: 1000,
			AccountBurst: 100, AccountRate: 1000,
		}),
		RetryConfig{
			MaxAttempts: maxAttempts,
			Backoff:     BackoffPolicy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		},
		CircuitBreakerConfig{
			FailureThreshold: breakerThreshold,
			SuccessThreshold: 2,
			Cooldown:         time.Minute,
		},
		zap.NewNop())
}

func TestRetryer_TransientFailuresThenSuccess(t *testing.T) {
	r := testRetryer(3, 5)

	calls := 0
	err := r.Do(context.Background(), ClassPlacement, "place_order", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return domain.TransientVenueError("place_order", errors.New("timeout"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, BreakerClosed, r.Breaker(ClassPlacement).State())
}

func TestRetryer_ExhaustsRetries(t *testing.T) {
	r := testRetryer(3, 10)

	calls := 0
	err := r.Do(context.Background(), ClassPlacement, "place_order", func(ctx context.Context) error {
		calls++
		return domain.TransientVenueError("place_order", errors.New("503"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, domain.IsTransient(err))
	assert.Contains(t, err.Error(), "retries exhausted")
}

func TestRetryer_PermanentNotRetried(t *testing.T) {
	r := testRetryer(3, 5)

	calls := 0
	err := r.Do(context.Background(), ClassPlacement, "place_order", func(ctx context.Context) error {
		calls++
		return domain.PermanentVenueError("place_order", errors.New("insufficient funds"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, domain.IsPermanent(err))
	// A permanent rejection is a healthy venue answering; breaker stays closed.
	assert.Equal(t, BreakerClosed, r.Breaker(ClassPlacement).State())
}

func TestRetryer_AmbiguousNotRetried(t *testing.T) {
	r := testRetryer(3, 5)

	calls := 0
	err := r.Do(context.Background(), ClassPlacement, "place_order", func(ctx context.Context) error {
		calls++
		return domain.AmbiguousOutcomeError("place_order", errors.New("timeout after send"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, domain.IsAmbiguous(err))
}

func TestRetryer_BreakerOpensAndFailsFast(t *testing.T) {
	r := testRetryer(1, 5)

	// 6 consecutive failures against a threshold of 5.
	for i := 0; i < 6; i++ {
		_ = r.Do(context.Background(), ClassPlacement, "place_order", func(ctx context.Context) error {
			return domain.TransientVenueError("place_order", errors.New("down"))
		})
	}
	require.Equal(t, BreakerOpen, r.Breaker(ClassPlacement).State())

	// Next call must not reach the venue.
	calls := 0
	err := r.Do(context.Background(), ClassPlacement, "place_order", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBreakerOpen)
	assert.Equal(t, 0, calls)
}

func TestRetryer_BreakerScopedPerClass(t *testing.T) {
	r := testRetryer(1, 2)

	for i := 0; i < 2; i++ {
		_ = r.Do(context.Background(), ClassPlacement, "place_order", func(ctx context.Context) error {
			return domain.TransientVenueError("place_order", errors.New("down"))
		})
	}
	require.Equal(t, BreakerOpen, r.Breaker(ClassPlacement).State())

	// A broken placement path must not block cancellation.
	err := r.Do(context.Background(), ClassCancel, "cancel_order", func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestDoValue(t *testing.T) {
	r := testRetryer(3, 5)

	calls := 0
	id, err := DoValue(context.Background(), r, ClassPlacement, "place_order",
		func(ctx context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", domain.TransientVenueError("place_order", errors.New("reset"))
			}
			return "venue-1", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "venue-1", id)
	assert.Equal(t, 2, calls)
}
