package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxbridge/voxbridge/pkg/transport"
	"github.com/voxbridge/voxbridge/pkg/transport/mock"
)

func TestWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	t.Parallel()

	attempts := 0
	dial := withRetry(func(context.Context) (transport.Transport, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return mock.New(), nil
	}, 5, time.Millisecond, 4*time.Millisecond)

	tr, err := dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if tr == nil {
		t.Fatal("nil transport on success")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryGivesUp(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("no route to host")
	attempts := 0
	dial := withRetry(func(context.Context) (transport.Transport, error) {
		attempts++
		return nil, wantErr
	}, 3, time.Millisecond, time.Millisecond)

	_, err := dial(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped %v", err, wantErr)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dial := withRetry(func(context.Context) (transport.Transport, error) {
		return nil, errors.New("down")
	}, 5, time.Hour, time.Hour)

	_, err := dial(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
