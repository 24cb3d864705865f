package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"marketplace/internal/usecase"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMaintenance struct {
	calls chan struct{}
	err   error
}

func (s *stubMaintenance) SweepExpired(context.Context) (*usecase.SweepResult, error) {
	select {
	case s.calls <- struct{}{}:
	default:
	}
	if s.err != nil {
		return nil, s.err
	}

	return &usecase.SweepResult{ClearedOTPs: 1}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOTPSweeper_SweepsOnEveryTickUntilStopped(t *testing.T) {
	for _, sweepErr := range []error{nil, errors.New("db down")} {
		stub := &stubMaintenance{calls: make(chan struct{}, 8), err: sweepErr}
		s := newSweeper(stub, 5*time.Millisecond, discardLogger())

		served := make(chan error, 1)
		go func() { served <- s.Serve(context.Background()) }()

		// A failed pass does not stop later ticks.
		for range 2 {
			select {
			case <-stub.calls:
			case <-time.After(time.Second):
				t.Fatal("sweep was not triggered")
			}
		}

		require.NoError(t, s.stop(context.Background()))
		assert.NoError(t, <-served)
		require.NoError(t, s.stop(context.Background()), "stop is idempotent")
	}
}

func TestOTPSweeper_ServeReturnsWhenContextEnds(t *testing.T) {
	stub := &stubMaintenance{calls: make(chan struct{}, 8)}
	s := newSweeper(stub, time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx) }()
	cancel()

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Empty(t, stub.calls)
}

func TestOTPSweeper_StopBeforeServe(t *testing.T) {
	s := newSweeper(&stubMaintenance{calls: make(chan struct{}, 1)}, time.Hour, discardLogger())

	assert.NoError(t, s.stop(context.Background()))
}

func TestOTPSweeper_RejectsNonPositiveInterval(t *testing.T) {
	s := newSweeper(&stubMaintenance{calls: make(chan struct{}, 1)}, 0, discardLogger())

	assert.Error(t, s.Serve(context.Background()))
}
