package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"marketplace/config"
	"marketplace/internal/delivery"
	"marketplace/internal/domain/lifecycle"
	"marketplace/internal/usecase"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// OTPSweeperParams holds dependencies for the expiry sweeper
type OTPSweeperParams struct {
	fx.In

	Lc            fx.Lifecycle
	Cfg           *config.Config
	Logger        *slog.Logger
	MaintenanceUC usecase.MaintenanceUsecase
}

// OTPSweeper periodically clears expired verification codes and refresh tokens.
type OTPSweeper struct {
	maintenanceUC usecase.MaintenanceUsecase
	interval      time.Duration
	logger        *slog.Logger

	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewOTPSweeper creates the sweeper and registers its shutdown with the lifecycle.
func NewOTPSweeper(params OTPSweeperParams) (delivery.Delivery, error) {
	s := newSweeper(params.MaintenanceUC, params.Cfg.OTP.SweepInterval, params.Logger)

	params.Lc.Append(fx.Hook{
		OnStop: s.stop,
	})

	return s, nil
}

func newSweeper(maintenanceUC usecase.MaintenanceUsecase, interval time.Duration, logger *slog.Logger) *OTPSweeper {
	return &OTPSweeper{
		maintenanceUC: maintenanceUC,
		interval:      interval,
		logger:        logger,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Serve runs sweeps on every tick until the context ends or the sweeper stops.
func (s *OTPSweeper) Serve(ctx context.Context) error {
	s.running.Store(true)
	defer close(s.doneCh)

	if s.interval <= 0 {
		return errors.Errorf("invalid sweep interval %s", s.interval)
	}

	s.logger.Info("Starting expiry sweeper", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *OTPSweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, lifecycle.DefaultTimeout)
	defer cancel()

	result, err := s.maintenanceUC.SweepExpired(sweepCtx)
	if err != nil {
		// The next tick retries; a failed pass removes nothing.
		s.logger.Error("Expiry sweep failed", slog.Any("error", err))

		return
	}

	if result.ClearedOTPs > 0 || result.RemovedSessions > 0 {
		s.logger.Info("Expiry sweep finished",
			slog.Int64("cleared_otps", result.ClearedOTPs),
			slog.Int64("removed_sessions", result.RemovedSessions),
		)
	}
}

// stop signals Serve to return and waits for an in-flight sweep to finish.
func (s *OTPSweeper) stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if !s.running.Load() {
		return nil
	}

	s.logger.Info("Shutting down expiry sweeper")

	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}
