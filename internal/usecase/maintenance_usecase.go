package usecase

import "context"

// SweepResult counts what one maintenance pass removed.
type SweepResult struct {
	ClearedOTPs     int64
	RemovedSessions int64
}

// MaintenanceUsecase performs periodic cleanup of expired credentials.
type MaintenanceUsecase interface {
	SweepExpired(ctx context.Context) (*SweepResult, error)
}
