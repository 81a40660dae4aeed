package service

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// StartReconciliation запускает фоновую сверку: отмену зависших неоплаченных
// бронирований, дозавершение конвертации черновиков с уже подтверждённым
// бронированием-якорем и перевод просроченных черновиков в EXPIRED. Сверка —
// та самая внешняя по отношению к колбэку оплаты уборка: подтверждение
// никогда не отменяет чужие PENDING-слоты само.
func (s *Service) StartReconciliation(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.opts.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepOnce(ctx)
			}
		}
	}()
}

// sweepOnce выполняет один проход сверки, повторяя его при временных сбоях БД.
func (s *Service) sweepOnce(ctx context.Context) {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		now := s.now()

		cancelled, err := s.repo.CancelStalePending(ctx, now.Add(-s.opts.PendingTTL))
		if err != nil {
			return retry.RetryableError(err)
		}

		// Сначала дозавершается конвертация: черновик с подтверждённым
		// бронированием должен стать CONVERTED, а не попасть под EXPIRED.
		converted, err := s.repo.ReconcileConvertedDrafts(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}

		expired, err := s.repo.ExpireDraftMatches(ctx, now)
		if err != nil {
			return retry.RetryableError(err)
		}

		if cancelled > 0 || converted > 0 || expired > 0 {
			s.logger.Info("reconciliation sweep",
				zap.Int64("cancelledBookings", cancelled),
				zap.Int64("convertedDraftMatches", converted),
				zap.Int64("expiredDraftMatches", expired))
		}
		return nil
	})
	if err != nil {
		s.logger.Error("reconciliation sweep failed", zap.Error(err))
	}
}
