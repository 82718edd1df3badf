package provider

import (
	"context"
	"time"

	"MedSol-RAG/internal/apperr"
)

const (
	maxAttempts = 3
	backoffBase = 1 * time.Second
	backoffCap  = 10 * time.Second
)

// sleepFunc 可在测试中替换，避免真实等待
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryable RateLimited 和瞬时的 ProviderUnavailable 可以重试
func retryable(err error) bool {
	k := apperr.KindOf(err)
	return k == apperr.RateLimited || k == apperr.ProviderUnavailable
}

// withRetry 指数退避: 1s, 2s, 4s... 上限 10s
func withRetry(ctx context.Context, sleep sleepFunc, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			d := backoffBase << (attempt - 1)
			if d > backoffCap {
				d = backoffCap
			}
			if serr := sleep(ctx, d); serr != nil {
				return serr
			}
		}
		if err = fn(); err == nil || !retryable(err) {
			return err
		}
	}
	return err
}
