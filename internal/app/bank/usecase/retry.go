package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
)

// RetryConfig 版本衝突時的重試設定
type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	RetryBackoff time.Duration `yaml:"retryBackoff"`
	MaxBackoff   time.Duration `yaml:"maxBackoff"`
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 5 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 100 * time.Millisecond
	}
	return c
}

// retryOnConflict 重複執行 cycle (一次完整的 讀取-檢查-條件寫入)，
// 只有 domain.ErrVersionConflict 會重試，其他結果直接回傳
//
// 參數:
//
//	attempts: 最多執行次數
//	onConflict: 每次衝突後呼叫 (metrics/log)，可為 nil
//
// 回傳:
//
//	error: cycle 的結果；重試耗盡回傳 domain.ErrContention，ctx 結束回傳 DataStoreError
func retryOnConflict(ctx context.Context, cfg RetryConfig, attempts int, onConflict func(attempt int), cycle func(ctx context.Context) error) error {
	backoff := cfg.RetryBackoff
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.StoreError(err, "operation abandoned")
		}

		err := cycle(ctx)
		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		if onConflict != nil {
			onConflict(attempt)
		}
		if attempt == attempts {
			break
		}

		// jitter: [backoff/2, backoff)
		wait := backoff/2 + rand.N(backoff/2+1)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.StoreError(ctx.Err(), "operation abandoned")
		case <-timer.C:
		}
		backoff = min(backoff*2, cfg.MaxBackoff)
	}
	return fmt.Errorf("after %d attempts: %w", attempts, domain.ErrContention)
}
