package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config 入库配置
type Config struct {
	BatchSize       int           `validate:"min=1"`                // 每批条目数
	MaxRetries      int           `validate:"min=1"`                // 每批最多尝试次数
	BaseBackoff     time.Duration `validate:"gte=0"`                // 首次限流退避时间
	MaxBackoff      time.Duration `validate:"gtefield=BaseBackoff"` // 退避上限
	InterBatchDelay time.Duration `validate:"gte=0"`                // 成功批次之间的间隔
}

// DefaultConfig 返回默认入库配置
func DefaultConfig() Config {
	return Config{
		BatchSize:       3,
		MaxRetries:      3,
		BaseBackoff:     60 * time.Second,
		MaxBackoff:      300 * time.Second,
		InterBatchDelay: 10 * time.Second,
	}
}

var validate = validator.New()

// Validate 校验配置
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid ingest config: %w", err)
	}
	return nil
}

// Backoff 第attempt次失败后的等待时间 min(base*2^attempt, max)
func (c Config) Backoff(attempt int) time.Duration {
	wait := c.BaseBackoff
	for i := 0; i < attempt && wait < c.MaxBackoff; i++ {
		wait *= 2
	}
	if wait > c.MaxBackoff {
		wait = c.MaxBackoff
	}
	return wait
}

// Sleeper 可替换的等待实现
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc 函数适配器
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep 实现 Sleeper 接口
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper 真实计时等待，可被上下文中断
type TimerSleeper struct{}

// Sleep 等待d或直到ctx结束
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
