package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Reaper 过期回收服务
// 周期性扫描实例表，清理已过期的实例
// 过期时间解析失败的记录视为损坏，立即清理
type Reaper struct {
	instanceService *InstanceService
	interval        time.Duration
	now             func() time.Time
	stop            chan struct{}
	done            chan struct{}
}

// NewReaper 创建过期回收服务
func NewReaper(instanceService *InstanceService, interval time.Duration) *Reaper {
	return &Reaper{
		instanceService: instanceService,
		interval:        interval,
		now:             time.Now,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Run 运行回收循环，直到 Shutdown 或 ctx 取消
func (r *Reaper) Run(ctx context.Context) error {
	defer close(r.done)

	logger := zerolog.Ctx(ctx)
	logger.Info().Dur("interval", r.interval).Msg("Expiry reaper started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.stop:
			return nil
		case <-ticker.C:
			r.reapOnce(ctx)
		}
	}
}

// Shutdown 停止回收循环
func (r *Reaper) Shutdown(ctx context.Context) error {
	close(r.stop)
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name 服务名称
func (r *Reaper) Name() string {
	return "Expiry Reaper"
}

// reapOnce 执行一轮扫描
// 单条记录的失败只记日志，不影响其余记录
func (r *Reaper) reapOnce(ctx context.Context) {
	logger := zerolog.Ctx(ctx)

	instances, err := r.instanceService.instances.List(ctx, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Reaper failed to list instances")
		return
	}

	now := r.now().UTC()
	for _, inst := range instances {
		expiresAt, err := time.Parse(time.RFC3339, inst.ExpiresAt)
		if err != nil {
			// 损坏的过期时间无法判断剩余寿命，立即清理
			logger.Warn().
				Str("instance_id", inst.ID).
				Str("expires_at", inst.ExpiresAt).
				Msg("Corrupt expiry timestamp, tearing down instance")
			r.teardown(ctx, inst.ID)
			continue
		}

		// 过期时刻本身也算过期
		if !expiresAt.After(now) {
			logger.Info().
				Str("instance_id", inst.ID).
				Str("expires_at", inst.ExpiresAt).
				Msg("Instance expired, tearing down")
			r.teardown(ctx, inst.ID)
		}
	}
}

func (r *Reaper) teardown(ctx context.Context, id string) {
	if err := r.instanceService.teardown(ctx, id); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("instance_id", id).
			Msg("Reaper failed to tear down instance")
	}
}
