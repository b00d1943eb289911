package service

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jimyag/instadock/internal/instadock/entity"
	"github.com/jimyag/instadock/pkg/apierror"
	"github.com/jimyag/instadock/pkg/docker"
)

// SystemService 系统服务，提供宿主机资源和容器对账视图
type SystemService struct {
	client docker.Client
}

// NewSystemService 创建新的 System Service
func NewSystemService(client docker.Client) *SystemService {
	return &SystemService{client: client}
}

// Stats 宿主机 CPU 和内存用量
func (s *SystemService) Stats(ctx context.Context) (*entity.SystemStats, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to read CPU usage", err)
	}
	var cpuPercent float64
	if len(percents) > 0 {
		cpuPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to read memory usage", err)
	}

	return &entity.SystemStats{
		CPU:           cpuPercent,
		Memory:        vm.UsedPercent,
		TotalMemoryGB: float64(vm.Total) / (1024 * 1024 * 1024),
	}, nil
}

// Containers 容器运行时的对账视图
// 直接来自运行时而非实例表，用于发现脱管的容器
func (s *SystemService) Containers(ctx context.Context) (*entity.DescribeContainersResponse, error) {
	summaries, err := s.client.List(ctx, true)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrRuntimeFailed, "Failed to list containers", err)
	}

	zerolog.Ctx(ctx).Debug().Int("count", len(summaries)).Msg("Listed runtime containers")

	resp := &entity.DescribeContainersResponse{Containers: make([]entity.ContainerView, 0, len(summaries))}
	for _, c := range summaries {
		resp.Containers = append(resp.Containers, entity.ContainerView{
			ID:     c.ID,
			Name:   c.Name,
			Image:  c.Image,
			Status: c.Status,
			CPU:    c.CPU,
			MemMB:  c.MemMB,
		})
	}
	return resp, nil
}
