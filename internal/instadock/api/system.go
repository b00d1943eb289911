package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jimyag/instadock/internal/instadock/entity"
	"github.com/jimyag/instadock/internal/instadock/service"
	"github.com/jimyag/instadock/pkg/ginx"
)

// SystemServiceInterface 定义系统服务的接口
type SystemServiceInterface interface {
	Stats(ctx context.Context) (*entity.SystemStats, error)
	Containers(ctx context.Context) (*entity.DescribeContainersResponse, error)
}

type System struct {
	systemService SystemServiceInterface
}

func NewSystem(systemService *service.SystemService) *System {
	return &System{
		systemService: systemService,
	}
}

func (s *System) RegisterRoutes(router *gin.RouterGroup) {
	systemRouter := router.Group("/system", RequireAdmin())
	systemRouter.POST("/stats", ginx.Adapt3(s.Stats))
	systemRouter.POST("/containers", ginx.Adapt3(s.Containers))
}

func (s *System) Stats(ctx *gin.Context) (*entity.SystemStats, error) {
	stats, err := s.systemService.Stats(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to read system stats")
		return nil, err
	}
	return stats, nil
}

func (s *System) Containers(ctx *gin.Context) (*entity.DescribeContainersResponse, error) {
	containers, err := s.systemService.Containers(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to list runtime containers")
		return nil, err
	}
	return containers, nil
}
