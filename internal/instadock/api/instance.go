package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jimyag/instadock/internal/instadock/entity"
	"github.com/jimyag/instadock/internal/instadock/service"
	"github.com/jimyag/instadock/pkg/ginx"
)

// InstanceServiceInterface 定义实例服务的接口
type InstanceServiceInterface interface {
	Spawn(ctx context.Context, caller *entity.Caller, req *entity.SpawnRequest) (*entity.SpawnResponse, error)
	Stop(ctx context.Context, caller *entity.Caller, req *entity.StopInstanceRequest) (*entity.InstanceStateChange, error)
	Start(ctx context.Context, caller *entity.Caller, req *entity.StartInstanceRequest) (*entity.InstanceStateChange, error)
	Restart(ctx context.Context, caller *entity.Caller, req *entity.RestartInstanceRequest) (*entity.InstanceStateChange, error)
	Delete(ctx context.Context, caller *entity.Caller, req *entity.DeleteInstanceRequest) error
	Get(ctx context.Context, caller *entity.Caller, req *entity.DescribeInstanceRequest) (*entity.DescribeInstanceResponse, error)
	List(ctx context.Context, caller *entity.Caller) (*entity.DescribeInstancesResponse, error)
}

type Instance struct {
	instanceService InstanceServiceInterface
}

func NewInstance(instanceService *service.InstanceService) *Instance {
	return &Instance{
		instanceService: instanceService,
	}
}

func (i *Instance) RegisterRoutes(router *gin.RouterGroup) {
	instanceRouter := router.Group("/instances")
	instanceRouter.POST("/spawn", ginx.Adapt5(i.Spawn))
	instanceRouter.POST("/stop", ginx.Adapt5(i.Stop))
	instanceRouter.POST("/start", ginx.Adapt5(i.Start))
	instanceRouter.POST("/restart", ginx.Adapt5(i.Restart))
	instanceRouter.POST("/delete", ginx.Adapt4(i.Delete))
	instanceRouter.POST("/describe", ginx.Adapt5(i.Describe))
	instanceRouter.POST("/describe-all", ginx.Adapt3(i.DescribeAll))
}

func (i *Instance) Spawn(ctx *gin.Context, req *entity.SpawnRequest) (*entity.SpawnResponse, error) {
	logger := zerolog.Ctx(ctx)
	logger.Info().
		Interface("request", req).
		Msg("Spawn called")

	resp, err := i.instanceService.Spawn(ctx, callerFrom(ctx), req)
	if err != nil {
		logger.Error().
			Err(err).
			Msg("Failed to spawn instance")
		return nil, err
	}

	logger.Info().
		Str("instance_id", resp.InstanceID).
		Str("url", resp.URL).
		Msg("Instance spawned successfully")

	return resp, nil
}

func (i *Instance) Stop(ctx *gin.Context, req *entity.StopInstanceRequest) (*entity.InstanceStateChange, error) {
	logger := zerolog.Ctx(ctx)

	change, err := i.instanceService.Stop(ctx, callerFrom(ctx), req)
	if err != nil {
		logger.Error().
			Err(err).
			Str("instance_id", req.InstanceID).
			Msg("Failed to stop instance")
		return nil, err
	}
	return change, nil
}

func (i *Instance) Start(ctx *gin.Context, req *entity.StartInstanceRequest) (*entity.InstanceStateChange, error) {
	logger := zerolog.Ctx(ctx)

	change, err := i.instanceService.Start(ctx, callerFrom(ctx), req)
	if err != nil {
		logger.Error().
			Err(err).
			Str("instance_id", req.InstanceID).
			Msg("Failed to start instance")
		return nil, err
	}
	return change, nil
}

func (i *Instance) Restart(ctx *gin.Context, req *entity.RestartInstanceRequest) (*entity.InstanceStateChange, error) {
	logger := zerolog.Ctx(ctx)

	change, err := i.instanceService.Restart(ctx, callerFrom(ctx), req)
	if err != nil {
		logger.Error().
			Err(err).
			Str("instance_id", req.InstanceID).
			Msg("Failed to restart instance")
		return nil, err
	}
	return change, nil
}

func (i *Instance) Delete(ctx *gin.Context, req *entity.DeleteInstanceRequest) error {
	logger := zerolog.Ctx(ctx)

	if err := i.instanceService.Delete(ctx, callerFrom(ctx), req); err != nil {
		logger.Error().
			Err(err).
			Str("instance_id", req.InstanceID).
			Msg("Failed to delete instance")
		return err
	}

	logger.Info().
		Str("instance_id", req.InstanceID).
		Msg("Instance deleted successfully")
	return nil
}

func (i *Instance) Describe(ctx *gin.Context, req *entity.DescribeInstanceRequest) (*entity.DescribeInstanceResponse, error) {
	return i.instanceService.Get(ctx, callerFrom(ctx), req)
}

func (i *Instance) DescribeAll(ctx *gin.Context) (*entity.DescribeInstancesResponse, error) {
	return i.instanceService.List(ctx, callerFrom(ctx))
}
