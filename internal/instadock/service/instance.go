package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/jimyag/instadock/internal/instadock/entity"
	"github.com/jimyag/instadock/internal/instadock/repository"
	"github.com/jimyag/instadock/internal/instadock/repository/model"
	"github.com/jimyag/instadock/pkg/apierror"
	"github.com/jimyag/instadock/pkg/docker"
)

// 宿主机端口分配区间
const (
	hostPortMin = 20000
	hostPortMax = 40000
)

// containerPort 实例内部统一监听 80 端口
const containerPort = 80

// InstanceService 实例服务，管理容器实例的生命周期
type InstanceService struct {
	instances   repository.InstanceRepository
	submissions repository.SubmissionRepository
	client      docker.Client

	baseDomain   string
	registryHost string
	quota        int
	memoryBytes  int64
	nanoCPUs     int64
}

// NewInstanceService 创建新的 Instance Service
func NewInstanceService(
	instances repository.InstanceRepository,
	submissions repository.SubmissionRepository,
	client docker.Client,
	baseDomain string,
	registryHost string,
	quota int,
	memoryBytes int64,
	nanoCPUs int64,
) *InstanceService {
	return &InstanceService{
		instances:    instances,
		submissions:  submissions,
		client:       client,
		baseDomain:   baseDomain,
		registryHost: registryHost,
		quota:        quota,
		memoryBytes:  memoryBytes,
		nanoCPUs:     nanoCPUs,
	}
}

// Spawn 创建并启动实例
// 镜像来源二选一：直接给镜像引用，或给已构建完成的提交 ID
func (s *InstanceService) Spawn(ctx context.Context, caller *entity.Caller, req *entity.SpawnRequest) (*entity.SpawnResponse, error) {
	logger := zerolog.Ctx(ctx)

	if err := validateSpawnRequest(req); err != nil {
		return nil, err
	}

	image, submissionID, err := s.resolveImage(ctx, caller, req)
	if err != nil {
		return nil, err
	}

	// 配额预检，快速失败
	// 真正的守卫在插入事务里，这里只是避免白拉镜像
	running, err := s.instances.CountRunningByUser(ctx, caller.UserID)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to count running instances", err)
	}
	if running >= int64(s.quota) {
		return nil, apierror.WrapError(apierror.ErrQuotaExceeded,
			fmt.Sprintf("Quota of %d running instances reached", s.quota), nil)
	}

	logger.Info().
		Str("image", image).
		Str("user_id", caller.UserID).
		Int64("ttl_seconds", req.TTLSeconds).
		Msg("Spawning instance")

	if err = s.client.Pull(ctx, image); err != nil {
		return nil, apierror.WrapError(apierror.ErrImagePullFailed,
			fmt.Sprintf("Failed to pull image %s", image), err)
	}

	hostPort := uint16(hostPortMin + rand.Intn(hostPortMax-hostPortMin+1))
	expiresAt := time.Now().UTC().Add(time.Duration(req.TTLSeconds) * time.Second).Format(time.RFC3339)

	containerID, err := s.client.Run(ctx, &docker.RunConfig{
		Image:         image,
		ContainerPort: containerPort,
		HostPort:      hostPort,
		Labels: map[string]string{
			"traefik.enable": "true",
			"traefik.http.services.instadock.loadbalancer.server.port": "80",
			"instadock.user_id":       caller.UserID,
			"instadock.submission_id": submissionID,
			"instadock.expires_at":    expiresAt,
		},
		MemoryBytes: s.memoryBytes,
		NanoCPUs:    s.nanoCPUs,
	})
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrRunFailed, "Failed to run container", err)
	}

	cid := docker.ShortID(containerID)
	url := fmt.Sprintf("http://%s.%s", cid, s.baseDomain)

	m := &model.Instance{
		ID:           cid,
		UserID:       caller.UserID,
		SubmissionID: submissionID,
		Image:        image,
		URL:          url,
		Port:         hostPort,
		ExpiresAt:    expiresAt,
		Status:       entity.InstanceStatusRunning,
	}
	if err = s.instances.CreateWithinQuota(ctx, m, s.quota); err != nil {
		// 记录失败时回收已启动的容器，避免脱管
		if removeErr := s.client.ForceRemove(ctx, cid); removeErr != nil {
			logger.Error().Err(removeErr).Str("instance_id", cid).
				Msg("Failed to remove container after record failure")
		}
		if errors.Is(err, repository.ErrQuotaExceeded) {
			return nil, apierror.WrapError(apierror.ErrQuotaExceeded,
				fmt.Sprintf("Quota of %d running instances reached", s.quota), err)
		}
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to save instance", err)
	}

	logger.Info().
		Str("instance_id", cid).
		Str("url", url).
		Str("expires_at", expiresAt).
		Msg("Instance spawned")

	return &entity.SpawnResponse{
		InstanceID: cid,
		URL:        url,
		ExpiresAt:  expiresAt,
	}, nil
}

// Stop 停止实例
func (s *InstanceService) Stop(ctx context.Context, caller *entity.Caller, req *entity.StopInstanceRequest) (*entity.InstanceStateChange, error) {
	inst, err := s.getOwned(ctx, caller, req.InstanceID)
	if err != nil {
		return nil, err
	}

	if err = s.client.Stop(ctx, inst.ID); err != nil {
		if docker.IsNotFound(err) {
			return nil, s.reportGone(ctx, inst.ID, err)
		}
		return nil, apierror.WrapError(apierror.ErrRuntimeFailed, "Failed to stop container", err)
	}

	if err = s.instances.UpdateStatus(ctx, inst.ID, entity.InstanceStatusStopped); err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to update instance status", err)
	}

	zerolog.Ctx(ctx).Info().Str("instance_id", inst.ID).Msg("Instance stopped")

	return &entity.InstanceStateChange{
		InstanceID:    inst.ID,
		CurrentState:  entity.InstanceStatusStopped,
		PreviousState: inst.Status,
	}, nil
}

// Start 启动已停止的实例
// 已经在运行的实例直接返回当前状态，不重置 TTL
func (s *InstanceService) Start(ctx context.Context, caller *entity.Caller, req *entity.StartInstanceRequest) (*entity.InstanceStateChange, error) {
	inst, err := s.getOwned(ctx, caller, req.InstanceID)
	if err != nil {
		return nil, err
	}

	if inst.Status == entity.InstanceStatusRunning {
		return &entity.InstanceStateChange{
			InstanceID:    inst.ID,
			CurrentState:  inst.Status,
			PreviousState: inst.Status,
		}, nil
	}

	if err = s.client.Start(ctx, inst.ID); err != nil {
		if docker.IsNotFound(err) {
			return nil, s.reportGone(ctx, inst.ID, err)
		}
		return nil, apierror.WrapError(apierror.ErrRuntimeFailed, "Failed to start container", err)
	}

	if err = s.instances.UpdateStatus(ctx, inst.ID, entity.InstanceStatusRunning); err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to update instance status", err)
	}

	zerolog.Ctx(ctx).Info().Str("instance_id", inst.ID).Msg("Instance started")

	return &entity.InstanceStateChange{
		InstanceID:    inst.ID,
		CurrentState:  entity.InstanceStatusRunning,
		PreviousState: inst.Status,
	}, nil
}

// Restart 重启实例
// 过期时间在创建时固定，重启不会延长
func (s *InstanceService) Restart(ctx context.Context, caller *entity.Caller, req *entity.RestartInstanceRequest) (*entity.InstanceStateChange, error) {
	inst, err := s.getOwned(ctx, caller, req.InstanceID)
	if err != nil {
		return nil, err
	}

	if err = s.client.Restart(ctx, inst.ID); err != nil {
		if docker.IsNotFound(err) {
			return nil, s.reportGone(ctx, inst.ID, err)
		}
		return nil, apierror.WrapError(apierror.ErrRuntimeFailed, "Failed to restart container", err)
	}

	if err = s.instances.UpdateStatus(ctx, inst.ID, entity.InstanceStatusRunning); err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to update instance status", err)
	}

	zerolog.Ctx(ctx).Info().Str("instance_id", inst.ID).Msg("Instance restarted")

	return &entity.InstanceStateChange{
		InstanceID:    inst.ID,
		CurrentState:  entity.InstanceStatusRunning,
		PreviousState: inst.Status,
	}, nil
}

// Delete 永久删除实例
// 幂等：记录不存在时也返回成功
func (s *InstanceService) Delete(ctx context.Context, caller *entity.Caller, req *entity.DeleteInstanceRequest) error {
	inst, err := s.instances.GetByID(ctx, req.InstanceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return apierror.WrapError(apierror.ErrInternalError, "Failed to get instance", err)
	}

	if !caller.CanAccess(inst.UserID) {
		return apierror.WrapError(apierror.ErrForbidden, "You cannot delete another user's instance", nil)
	}

	return s.teardown(ctx, inst.ID)
}

// Get 查询单个实例
func (s *InstanceService) Get(ctx context.Context, caller *entity.Caller, req *entity.DescribeInstanceRequest) (*entity.DescribeInstanceResponse, error) {
	inst, err := s.getOwned(ctx, caller, req.InstanceID)
	if err != nil {
		return nil, err
	}

	e, err := instanceModelToEntity(inst)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to convert instance", err)
	}

	// 附带运行时侧的实时状态，失败时退回记录中的状态
	if info, inspectErr := s.client.Inspect(ctx, inst.ID); inspectErr == nil {
		if info.Running {
			e.Status = entity.InstanceStatusRunning
		} else {
			e.Status = entity.InstanceStatusStopped
		}
	}
	return &entity.DescribeInstanceResponse{Instance: e}, nil
}

// List 列出实例
// 普通用户只能看到自己的，管理员可以看到全部
func (s *InstanceService) List(ctx context.Context, caller *entity.Caller) (*entity.DescribeInstancesResponse, error) {
	filters := map[string]interface{}{}
	if !caller.IsAdmin() {
		filters["user_id"] = caller.UserID
	}

	models, err := s.instances.List(ctx, filters)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to list instances", err)
	}

	resp := &entity.DescribeInstancesResponse{Instances: make([]entity.Instance, 0, len(models))}
	for _, m := range models {
		e, err := instanceModelToEntity(m)
		if err != nil {
			return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to convert instance", err)
		}
		resp.Instances = append(resp.Instances, *e)
	}
	return resp, nil
}

// teardown 移除容器并删除记录
// 容器已经不存在时视为成功，保证幂等
func (s *InstanceService) teardown(ctx context.Context, id string) error {
	if err := s.client.ForceRemove(ctx, id); err != nil {
		return apierror.WrapError(apierror.ErrRuntimeFailed, "Failed to remove container", err)
	}
	if err := s.instances.Delete(ctx, id); err != nil {
		return apierror.WrapError(apierror.ErrInternalError, "Failed to delete instance record", err)
	}

	zerolog.Ctx(ctx).Info().Str("instance_id", id).Msg("Instance deleted")
	return nil
}

// getOwned 获取实例并做属主检查
func (s *InstanceService) getOwned(ctx context.Context, caller *entity.Caller, id string) (*model.Instance, error) {
	inst, err := s.instances.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.WrapError(apierror.ErrNotFound, fmt.Sprintf("Instance %s not found", id), err)
		}
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to get instance", err)
	}
	if !caller.CanAccess(inst.UserID) {
		return nil, apierror.WrapError(apierror.ErrForbidden, "You cannot operate another user's instance", nil)
	}
	return inst, nil
}

// reportGone 容器在运行时侧消失：删掉残留记录并返回 410
func (s *InstanceService) reportGone(ctx context.Context, id string, cause error) error {
	zerolog.Ctx(ctx).Warn().
		Str("instance_id", id).
		Msg("Container vanished from runtime, removing stale record")

	if err := s.instances.Delete(ctx, id); err != nil {
		return apierror.WrapError(apierror.ErrInternalError, "Failed to delete stale instance record", err)
	}
	return apierror.WrapError(apierror.ErrInstanceGone,
		fmt.Sprintf("Instance %s no longer exists in the container runtime", id), cause)
}

// resolveImage 解析镜像来源，返回镜像引用和来源提交 ID
func (s *InstanceService) resolveImage(ctx context.Context, caller *entity.Caller, req *entity.SpawnRequest) (string, string, error) {
	if req.Image != "" {
		if !strings.HasPrefix(req.Image, s.registryHost+"/") {
			return "", "", apierror.WrapError(apierror.ErrForbidden,
				fmt.Sprintf("Image must come from registry %s", s.registryHost), nil)
		}
		return req.Image, "", nil
	}

	sub, err := s.submissions.GetByID(ctx, req.SubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", apierror.WrapError(apierror.ErrNotFound,
				fmt.Sprintf("Submission %s not found", req.SubmissionID), err)
		}
		return "", "", apierror.WrapError(apierror.ErrInternalError, "Failed to get submission", err)
	}

	if !caller.CanAccess(sub.UserID) {
		return "", "", apierror.WrapError(apierror.ErrForbidden,
			"You cannot spawn from another user's submission", nil)
	}

	// 必须已通过审核且构建产物就绪
	approved := sub.Status == entity.SubmissionStatusApproved || sub.Status == entity.SubmissionStatusBuilt
	if !approved || sub.ImageReference == "" {
		return "", "", apierror.WrapError(apierror.ErrPreconditionFailed,
			fmt.Sprintf("Submission %s is not ready to run (status: %s)", sub.ID, sub.Status), nil)
	}

	return sub.ImageReference, sub.ID, nil
}

// validateSpawnRequest 校验启动参数
func validateSpawnRequest(req *entity.SpawnRequest) error {
	hasImage := req.Image != ""
	hasSubmission := req.SubmissionID != ""
	if hasImage == hasSubmission {
		return apierror.WrapError(apierror.ErrInvalidRequest,
			"Exactly one of image or submission_id must be provided", nil)
	}
	if req.TTLSeconds < entity.MinTTLSeconds || req.TTLSeconds > entity.MaxTTLSeconds {
		return apierror.WrapError(apierror.ErrInvalidRequest,
			fmt.Sprintf("TTL must be between %d and %d seconds", entity.MinTTLSeconds, entity.MaxTTLSeconds), nil)
	}
	return nil
}
