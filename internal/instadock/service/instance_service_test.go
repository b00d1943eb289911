package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jimyag/instadock/internal/instadock/entity"
	"github.com/jimyag/instadock/internal/instadock/repository"
	"github.com/jimyag/instadock/internal/instadock/repository/model"
	"github.com/jimyag/instadock/pkg/apierror"
	"github.com/jimyag/instadock/pkg/docker"
)

const testFullID = "3f4e8b0a9c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f"

type serviceFixture struct {
	repo            *repository.Repository
	instances       repository.InstanceRepository
	submissions     repository.SubmissionRepository
	client          *docker.MockClient
	instanceService *InstanceService
}

// newServiceFixture 构造带临时数据库和 mock 容器客户端的服务
func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	repo, err := repository.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.Close()
	})

	instances := repository.NewInstanceRepository(repo.DB())
	submissions := repository.NewSubmissionRepository(repo.DB())
	client := docker.NewMockClient()

	svc := NewInstanceService(
		instances, submissions, client,
		"localhost", "ghcr.io",
		5, 512*1024*1024, 1_000_000_000,
	)

	return &serviceFixture{
		repo:            repo,
		instances:       instances,
		submissions:     submissions,
		client:          client,
		instanceService: svc,
	}
}

func (f *serviceFixture) seedInstance(t *testing.T, id, userID, status string) {
	t.Helper()
	require.NoError(t, f.instances.Create(context.Background(), &model.Instance{
		ID:        id,
		UserID:    userID,
		Image:     "ghcr.io/instadock/demo:latest",
		URL:       fmt.Sprintf("http://%s.localhost", id),
		Port:      20080,
		ExpiresAt: time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		Status:    status,
	}))
}

func userCaller(id string) *entity.Caller {
	return &entity.Caller{UserID: id, Role: entity.RoleUser}
}

func adminCaller() *entity.Caller {
	return &entity.Caller{UserID: "admin-1", Role: entity.RoleAdmin}
}

func TestSpawnValidation(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	caller := userCaller("user-1")

	tests := []struct {
		name string
		req  *entity.SpawnRequest
	}{
		{"neither image nor submission", &entity.SpawnRequest{TTLSeconds: 600}},
		{"both image and submission", &entity.SpawnRequest{Image: "ghcr.io/a/b", SubmissionID: "sub-1", TTLSeconds: 600}},
		{"ttl too small", &entity.SpawnRequest{Image: "ghcr.io/a/b", TTLSeconds: 59}},
		{"ttl too large", &entity.SpawnRequest{Image: "ghcr.io/a/b", TTLSeconds: 86401}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.instanceService.Spawn(ctx, caller, tt.req)
			assert.ErrorIs(t, err, apierror.ErrInvalidRequest)
		})
	}

	// 非法参数时不触碰容器运行时
	f.client.AssertNotCalled(t, "Pull", mock.Anything, mock.Anything)
}

func TestSpawnRollsBackContainerOnRecordFailure(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	// 另一个用户已经占用了同一个容器 ID，插入会撞主键
	f.seedInstance(t, "3f4e8b0a9c1d", "user-2", entity.InstanceStatusRunning)

	f.client.On("Pull", mock.Anything, "ghcr.io/instadock/demo:latest").Return(nil)
	f.client.On("Run", mock.Anything, mock.AnythingOfType("*docker.RunConfig")).Return(testFullID, nil)
	f.client.On("ForceRemove", mock.Anything, "3f4e8b0a9c1d").Return(nil)

	_, err := f.instanceService.Spawn(ctx, userCaller("user-1"), &entity.SpawnRequest{
		Image:      "ghcr.io/instadock/demo:latest",
		TTLSeconds: 600,
	})
	assert.ErrorIs(t, err, apierror.ErrInternalError)

	// 已启动的容器被回收，不能留下脱管容器
	f.client.AssertCalled(t, "ForceRemove", mock.Anything, "3f4e8b0a9c1d")

	// 原有记录不受影响
	inst, err := f.instances.GetByID(ctx, "3f4e8b0a9c1d")
	require.NoError(t, err)
	assert.Equal(t, "user-2", inst.UserID)
}

func TestSpawnRejectsForeignRegistry(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)

	_, err := f.instanceService.Spawn(context.Background(), userCaller("user-1"), &entity.SpawnRequest{
		Image:      "docker.io/library/nginx:latest",
		TTLSeconds: 600,
	})
	assert.ErrorIs(t, err, apierror.ErrForbidden)
}

func TestSpawnFromImage(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	f.client.On("Pull", mock.Anything, "ghcr.io/instadock/demo:latest").Return(nil)
	f.client.On("Run", mock.Anything, mock.AnythingOfType("*docker.RunConfig")).Return(testFullID, nil)

	before := time.Now().UTC()
	resp, err := f.instanceService.Spawn(ctx, userCaller("user-1"), &entity.SpawnRequest{
		Image:      "ghcr.io/instadock/demo:latest",
		TTLSeconds: 600,
	})
	require.NoError(t, err)

	assert.Equal(t, "3f4e8b0a9c1d", resp.InstanceID)
	assert.Equal(t, "http://3f4e8b0a9c1d.localhost", resp.URL)

	expiresAt, err := time.Parse(time.RFC3339, resp.ExpiresAt)
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(600*time.Second), expiresAt, 5*time.Second)

	inst, err := f.instances.GetByID(ctx, "3f4e8b0a9c1d")
	require.NoError(t, err)
	assert.Equal(t, "user-1", inst.UserID)
	assert.Equal(t, entity.InstanceStatusRunning, inst.Status)
	assert.Empty(t, inst.SubmissionID)

	// 资源上限和端口区间
	runCfg := f.client.Calls[len(f.client.Calls)-1].Arguments.Get(1).(*docker.RunConfig)
	assert.Equal(t, int64(512*1024*1024), runCfg.MemoryBytes)
	assert.Equal(t, int64(1_000_000_000), runCfg.NanoCPUs)
	assert.GreaterOrEqual(t, runCfg.HostPort, uint16(20000))
	assert.LessOrEqual(t, runCfg.HostPort, uint16(40000))

	f.client.AssertExpectations(t)
}

func TestSpawnFromSubmission(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	require.NoError(t, f.submissions.Create(ctx, &model.Submission{
		ID:             "sub-1",
		UserID:         "user-1",
		Source:         "https://github.com/example/app.git",
		Branch:         "submission/user-1/sub-1",
		Status:         entity.SubmissionStatusBuilt,
		ImageReference: "ghcr.io/instadock/user-1-sub-1:latest",
	}))

	f.client.On("Pull", mock.Anything, "ghcr.io/instadock/user-1-sub-1:latest").Return(nil)
	f.client.On("Run", mock.Anything, mock.AnythingOfType("*docker.RunConfig")).Return(testFullID, nil)

	resp, err := f.instanceService.Spawn(ctx, userCaller("user-1"), &entity.SpawnRequest{
		SubmissionID: "sub-1",
		TTLSeconds:   600,
	})
	require.NoError(t, err)

	inst, err := f.instances.GetByID(ctx, resp.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", inst.SubmissionID)
	assert.Equal(t, "ghcr.io/instadock/user-1-sub-1:latest", inst.Image)
}

func TestSpawnFromSubmissionPreconditions(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	require.NoError(t, f.submissions.Create(ctx, &model.Submission{
		ID: "sub-pending", UserID: "user-1", Source: "s", Branch: "b",
		Status: entity.SubmissionStatusPending,
	}))
	require.NoError(t, f.submissions.Create(ctx, &model.Submission{
		ID: "sub-approved-noimage", UserID: "user-1", Source: "s", Branch: "b",
		Status: entity.SubmissionStatusApproved,
	}))
	require.NoError(t, f.submissions.Create(ctx, &model.Submission{
		ID: "sub-other", UserID: "user-2", Source: "s", Branch: "b",
		Status: entity.SubmissionStatusBuilt, ImageReference: "ghcr.io/instadock/x:latest",
	}))

	// 未审核通过
	_, err := f.instanceService.Spawn(ctx, userCaller("user-1"), &entity.SpawnRequest{
		SubmissionID: "sub-pending", TTLSeconds: 600,
	})
	assert.ErrorIs(t, err, apierror.ErrPreconditionFailed)

	// 审核通过但构建产物未就绪
	_, err = f.instanceService.Spawn(ctx, userCaller("user-1"), &entity.SpawnRequest{
		SubmissionID: "sub-approved-noimage", TTLSeconds: 600,
	})
	assert.ErrorIs(t, err, apierror.ErrPreconditionFailed)

	// 别人的提交
	_, err = f.instanceService.Spawn(ctx, userCaller("user-1"), &entity.SpawnRequest{
		SubmissionID: "sub-other", TTLSeconds: 600,
	})
	assert.ErrorIs(t, err, apierror.ErrForbidden)

	// 不存在的提交
	_, err = f.instanceService.Spawn(ctx, userCaller("user-1"), &entity.SpawnRequest{
		SubmissionID: "sub-missing", TTLSeconds: 600,
	})
	assert.ErrorIs(t, err, apierror.ErrNotFound)

	f.client.AssertNotCalled(t, "Pull", mock.Anything, mock.Anything)
}

func TestSpawnQuotaExceeded(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.seedInstance(t, fmt.Sprintf("inst%08d", i), "user-1", entity.InstanceStatusRunning)
	}

	_, err := f.instanceService.Spawn(ctx, userCaller("user-1"), &entity.SpawnRequest{
		Image:      "ghcr.io/instadock/demo:latest",
		TTLSeconds: 600,
	})
	assert.ErrorIs(t, err, apierror.ErrQuotaExceeded)

	// 配额满时连镜像都不拉
	f.client.AssertNotCalled(t, "Pull", mock.Anything, mock.Anything)

	// 其他用户不受影响
	f.client.On("Pull", mock.Anything, mock.Anything).Return(nil)
	f.client.On("Run", mock.Anything, mock.AnythingOfType("*docker.RunConfig")).Return(testFullID, nil)

	_, err = f.instanceService.Spawn(ctx, userCaller("user-2"), &entity.SpawnRequest{
		Image:      "ghcr.io/instadock/demo:latest",
		TTLSeconds: 600,
	})
	assert.NoError(t, err)
}

func TestSpawnPullFailure(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)

	f.client.On("Pull", mock.Anything, mock.Anything).Return(fmt.Errorf("manifest unknown"))

	_, err := f.instanceService.Spawn(context.Background(), userCaller("user-1"), &entity.SpawnRequest{
		Image:      "ghcr.io/instadock/missing:latest",
		TTLSeconds: 600,
	})
	assert.ErrorIs(t, err, apierror.ErrImagePullFailed)

	f.client.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestStopInstance(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedInstance(t, "inst00000001", "user-1", entity.InstanceStatusRunning)

	f.client.On("Stop", mock.Anything, "inst00000001").Return(nil)

	change, err := f.instanceService.Stop(ctx, userCaller("user-1"), &entity.StopInstanceRequest{InstanceID: "inst00000001"})
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusStopped, change.CurrentState)
	assert.Equal(t, entity.InstanceStatusRunning, change.PreviousState)

	inst, err := f.instances.GetByID(ctx, "inst00000001")
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusStopped, inst.Status)
}

func TestStopInstanceGone(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedInstance(t, "inst00000001", "user-1", entity.InstanceStatusRunning)

	// 容器在运行时侧已经消失
	f.client.On("Stop", mock.Anything, "inst00000001").Return(docker.NotFoundError("inst00000001"))

	_, err := f.instanceService.Stop(ctx, userCaller("user-1"), &entity.StopInstanceRequest{InstanceID: "inst00000001"})
	assert.ErrorIs(t, err, apierror.ErrInstanceGone)

	// 残留记录被清理
	_, err = f.instances.GetByID(ctx, "inst00000001")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStartInstanceNoopWhenRunning(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedInstance(t, "inst00000001", "user-1", entity.InstanceStatusRunning)

	change, err := f.instanceService.Start(ctx, userCaller("user-1"), &entity.StartInstanceRequest{InstanceID: "inst00000001"})
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusRunning, change.CurrentState)
	assert.Equal(t, entity.InstanceStatusRunning, change.PreviousState)

	// 已经在运行时不触碰运行时
	f.client.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
}

func TestStartStoppedInstance(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedInstance(t, "inst00000001", "user-1", entity.InstanceStatusStopped)

	original, err := f.instances.GetByID(ctx, "inst00000001")
	require.NoError(t, err)

	f.client.On("Start", mock.Anything, "inst00000001").Return(nil)

	change, err := f.instanceService.Start(ctx, userCaller("user-1"), &entity.StartInstanceRequest{InstanceID: "inst00000001"})
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusRunning, change.CurrentState)
	assert.Equal(t, entity.InstanceStatusStopped, change.PreviousState)

	// 过期时间不因启动而改变
	inst, err := f.instances.GetByID(ctx, "inst00000001")
	require.NoError(t, err)
	assert.Equal(t, original.ExpiresAt, inst.ExpiresAt)
}

func TestRestartKeepsExpiry(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedInstance(t, "inst00000001", "user-1", entity.InstanceStatusRunning)

	original, err := f.instances.GetByID(ctx, "inst00000001")
	require.NoError(t, err)

	f.client.On("Restart", mock.Anything, "inst00000001").Return(nil)

	_, err = f.instanceService.Restart(ctx, userCaller("user-1"), &entity.RestartInstanceRequest{InstanceID: "inst00000001"})
	require.NoError(t, err)

	inst, err := f.instances.GetByID(ctx, "inst00000001")
	require.NoError(t, err)
	assert.Equal(t, original.ExpiresAt, inst.ExpiresAt)
}

func TestDeleteInstance(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedInstance(t, "inst00000001", "user-1", entity.InstanceStatusRunning)

	f.client.On("ForceRemove", mock.Anything, "inst00000001").Return(nil)

	require.NoError(t, f.instanceService.Delete(ctx, userCaller("user-1"), &entity.DeleteInstanceRequest{InstanceID: "inst00000001"}))

	_, err := f.instances.GetByID(ctx, "inst00000001")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// 删除不存在的实例也返回成功
	require.NoError(t, f.instanceService.Delete(ctx, userCaller("user-1"), &entity.DeleteInstanceRequest{InstanceID: "inst00000001"}))
}

func TestOwnershipChecks(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedInstance(t, "inst00000001", "user-1", entity.InstanceStatusRunning)

	// 其他用户不能操作
	_, err := f.instanceService.Get(ctx, userCaller("user-2"), &entity.DescribeInstanceRequest{InstanceID: "inst00000001"})
	assert.ErrorIs(t, err, apierror.ErrForbidden)

	_, err = f.instanceService.Stop(ctx, userCaller("user-2"), &entity.StopInstanceRequest{InstanceID: "inst00000001"})
	assert.ErrorIs(t, err, apierror.ErrForbidden)

	err = f.instanceService.Delete(ctx, userCaller("user-2"), &entity.DeleteInstanceRequest{InstanceID: "inst00000001"})
	assert.ErrorIs(t, err, apierror.ErrForbidden)

	// 管理员可以
	f.client.On("Inspect", mock.Anything, "inst00000001").
		Return(&docker.ContainerInfo{ID: "inst00000001", Running: true, Status: "running"}, nil)

	resp, err := f.instanceService.Get(ctx, adminCaller(), &entity.DescribeInstanceRequest{InstanceID: "inst00000001"})
	require.NoError(t, err)
	assert.Equal(t, "user-1", resp.Instance.UserID)
}

func TestGetReportsLiveRuntimeState(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	// 记录里是 running，但运行时侧容器已经退出
	f.seedInstance(t, "inst00000001", "user-1", entity.InstanceStatusRunning)

	f.client.On("Inspect", mock.Anything, "inst00000001").
		Return(&docker.ContainerInfo{ID: "inst00000001", Running: false, Status: "exited"}, nil)

	resp, err := f.instanceService.Get(ctx, userCaller("user-1"), &entity.DescribeInstanceRequest{InstanceID: "inst00000001"})
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusStopped, resp.Instance.Status)
}

func TestGetFallsBackToStoredState(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedInstance(t, "inst00000001", "user-1", entity.InstanceStatusRunning)

	// 运行时不可达时使用记录中的状态
	f.client.On("Inspect", mock.Anything, "inst00000001").
		Return(nil, assert.AnError)

	resp, err := f.instanceService.Get(ctx, userCaller("user-1"), &entity.DescribeInstanceRequest{InstanceID: "inst00000001"})
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusRunning, resp.Instance.Status)
}

func TestListInstances(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedInstance(t, "inst00000001", "user-1", entity.InstanceStatusRunning)
	f.seedInstance(t, "inst00000002", "user-1", entity.InstanceStatusStopped)
	f.seedInstance(t, "inst00000003", "user-2", entity.InstanceStatusRunning)

	mine, err := f.instanceService.List(ctx, userCaller("user-1"))
	require.NoError(t, err)
	assert.Len(t, mine.Instances, 2)

	all, err := f.instanceService.List(ctx, adminCaller())
	require.NoError(t, err)
	assert.Len(t, all.Instances, 3)
}
