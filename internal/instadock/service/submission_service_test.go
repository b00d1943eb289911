package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jimyag/instadock/internal/instadock/entity"
	"github.com/jimyag/instadock/internal/instadock/repository"
	"github.com/jimyag/instadock/internal/instadock/repository/model"
	"github.com/jimyag/instadock/pkg/apierror"
)

func newSubmissionService(t *testing.T, f *serviceFixture) *SubmissionService {
	t.Helper()
	return NewSubmissionService(f.submissions, f.instances, "ghcr.io", "instadock")
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	svc := newSubmissionService(t, f)
	ctx := context.Background()

	resp, err := svc.Submit(ctx, userCaller("user-12345678"), &entity.SubmitRequest{
		RepoURL: "https://github.com/example/app.git",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SubmissionID)
	assert.Contains(t, resp.SubmissionID, "sub-")
	assert.Equal(t, "submission/user-123/"+shortTag(resp.SubmissionID), resp.Branch)

	sub, err := f.submissions.GetByID(ctx, resp.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionStatusPending, sub.Status)
	assert.Equal(t, "https://github.com/example/app.git", sub.Source)
	assert.Empty(t, sub.ImageReference)
}

func TestSubmitArchive(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	svc := newSubmissionService(t, f)
	ctx := context.Background()

	resp, err := svc.Submit(ctx, userCaller("user-1"), &entity.SubmitRequest{
		Archive:      true,
		ArchivePaths: []string{"src/main.go", "Dockerfile", "static/index.html"},
	})
	require.NoError(t, err)

	sub, err := f.submissions.GetByID(ctx, resp.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, entity.SourceUploadedArchive, sub.Source)
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	svc := newSubmissionService(t, f)
	ctx := context.Background()
	caller := userCaller("user-1")

	tests := []struct {
		name string
		req  *entity.SubmitRequest
	}{
		{"no source", &entity.SubmitRequest{}},
		{"both sources", &entity.SubmitRequest{RepoURL: "https://github.com/a/b", Archive: true}},
		{"non-http url", &entity.SubmitRequest{RepoURL: "git@github.com:a/b.git"}},
		{"forbidden root github", &entity.SubmitRequest{Archive: true, ArchivePaths: []string{".github/workflows/evil.yml"}}},
		{"forbidden root backend", &entity.SubmitRequest{Archive: true, ArchivePaths: []string{"backend/app.py"}}},
		{"forbidden root venv", &entity.SubmitRequest{Archive: true, ArchivePaths: []string{"venv/bin/python"}}},
		{"forbidden root env", &entity.SubmitRequest{Archive: true, ArchivePaths: []string{".env"}}},
		{"path escape", &entity.SubmitRequest{Archive: true, ArchivePaths: []string{"../outside"}}},
		{"absolute path", &entity.SubmitRequest{Archive: true, ArchivePaths: []string{"/etc/passwd"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, caller, tt.req)
			assert.ErrorIs(t, err, apierror.ErrInvalidSubmission)
		})
	}
}

func TestApproveAndReject(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	svc := newSubmissionService(t, f)
	ctx := context.Background()

	require.NoError(t, f.submissions.Create(ctx, &model.Submission{
		ID: "sub-1", UserID: "user-1", Source: "s", Branch: "b",
		Status: entity.SubmissionStatusPending,
	}))

	// pending -> approved
	change, err := svc.Approve(ctx, &entity.ApproveSubmissionRequest{SubmissionID: "sub-1"})
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionStatusApproved, change.CurrentState)
	assert.Equal(t, entity.SubmissionStatusPending, change.PreviousState)

	// 重复 approve 幂等
	change, err = svc.Approve(ctx, &entity.ApproveSubmissionRequest{SubmissionID: "sub-1"})
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionStatusApproved, change.CurrentState)
	assert.Equal(t, entity.SubmissionStatusApproved, change.PreviousState)

	// approved -> rejected
	change, err = svc.Reject(ctx, &entity.RejectSubmissionRequest{SubmissionID: "sub-1"})
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionStatusRejected, change.CurrentState)

	// rejected -> approved（重新审核）
	change, err = svc.Approve(ctx, &entity.ApproveSubmissionRequest{SubmissionID: "sub-1"})
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionStatusApproved, change.CurrentState)
	assert.Equal(t, entity.SubmissionStatusRejected, change.PreviousState)

	// 不存在的提交
	_, err = svc.Approve(ctx, &entity.ApproveSubmissionRequest{SubmissionID: "sub-missing"})
	assert.ErrorIs(t, err, apierror.ErrNotFound)
}

func TestBuildComplete(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	svc := newSubmissionService(t, f)
	ctx := context.Background()

	require.NoError(t, f.submissions.Create(ctx, &model.Submission{
		ID: "sub-12345678", UserID: "user-87654321", Source: "s", Branch: "b",
		Status: entity.SubmissionStatusApproved,
	}))

	// 没有显式镜像引用时使用规范标签
	change, err := svc.BuildComplete(ctx, &entity.BuildCompleteRequest{SubmissionID: "sub-12345678"})
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionStatusBuilt, change.CurrentState)

	sub, err := f.submissions.GetByID(ctx, "sub-12345678")
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io/instadock/user-876-sub-1234:latest", sub.ImageReference)

	// built 之后不能再 build-complete
	_, err = svc.BuildComplete(ctx, &entity.BuildCompleteRequest{SubmissionID: "sub-12345678"})
	assert.ErrorIs(t, err, apierror.ErrInvalidTransition)
}

func TestBuildCompleteRequiresApproved(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	svc := newSubmissionService(t, f)
	ctx := context.Background()

	require.NoError(t, f.submissions.Create(ctx, &model.Submission{
		ID: "sub-1", UserID: "user-1", Source: "s", Branch: "b",
		Status: entity.SubmissionStatusPending,
	}))

	_, err := svc.BuildComplete(ctx, &entity.BuildCompleteRequest{
		SubmissionID:   "sub-1",
		ImageReference: "ghcr.io/instadock/x:latest",
	})
	assert.ErrorIs(t, err, apierror.ErrInvalidTransition)

	// 记录未被污染
	sub, err := f.submissions.GetByID(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionStatusPending, sub.Status)
	assert.Empty(t, sub.ImageReference)

	_, err = svc.BuildComplete(ctx, &entity.BuildCompleteRequest{SubmissionID: "sub-missing"})
	assert.ErrorIs(t, err, apierror.ErrNotFound)
}

// buildRacingSubmissions 在每次读到 approved 之后立刻标记 built，
// 模拟构建完成回调挤进读取和状态更新之间
type buildRacingSubmissions struct {
	repository.SubmissionRepository
	image string
}

func (r *buildRacingSubmissions) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	sub, err := r.SubmissionRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == entity.SubmissionStatusApproved {
		if _, err := r.SubmissionRepository.MarkBuilt(ctx, id, r.image); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

func TestRejectLosesRaceWithBuildComplete(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	racing := &buildRacingSubmissions{
		SubmissionRepository: f.submissions,
		image:                "ghcr.io/instadock/x:latest",
	}
	svc := NewSubmissionService(racing, f.instances, "ghcr.io", "instadock")
	ctx := context.Background()

	require.NoError(t, f.submissions.Create(ctx, &model.Submission{
		ID: "sub-1", UserID: "user-1", Source: "s", Branch: "b",
		Status: entity.SubmissionStatusApproved,
	}))

	// 读到的是 approved，但更新落地前已经变成 built：守卫拒绝降级
	_, err := svc.Reject(ctx, &entity.RejectSubmissionRequest{SubmissionID: "sub-1"})
	assert.ErrorIs(t, err, apierror.ErrInvalidTransition)

	sub, err := f.submissions.GetByID(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, entity.SubmissionStatusBuilt, sub.Status)
	assert.Equal(t, "ghcr.io/instadock/x:latest", sub.ImageReference)

	// Approve 也一样不能覆盖 built
	_, err = svc.Approve(ctx, &entity.ApproveSubmissionRequest{SubmissionID: "sub-1"})
	assert.ErrorIs(t, err, apierror.ErrInvalidTransition)
}

func TestApproveBuiltSubmission(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	svc := newSubmissionService(t, f)
	ctx := context.Background()

	require.NoError(t, f.submissions.Create(ctx, &model.Submission{
		ID: "sub-1", UserID: "user-1", Source: "s", Branch: "b",
		Status: entity.SubmissionStatusBuilt, ImageReference: "ghcr.io/instadock/x:latest",
	}))

	_, err := svc.Approve(ctx, &entity.ApproveSubmissionRequest{SubmissionID: "sub-1"})
	assert.ErrorIs(t, err, apierror.ErrInvalidTransition)

	_, err = svc.Reject(ctx, &entity.RejectSubmissionRequest{SubmissionID: "sub-1"})
	assert.ErrorIs(t, err, apierror.ErrInvalidTransition)
}

func TestPurgeSubmission(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	svc := newSubmissionService(t, f)
	ctx := context.Background()

	require.NoError(t, f.submissions.Create(ctx, &model.Submission{
		ID: "sub-1", UserID: "user-1", Source: "s", Branch: "b",
		Status: entity.SubmissionStatusBuilt, ImageReference: "ghcr.io/instadock/x:latest",
	}))

	// 仍有实例引用时照常删除，实例保留
	require.NoError(t, f.instances.Create(ctx, &model.Instance{
		ID: "inst00000001", UserID: "user-1", SubmissionID: "sub-1",
		Image: "ghcr.io/instadock/x:latest", URL: "http://inst00000001.localhost",
		Port: 20080, ExpiresAt: "2099-01-01T00:00:00Z", Status: entity.InstanceStatusRunning,
	}))

	require.NoError(t, svc.Purge(ctx, &entity.PurgeSubmissionRequest{SubmissionID: "sub-1"}))

	_, err := f.submissions.GetByID(ctx, "sub-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	inst, err := f.instances.GetByID(ctx, "inst00000001")
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusRunning, inst.Status)

	// 不存在的提交
	err = svc.Purge(ctx, &entity.PurgeSubmissionRequest{SubmissionID: "sub-1"})
	assert.ErrorIs(t, err, apierror.ErrNotFound)
}

func TestListSubmissions(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	svc := newSubmissionService(t, f)
	ctx := context.Background()

	require.NoError(t, f.submissions.Create(ctx, &model.Submission{
		ID: "sub-1", UserID: "user-1", Source: "s", Branch: "b", Status: entity.SubmissionStatusPending,
	}))
	require.NoError(t, f.submissions.Create(ctx, &model.Submission{
		ID: "sub-2", UserID: "user-2", Source: "s", Branch: "b", Status: entity.SubmissionStatusPending,
	}))
	require.NoError(t, f.submissions.Create(ctx, &model.Submission{
		ID: "sub-3", UserID: "user-2", Source: "s", Branch: "b", Status: entity.SubmissionStatusApproved,
	}))

	// 普通用户只看到自己的
	mine, err := svc.List(ctx, userCaller("user-1"), &entity.DescribeSubmissionsRequest{})
	require.NoError(t, err)
	assert.Len(t, mine.Submissions, 1)

	// 管理员看到全部，可按状态过滤
	all, err := svc.List(ctx, adminCaller(), &entity.DescribeSubmissionsRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Submissions, 3)

	pending, err := svc.List(ctx, adminCaller(), &entity.DescribeSubmissionsRequest{Status: entity.SubmissionStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending.Submissions, 2)
}
