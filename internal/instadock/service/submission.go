package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/jimyag/instadock/internal/instadock/entity"
	"github.com/jimyag/instadock/internal/instadock/repository"
	"github.com/jimyag/instadock/internal/instadock/repository/model"
	"github.com/jimyag/instadock/pkg/apierror"
	"github.com/jimyag/instadock/pkg/idgen"
)

// forbiddenArchiveRoots 归档内不允许出现的顶层条目
// 这些目录会覆盖构建流水线自己的文件
var forbiddenArchiveRoots = []string{".github", "backend", "venv", ".env"}

// SubmissionService 提交服务，管理代码提交的审核流程
type SubmissionService struct {
	submissions repository.SubmissionRepository
	instances   repository.InstanceRepository
	idGen       *idgen.Generator

	registryHost      string
	registryNamespace string
}

// NewSubmissionService 创建新的 Submission Service
func NewSubmissionService(
	submissions repository.SubmissionRepository,
	instances repository.InstanceRepository,
	registryHost string,
	registryNamespace string,
) *SubmissionService {
	return &SubmissionService{
		submissions:       submissions,
		instances:         instances,
		idGen:             idgen.New(),
		registryHost:      registryHost,
		registryNamespace: registryNamespace,
	}
}

// Submit 创建提交
// 来源二选一：git 仓库地址或上传的归档
func (s *SubmissionService) Submit(ctx context.Context, caller *entity.Caller, req *entity.SubmitRequest) (*entity.SubmitResponse, error) {
	logger := zerolog.Ctx(ctx)

	source, err := validateSource(req)
	if err != nil {
		return nil, err
	}

	id, err := s.idGen.GenerateSubmissionID()
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to generate submission ID", err)
	}

	branch := fmt.Sprintf("submission/%s/%s", shortTag(caller.UserID), shortTag(id))

	m := &model.Submission{
		ID:     id,
		UserID: caller.UserID,
		Source: source,
		Branch: branch,
		Status: entity.SubmissionStatusPending,
	}
	if err = s.submissions.Create(ctx, m); err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to save submission", err)
	}

	logger.Info().
		Str("submission_id", id).
		Str("user_id", caller.UserID).
		Str("branch", branch).
		Msg("Submission created")

	return &entity.SubmitResponse{
		SubmissionID: id,
		Branch:       branch,
	}, nil
}

// Approve 审核通过
// pending 和 rejected 都可以转为 approved，拒绝后允许重新审核
func (s *SubmissionService) Approve(ctx context.Context, req *entity.ApproveSubmissionRequest) (*entity.SubmissionStateChange, error) {
	sub, err := s.getSubmission(ctx, req.SubmissionID)
	if err != nil {
		return nil, err
	}

	switch sub.Status {
	case entity.SubmissionStatusApproved:
		// 重复审核通过是幂等的
		return &entity.SubmissionStateChange{
			SubmissionID:  sub.ID,
			CurrentState:  sub.Status,
			PreviousState: sub.Status,
		}, nil
	case entity.SubmissionStatusBuilt:
		return nil, apierror.WrapError(apierror.ErrInvalidTransition, "Cannot approve a built submission", nil)
	}

	ok, err := s.submissions.UpdateStatusFrom(ctx, sub.ID, sub.Status, entity.SubmissionStatusApproved)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to update submission status", err)
	}
	if !ok {
		// 读取之后状态被并发修改，守卫没有命中
		return nil, apierror.WrapError(apierror.ErrInvalidTransition,
			fmt.Sprintf("Submission is no longer %s", sub.Status), nil)
	}

	zerolog.Ctx(ctx).Info().
		Str("submission_id", sub.ID).
		Str("previous_state", sub.Status).
		Msg("Submission approved")

	return &entity.SubmissionStateChange{
		SubmissionID:  sub.ID,
		CurrentState:  entity.SubmissionStatusApproved,
		PreviousState: sub.Status,
	}, nil
}

// Reject 审核拒绝
func (s *SubmissionService) Reject(ctx context.Context, req *entity.RejectSubmissionRequest) (*entity.SubmissionStateChange, error) {
	sub, err := s.getSubmission(ctx, req.SubmissionID)
	if err != nil {
		return nil, err
	}

	switch sub.Status {
	case entity.SubmissionStatusRejected:
		return &entity.SubmissionStateChange{
			SubmissionID:  sub.ID,
			CurrentState:  sub.Status,
			PreviousState: sub.Status,
		}, nil
	case entity.SubmissionStatusBuilt:
		return nil, apierror.WrapError(apierror.ErrInvalidTransition, "Cannot reject a built submission", nil)
	}

	ok, err := s.submissions.UpdateStatusFrom(ctx, sub.ID, sub.Status, entity.SubmissionStatusRejected)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to update submission status", err)
	}
	if !ok {
		// 读取之后状态被并发修改，守卫没有命中
		return nil, apierror.WrapError(apierror.ErrInvalidTransition,
			fmt.Sprintf("Submission is no longer %s", sub.Status), nil)
	}

	zerolog.Ctx(ctx).Info().
		Str("submission_id", sub.ID).
		Str("previous_state", sub.Status).
		Msg("Submission rejected")

	return &entity.SubmissionStateChange{
		SubmissionID:  sub.ID,
		CurrentState:  entity.SubmissionStatusRejected,
		PreviousState: sub.Status,
	}, nil
}

// BuildComplete 外部构建流水线的完成回调
// 只有 approved 状态的提交可以标记为 built
func (s *SubmissionService) BuildComplete(ctx context.Context, req *entity.BuildCompleteRequest) (*entity.SubmissionStateChange, error) {
	sub, err := s.getSubmission(ctx, req.SubmissionID)
	if err != nil {
		return nil, err
	}

	imageRef := req.ImageReference
	if imageRef == "" {
		imageRef = s.deriveImageTag(sub.UserID, sub.ID)
	}

	ok, err := s.submissions.MarkBuilt(ctx, sub.ID, imageRef)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to mark submission built", err)
	}
	if !ok {
		return nil, apierror.WrapError(apierror.ErrInvalidTransition,
			fmt.Sprintf("Submission is not approved (current: %s)", sub.Status), nil)
	}

	zerolog.Ctx(ctx).Info().
		Str("submission_id", sub.ID).
		Str("image", imageRef).
		Msg("Submission build complete")

	return &entity.SubmissionStateChange{
		SubmissionID:  sub.ID,
		CurrentState:  entity.SubmissionStatusBuilt,
		PreviousState: sub.Status,
	}, nil
}

// Purge 永久删除提交记录
// 仍被实例引用时照常删除，但记录告警，实例保留其镜像副本继续运行
func (s *SubmissionService) Purge(ctx context.Context, req *entity.PurgeSubmissionRequest) error {
	logger := zerolog.Ctx(ctx)

	if _, err := s.getSubmission(ctx, req.SubmissionID); err != nil {
		return err
	}

	referencing, err := s.instances.List(ctx, map[string]interface{}{"submission_id": req.SubmissionID})
	if err != nil {
		return apierror.WrapError(apierror.ErrInternalError, "Failed to list referencing instances", err)
	}
	if len(referencing) > 0 {
		logger.Warn().
			Str("submission_id", req.SubmissionID).
			Int("instances", len(referencing)).
			Msg("Purging submission still referenced by instances")
	}

	if err = s.submissions.Delete(ctx, req.SubmissionID); err != nil {
		return apierror.WrapError(apierror.ErrInternalError, "Failed to delete submission", err)
	}

	logger.Info().Str("submission_id", req.SubmissionID).Msg("Submission purged")
	return nil
}

// List 列出提交
// 普通用户只能看到自己的，管理员可以看到全部并按状态过滤
func (s *SubmissionService) List(ctx context.Context, caller *entity.Caller, req *entity.DescribeSubmissionsRequest) (*entity.DescribeSubmissionsResponse, error) {
	filters := map[string]interface{}{}
	if !caller.IsAdmin() {
		filters["user_id"] = caller.UserID
	}
	if req.Status != "" {
		filters["status"] = req.Status
	}

	models, err := s.submissions.List(ctx, filters)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to list submissions", err)
	}

	resp := &entity.DescribeSubmissionsResponse{Submissions: make([]entity.Submission, 0, len(models))}
	for _, m := range models {
		e, err := submissionModelToEntity(m)
		if err != nil {
			return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to convert submission", err)
		}
		resp.Submissions = append(resp.Submissions, *e)
	}
	return resp, nil
}

// getSubmission 获取提交，不存在时返回 NotFound
func (s *SubmissionService) getSubmission(ctx context.Context, id string) (*model.Submission, error) {
	sub, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.WrapError(apierror.ErrNotFound, fmt.Sprintf("Submission %s not found", id), err)
		}
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to get submission", err)
	}
	return sub, nil
}

// deriveImageTag 提交的规范镜像标签
// {registry}/{namespace}/{user8}-{sub8}:latest
func (s *SubmissionService) deriveImageTag(userID, submissionID string) string {
	return fmt.Sprintf("%s/%s/%s-%s:latest",
		s.registryHost, s.registryNamespace, shortTag(userID), shortTag(submissionID))
}

// validateSource 校验提交来源并返回存储形式
func validateSource(req *entity.SubmitRequest) (string, error) {
	hasRepo := req.RepoURL != ""
	if hasRepo == req.Archive {
		return "", apierror.WrapError(apierror.ErrInvalidSubmission,
			"Exactly one of repo_url or archive must be provided", nil)
	}

	if hasRepo {
		if !strings.HasPrefix(req.RepoURL, "https://") && !strings.HasPrefix(req.RepoURL, "http://") {
			return "", apierror.WrapError(apierror.ErrInvalidSubmission,
				"Repository URL must be an http(s) URL", nil)
		}
		return req.RepoURL, nil
	}

	for _, p := range req.ArchivePaths {
		if err := validateArchivePath(p); err != nil {
			return "", err
		}
	}
	return entity.SourceUploadedArchive, nil
}

// validateArchivePath 拒绝路径逃逸和保留的顶层目录
func validateArchivePath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "..") {
		return apierror.WrapError(apierror.ErrInvalidSubmission,
			fmt.Sprintf("Illegal path in archive: %s", p), nil)
	}

	root := strings.SplitN(path.Clean(p), "/", 2)[0]
	for _, forbidden := range forbiddenArchiveRoots {
		if root == forbidden {
			return apierror.WrapError(apierror.ErrInvalidSubmission,
				fmt.Sprintf("Archive must not contain top-level %s", forbidden), nil)
		}
	}
	return nil
}

// shortTag 取 ID 的前 8 个字符，用于分支名和镜像标签
func shortTag(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
