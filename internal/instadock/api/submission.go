package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jimyag/instadock/internal/instadock/entity"
	"github.com/jimyag/instadock/internal/instadock/service"
	"github.com/jimyag/instadock/pkg/ginx"
)

// SubmissionServiceInterface 定义提交服务的接口
type SubmissionServiceInterface interface {
	Submit(ctx context.Context, caller *entity.Caller, req *entity.SubmitRequest) (*entity.SubmitResponse, error)
	Approve(ctx context.Context, req *entity.ApproveSubmissionRequest) (*entity.SubmissionStateChange, error)
	Reject(ctx context.Context, req *entity.RejectSubmissionRequest) (*entity.SubmissionStateChange, error)
	BuildComplete(ctx context.Context, req *entity.BuildCompleteRequest) (*entity.SubmissionStateChange, error)
	Purge(ctx context.Context, req *entity.PurgeSubmissionRequest) error
	List(ctx context.Context, caller *entity.Caller, req *entity.DescribeSubmissionsRequest) (*entity.DescribeSubmissionsResponse, error)
}

type Submission struct {
	submissionService SubmissionServiceInterface
}

func NewSubmission(submissionService *service.SubmissionService) *Submission {
	return &Submission{
		submissionService: submissionService,
	}
}

func (s *Submission) RegisterRoutes(router *gin.RouterGroup) {
	submissionRouter := router.Group("/submissions")
	submissionRouter.POST("/submit", ginx.Adapt5(s.Submit))
	submissionRouter.POST("/describe", ginx.Adapt5(s.Describe))

	// 审核和清除属于管理员操作，构建回调来自受信的流水线
	adminRouter := submissionRouter.Group("", RequireAdmin())
	adminRouter.POST("/approve", ginx.Adapt5(s.Approve))
	adminRouter.POST("/reject", ginx.Adapt5(s.Reject))
	adminRouter.POST("/build-complete", ginx.Adapt5(s.BuildComplete))
	adminRouter.POST("/purge", ginx.Adapt4(s.Purge))
}

func (s *Submission) Submit(ctx *gin.Context, req *entity.SubmitRequest) (*entity.SubmitResponse, error) {
	logger := zerolog.Ctx(ctx)

	resp, err := s.submissionService.Submit(ctx, callerFrom(ctx), req)
	if err != nil {
		logger.Error().
			Err(err).
			Msg("Failed to create submission")
		return nil, err
	}

	logger.Info().
		Str("submission_id", resp.SubmissionID).
		Str("branch", resp.Branch).
		Msg("Submission created successfully")

	return resp, nil
}

func (s *Submission) Approve(ctx *gin.Context, req *entity.ApproveSubmissionRequest) (*entity.SubmissionStateChange, error) {
	logger := zerolog.Ctx(ctx)

	change, err := s.submissionService.Approve(ctx, req)
	if err != nil {
		logger.Error().
			Err(err).
			Str("submission_id", req.SubmissionID).
			Msg("Failed to approve submission")
		return nil, err
	}
	return change, nil
}

func (s *Submission) Reject(ctx *gin.Context, req *entity.RejectSubmissionRequest) (*entity.SubmissionStateChange, error) {
	logger := zerolog.Ctx(ctx)

	change, err := s.submissionService.Reject(ctx, req)
	if err != nil {
		logger.Error().
			Err(err).
			Str("submission_id", req.SubmissionID).
			Msg("Failed to reject submission")
		return nil, err
	}
	return change, nil
}

func (s *Submission) BuildComplete(ctx *gin.Context, req *entity.BuildCompleteRequest) (*entity.SubmissionStateChange, error) {
	logger := zerolog.Ctx(ctx)

	change, err := s.submissionService.BuildComplete(ctx, req)
	if err != nil {
		logger.Error().
			Err(err).
			Str("submission_id", req.SubmissionID).
			Msg("Failed to record build completion")
		return nil, err
	}
	return change, nil
}

func (s *Submission) Purge(ctx *gin.Context, req *entity.PurgeSubmissionRequest) error {
	logger := zerolog.Ctx(ctx)

	if err := s.submissionService.Purge(ctx, req); err != nil {
		logger.Error().
			Err(err).
			Str("submission_id", req.SubmissionID).
			Msg("Failed to purge submission")
		return err
	}
	return nil
}

func (s *Submission) Describe(ctx *gin.Context, req *entity.DescribeSubmissionsRequest) (*entity.DescribeSubmissionsResponse, error) {
	return s.submissionService.List(ctx, callerFrom(ctx), req)
}
