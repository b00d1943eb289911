package entity

// 提交生命周期状态
const (
	SubmissionStatusPending  = "pending"
	SubmissionStatusApproved = "approved"
	SubmissionStatusRejected = "rejected"
	SubmissionStatusBuilt    = "built"
)

// 归档提交的来源标记
const SourceUploadedArchive = "uploaded_archive"

// Submission 提交信息
type Submission struct {
	ID             string `json:"id"`                        // sub-{递增 ID}
	UserID         string `json:"user_id"`                   // 属主用户 ID
	Source         string `json:"source"`                    // 仓库地址或归档标记
	Branch         string `json:"branch"`                    // submission/{user8}/{sub8}
	Status         string `json:"status"`                    // pending, approved, rejected, built
	ImageReference string `json:"image_reference,omitempty"` // 构建完成后才非空
	CreatedAt      string `json:"created_at"`
}

// SubmitRequest 创建提交请求
// 来源二选一：RepoURL（git 仓库）或 Archive（上传的归档）
type SubmitRequest struct {
	RepoURL      string   `json:"repo_url,omitempty"`      // git 仓库地址
	Ref          string   `json:"ref,omitempty"`           // 可选的分支/标签/commit
	Archive      bool     `json:"archive,omitempty"`       // 来源是上传的归档
	ArchivePaths []string `json:"archive_paths,omitempty"` // 归档内的文件路径列表，用于安全检查
}

// SubmitResponse 创建提交响应
type SubmitResponse struct {
	SubmissionID string `json:"submission_id"`
	Branch       string `json:"branch"`
}

// ApproveSubmissionRequest 审核通过请求
type ApproveSubmissionRequest struct {
	SubmissionID string `json:"submission_id" binding:"required"`
}

// RejectSubmissionRequest 审核拒绝请求
type RejectSubmissionRequest struct {
	SubmissionID string `json:"submission_id" binding:"required"`
}

// BuildCompleteRequest 构建完成信号
// 由外部 CI 回调，ImageReference 为空时使用规范推导的镜像标签
type BuildCompleteRequest struct {
	SubmissionID   string `json:"submission_id"   binding:"required"`
	ImageReference string `json:"image_reference,omitempty"`
}

// PurgeSubmissionRequest 永久清除提交请求（管理员）
type PurgeSubmissionRequest struct {
	SubmissionID string `json:"submission_id" binding:"required"`
}

// DescribeSubmissionsRequest 查询提交列表请求
type DescribeSubmissionsRequest struct {
	Status string `json:"status,omitempty"` // 为空时返回全部
}

// DescribeSubmissionsResponse 查询提交列表响应
type DescribeSubmissionsResponse struct {
	Submissions []Submission `json:"submissions"`
}

// SubmissionStateChange 提交状态变更信息
type SubmissionStateChange struct {
	SubmissionID  string `json:"submissionID"`
	CurrentState  string `json:"currentState"`
	PreviousState string `json:"previousState"`
}
