package entity

// 实例生命周期状态
const (
	InstanceStatusRunning = "running"
	InstanceStatusStopped = "stopped"
	InstanceStatusRemoved = "removed"
)

// TTL 允许的范围（秒）
const (
	MinTTLSeconds = 60
	MaxTTLSeconds = 86400
)

// Instance 实例信息
type Instance struct {
	ID           string `json:"id"`                      // 容器 ID（12 位短格式）
	UserID       string `json:"user_id"`                 // 属主用户 ID
	SubmissionID string `json:"submission_id,omitempty"` // 来源提交 ID（可选）
	Image        string `json:"image"`                   // 启动时解析出的镜像引用
	URL          string `json:"url"`                     // 路由地址 http://{cid}.{base_domain}
	Port         uint16 `json:"port"`                    // 宿主机端口
	ExpiresAt    string `json:"expires_at"`              // 绝对过期时间（ISO-8601），启动时固定
	Status       string `json:"status"`                  // running, stopped, removed
	CreatedAt    string `json:"created_at"`              // 创建时间
}

// SpawnRequest 启动实例请求
// Image 和 SubmissionID 必须二选一
type SpawnRequest struct {
	Image        string `json:"image,omitempty"`         // 镜像引用（registry 限定）
	SubmissionID string `json:"submission_id,omitempty"` // 已审核通过的提交 ID
	TTLSeconds   int64  `json:"ttl_seconds"`             // 存活时间（秒），[60, 86400]
}

// SpawnResponse 启动实例响应
type SpawnResponse struct {
	InstanceID string `json:"instance_id"`
	URL        string `json:"url"`
	ExpiresAt  string `json:"expires_at"`
}

// StopInstanceRequest 停止实例请求
type StopInstanceRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
}

// StartInstanceRequest 启动已停止实例的请求
type StartInstanceRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
}

// RestartInstanceRequest 重启实例请求
type RestartInstanceRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
}

// DeleteInstanceRequest 永久删除实例请求
type DeleteInstanceRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
}

// DescribeInstanceRequest 查询单个实例请求
type DescribeInstanceRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
}

// DescribeInstanceResponse 查询单个实例响应
type DescribeInstanceResponse struct {
	Instance *Instance `json:"instance"`
}

// DescribeInstancesResponse 查询实例列表响应
type DescribeInstancesResponse struct {
	Instances []Instance `json:"instances"`
}

// InstanceStateChange 实例状态变更信息
type InstanceStateChange struct {
	InstanceID    string `json:"instanceID"`
	CurrentState  string `json:"currentState"`  // 当前状态
	PreviousState string `json:"previousState"` // 之前的状态
}
