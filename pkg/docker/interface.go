package docker

import (
	"context"
	"errors"

	"github.com/docker/docker/errdefs"
)

// RunConfig 容器运行配置
type RunConfig struct {
	Image         string            // 镜像引用（registry 限定）
	ContainerPort uint16            // 容器内端口（默认 80）
	HostPort      uint16            // 宿主机端口
	Labels        map[string]string // 容器标签（用于 traefik 路由等）
	MemoryBytes   int64             // 内存上限（字节）
	NanoCPUs      int64             // CPU 上限（10^9 = 1 核）
	NetworkMode   string            // 网络模式（默认 bridge）
}

// ContainerInfo 容器详情
type ContainerInfo struct {
	ID      string // 完整容器 ID
	Image   string
	Running bool
	Status  string // created, running, exited...
}

// ContainerStats 容器资源用量快照
type ContainerStats struct {
	CPU      float64 // CPU 用量（total_usage / 1e7）
	MemoryMB float64 // 内存用量（MB）
}

// ContainerSummary 容器列表项，仅用于对账视图
type ContainerSummary struct {
	ID     string // 12 位短 ID
	Name   string
	Image  string
	Status string
	CPU    float64
	MemMB  float64
}

// Client 定义容器运行时客户端接口
// 用于抽象 Docker 操作，便于测试和 mock
type Client interface {
	// Login 登录镜像仓库（配置了私有仓库凭证时的拉取前置步骤）
	Login(ctx context.Context, registry, username, password string) error

	// Pull 拉取镜像，读完拉取流才算完成
	Pull(ctx context.Context, image string) error

	// Run 创建并启动容器，返回完整容器 ID
	// 启动失败时会清理已创建的容器
	Run(ctx context.Context, cfg *RunConfig) (string, error)

	// Stop 停止容器
	Stop(ctx context.Context, id string) error

	// Start 启动已停止的容器
	Start(ctx context.Context, id string) error

	// Restart 重启容器
	Restart(ctx context.Context, id string) error

	// ForceRemove 强制删除容器，容器不存在视为成功
	ForceRemove(ctx context.Context, id string) error

	// Inspect 查询容器详情
	Inspect(ctx context.Context, id string) (*ContainerInfo, error)

	// Stats 获取容器 CPU/内存快照
	Stats(ctx context.Context, id string) (*ContainerStats, error)

	// List 枚举容器，仅用于对账视图，不作为生命周期决策依据
	List(ctx context.Context, all bool) ([]ContainerSummary, error)
}

// IsNotFound 判断错误是否表示容器在宿主机上不存在
// 宿主机侧的"不存在"是权威的：调用方应据此对账存储记录，而不是重试
// errdefs.IsNotFound 只认 Cause() 链，这里用 errors.As 把 %w 包装链也走一遍
func IsNotFound(err error) bool {
	if errdefs.IsNotFound(err) {
		return true
	}
	var notFound errdefs.ErrNotFound
	return errors.As(err, &notFound)
}
