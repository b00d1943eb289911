package docker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/strslice"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	dockernat "github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// stopTimeout 停止容器时给进程的退出时间
const stopTimeout = 10 * time.Second

// dockerCli 基于 Docker Engine API 的 Client 实现
type dockerCli struct {
	api  dockerclient.CommonAPIClient
	auth string // base64 编码的 registry 凭证，未配置时为空
}

// New 创建连接本机 Docker daemon 的客户端
func New() (Client, error) {
	api, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &dockerCli{api: api}, nil
}

// NewWithAPI 使用已有的 API 客户端创建 Client（用于注入测试替身）
func NewWithAPI(api dockerclient.CommonAPIClient) Client {
	return &dockerCli{api: api}
}

// Login 登录镜像仓库，并缓存凭证用于后续拉取
func (c *dockerCli) Login(ctx context.Context, registry, username, password string) error {
	authConfig := dockertypes.AuthConfig{
		Username:      username,
		Password:      password,
		ServerAddress: registry,
	}
	if _, err := c.api.RegistryLogin(ctx, authConfig); err != nil {
		return fmt.Errorf("registry login %s: %w", registry, err)
	}

	buf, err := json.Marshal(authConfig)
	if err != nil {
		return fmt.Errorf("encode registry auth: %w", err)
	}
	c.auth = base64.URLEncoding.EncodeToString(buf)
	return nil
}

// Pull 拉取镜像
// 拉取流必须读到 EOF，否则拉取可能尚未完成
func (c *dockerCli) Pull(ctx context.Context, image string) error {
	reader, err := c.api.ImagePull(ctx, image, dockertypes.ImagePullOptions{
		RegistryAuth: c.auth,
	})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", image, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("read pull progress for %s: %w", image, err)
	}
	return nil
}

// Run 创建并启动容器
func (c *dockerCli) Run(ctx context.Context, cfg *RunConfig) (string, error) {
	containerPort := cfg.ContainerPort
	if containerPort == 0 {
		containerPort = 80
	}
	networkMode := cfg.NetworkMode
	if networkMode == "" {
		networkMode = "bridge"
	}

	port := dockernat.Port(fmt.Sprintf("%d/tcp", containerPort))
	exposedPorts := dockernat.PortSet{port: struct{}{}}
	portBindings := dockernat.PortMap{
		port: []dockernat.PortBinding{{HostPort: fmt.Sprintf("%d", cfg.HostPort)}},
	}

	config := dockercontainer.Config{
		Image:        cfg.Image,
		Labels:       cfg.Labels,
		ExposedPorts: exposedPorts,
	}
	hostConfig := dockercontainer.HostConfig{
		PortBindings: portBindings,
		// 不给任何特权能力
		CapDrop:     strslice.StrSlice{"ALL"},
		NetworkMode: dockercontainer.NetworkMode(networkMode),
		Resources: dockercontainer.Resources{
			Memory:   cfg.MemoryBytes,
			NanoCPUs: cfg.NanoCPUs,
		},
	}

	body, err := c.api.ContainerCreate(ctx, &config, &hostConfig, nil,
		&v1.Platform{Architecture: "amd64", OS: "linux"}, "")
	if err != nil {
		return "", fmt.Errorf("create container from %s: %w", cfg.Image, err)
	}

	if err := c.api.ContainerStart(ctx, body.ID, dockertypes.ContainerStartOptions{}); err != nil {
		// 启动失败就清理掉刚创建的容器，不留下孤儿
		_ = c.api.ContainerRemove(ctx, body.ID, dockertypes.ContainerRemoveOptions{Force: true})
		return "", fmt.Errorf("start container %s: %w", body.ID, err)
	}

	return body.ID, nil
}

// Stop 停止容器
func (c *dockerCli) Stop(ctx context.Context, id string) error {
	timeout := stopTimeout
	if err := c.api.ContainerStop(ctx, id, &timeout); err != nil {
		return fmt.Errorf("stop container %s: %w", id, err)
	}
	return nil
}

// Start 启动容器
func (c *dockerCli) Start(ctx context.Context, id string) error {
	if err := c.api.ContainerStart(ctx, id, dockertypes.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", id, err)
	}
	return nil
}

// Restart 重启容器
func (c *dockerCli) Restart(ctx context.Context, id string) error {
	timeout := stopTimeout
	if err := c.api.ContainerRestart(ctx, id, &timeout); err != nil {
		return fmt.Errorf("restart container %s: %w", id, err)
	}
	return nil
}

// ForceRemove 强制删除容器，容器不存在视为成功（幂等）
func (c *dockerCli) ForceRemove(ctx context.Context, id string) error {
	err := c.api.ContainerRemove(ctx, id, dockertypes.ContainerRemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %s: %w", id, err)
	}
	return nil
}

// Inspect 查询容器详情
func (c *dockerCli) Inspect(ctx context.Context, id string) (*ContainerInfo, error) {
	resp, err := c.api.ContainerInspect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("inspect container %s: %w", id, err)
	}

	info := &ContainerInfo{
		ID:    resp.ID,
		Image: resp.Config.Image,
	}
	if resp.State != nil {
		info.Running = resp.State.Running
		info.Status = resp.State.Status
	}
	return info, nil
}

// Stats 获取容器 CPU/内存一次性快照
func (c *dockerCli) Stats(ctx context.Context, id string) (*ContainerStats, error) {
	resp, err := c.api.ContainerStatsOneShot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("stats container %s: %w", id, err)
	}
	defer resp.Body.Close()

	var stats dockertypes.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode stats for %s: %w", id, err)
	}

	return &ContainerStats{
		CPU:      float64(stats.CPUStats.CPUUsage.TotalUsage) / 1e7,
		MemoryMB: float64(stats.MemoryStats.Usage) / (1024 * 1024),
	}, nil
}

// List 枚举容器，附带可获取的资源快照
// 单个容器的 stats 失败只会让该项缺少用量数据，不影响整个列表
func (c *dockerCli) List(ctx context.Context, all bool) ([]ContainerSummary, error) {
	containers, err := c.api.ContainerList(ctx, dockertypes.ContainerListOptions{All: all})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	summaries := make([]ContainerSummary, 0, len(containers))
	for _, ct := range containers {
		summary := ContainerSummary{
			ID:     ShortID(ct.ID),
			Image:  ct.Image,
			Status: ct.Status,
		}
		if len(ct.Names) > 0 {
			summary.Name = strings.TrimPrefix(ct.Names[0], "/")
		}
		if stats, err := c.Stats(ctx, ct.ID); err == nil {
			summary.CPU = stats.CPU
			summary.MemMB = stats.MemoryMB
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ShortID 返回容器 ID 的 12 位短格式
func ShortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// NotFoundError 构造一个会被 IsNotFound 识别的错误（主要用于测试替身）
func NotFoundError(id string) error {
	return errdefs.NotFound(fmt.Errorf("no such container: %s", id))
}
