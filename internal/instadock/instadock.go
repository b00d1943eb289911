// Package instadock 提供服务器的主入口和初始化逻辑
package instadock

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jimmicro/grace"
	"github.com/rs/zerolog"

	"github.com/jimyag/instadock/internal/instadock/api"
	"github.com/jimyag/instadock/internal/instadock/config"
	"github.com/jimyag/instadock/internal/instadock/repository"
	"github.com/jimyag/instadock/internal/instadock/service"
	"github.com/jimyag/instadock/pkg/docker"
)

type Server struct {
	cfg    *config.Config
	api    *api.API
	reaper *service.Reaper
	repo   *repository.Repository
}

func New(cfg *config.Config) (*Server, error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger

	// 1. 打开数据库
	repo, err := repository.New(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	instanceRepo := repository.NewInstanceRepository(repo.DB())
	submissionRepo := repository.NewSubmissionRepository(repo.DB())

	// 2. 创建容器运行时客户端
	dockerClient, err := docker.New()
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	// 2.1 配置了凭证时登录镜像仓库
	// 登录失败不阻塞启动，只影响私有镜像拉取
	if cfg.RegistryToken != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err = dockerClient.Login(ctx, cfg.RegistryHost, cfg.RegistryUser, cfg.RegistryToken); err != nil {
			logger.Warn().Err(err).
				Str("registry", cfg.RegistryHost).
				Msg("Registry login failed, private images will not be pullable")
		} else {
			logger.Info().Str("registry", cfg.RegistryHost).Msg("Registry login succeeded")
		}
		cancel()
	}

	memoryBytes, err := cfg.MemoryLimitBytes()
	if err != nil {
		return nil, fmt.Errorf("parse memory limit: %w", err)
	}

	// 3. 创建 Submission Service
	submissionService := service.NewSubmissionService(
		submissionRepo, instanceRepo,
		cfg.RegistryHost, cfg.RegistryNamespace,
	)

	// 4. 创建 Instance Service
	instanceService := service.NewInstanceService(
		instanceRepo, submissionRepo, dockerClient,
		cfg.BaseDomain, cfg.RegistryHost,
		cfg.QuotaPerUser, memoryBytes, cfg.NanoCPUs,
	)

	// 5. 创建 System Service
	systemService := service.NewSystemService(dockerClient)

	// 6. 创建过期回收服务
	reaper := service.NewReaper(instanceService, cfg.ReapInterval)

	// 7. 创建 API
	apiInstance, err := api.New(cfg.Address, instanceService, submissionService, systemService)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:    cfg,
		api:    apiInstance,
		reaper: reaper,
		repo:   repo,
	}, nil
}

func (s *Server) Run(ctx context.Context) error {
	// 使用 grace.Shepherd 管理服务生命周期
	services := []grace.Grace{
		s.api,
		s.reaper,
	}

	shepherd := grace.NewShepherd(
		services,
		grace.WithTimeout(30*time.Second),
		grace.WithLogger(&zerologLogger{}),
	)

	shepherd.Start(ctx)
	return s.repo.Close()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.reaper.Shutdown(ctx); err != nil {
		return err
	}
	if err := s.api.Shutdown(ctx); err != nil {
		return err
	}
	return s.repo.Close()
}

// Name 实现 grace.Grace 接口
func (s *Server) Name() string {
	return "InstaDock Server"
}

// zerologLogger 实现 grace.Logger 接口
type zerologLogger struct{}

func (l *zerologLogger) Info(msg string, args ...interface{}) {
	logger := zerolog.DefaultContextLogger.Info()
	// 如果有参数，使用 Msgf 格式化消息
	if len(args) > 0 {
		logger.Msgf(msg, args...)
	} else {
		logger.Msg(msg)
	}
}

func (l *zerologLogger) Error(msg string, args ...interface{}) {
	logger := zerolog.DefaultContextLogger.Error()
	// 如果有参数，使用 Msgf 格式化消息
	if len(args) > 0 {
		logger.Msgf(msg, args...)
	} else {
		logger.Msg(msg)
	}
}
