// Package config 加载服务配置
// 配置来源为环境变量，可选地叠加一个 YAML 文件（INSTADOCK_CONFIG 指定路径），
// 环境变量优先级高于文件
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Address 是 API 服务监听地址
	// 可以通过环境变量 INSTADOCK_ADDRESS 配置
	Address string `yaml:"address"`

	// DataDir 是数据目录，用于存储 sqlite 数据库
	// 可以通过环境变量 INSTADOCK_DATA_DIR 配置
	// 默认：~/.local/share/instadock
	DataDir string `yaml:"data_dir"`

	// BaseDomain 是实例路由的基础域名
	// 实例地址形如 http://{cid}.{BaseDomain}
	// 可以通过环境变量 INSTADOCK_BASE_DOMAIN 配置
	BaseDomain string `yaml:"base_domain"`

	// RegistryHost 是镜像仓库地址，例如 ghcr.io
	// 实例只允许运行该仓库下的镜像
	RegistryHost string `yaml:"registry_host"`

	// RegistryNamespace 是镜像仓库内的命名空间
	// 构建产物的规范标签为 {RegistryHost}/{RegistryNamespace}/{user8}-{sub8}:latest
	RegistryNamespace string `yaml:"registry_namespace"`

	// RegistryUser 和 RegistryToken 用于登录私有镜像仓库
	// 为空时跳过登录，只拉取公开镜像
	RegistryUser  string `yaml:"registry_user"`
	RegistryToken string `yaml:"registry_token"`

	// QuotaPerUser 是每个用户同时 running 的实例数上限
	// 可以通过环境变量 INSTADOCK_QUOTA 配置，默认 5
	QuotaPerUser int `yaml:"quota_per_user"`

	// ReapInterval 是过期回收的扫描间隔
	// 可以通过环境变量 INSTADOCK_REAP_INTERVAL 配置，默认 30s
	ReapInterval time.Duration `yaml:"reap_interval"`

	// MemoryLimit 是单实例内存上限，如 "512m"
	MemoryLimit string `yaml:"memory_limit"`

	// NanoCPUs 是单实例 CPU 配额（十亿分之一核为单位）
	// 默认 1e9，即 1 核
	NanoCPUs int64 `yaml:"nano_cpus"`
}

func New() (*Config, error) {
	cfg := &Config{}

	// 1. 可选的 YAML 文件作为基础
	if path := os.Getenv("INSTADOCK_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// 2. 环境变量覆盖文件值
	applyEnv(cfg)

	// 3. 填充默认值
	applyDefaults(cfg)

	if _, err := cfg.MemoryLimitBytes(); err != nil {
		return nil, fmt.Errorf("invalid memory limit %q: %w", cfg.MemoryLimit, err)
	}
	return cfg, nil
}

// MemoryLimitBytes 解析内存上限为字节数
func (c *Config) MemoryLimitBytes() (int64, error) {
	return units.RAMInBytes(c.MemoryLimit)
}

// DatabasePath 返回 sqlite 数据库文件路径
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "instadock.db")
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("INSTADOCK_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := os.Getenv("INSTADOCK_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("INSTADOCK_BASE_DOMAIN"); v != "" {
		cfg.BaseDomain = v
	}
	if v := os.Getenv("INSTADOCK_REGISTRY_HOST"); v != "" {
		cfg.RegistryHost = v
	}
	if v := os.Getenv("INSTADOCK_REGISTRY_NAMESPACE"); v != "" {
		cfg.RegistryNamespace = v
	}
	if v := os.Getenv("INSTADOCK_REGISTRY_USER"); v != "" {
		cfg.RegistryUser = v
	}
	if v := os.Getenv("INSTADOCK_REGISTRY_TOKEN"); v != "" {
		cfg.RegistryToken = v
	}
	if v := os.Getenv("INSTADOCK_QUOTA"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.QuotaPerUser = n
		}
	}
	if v := os.Getenv("INSTADOCK_REAP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ReapInterval = d
		}
	}
	if v := os.Getenv("INSTADOCK_MEMORY_LIMIT"); v != "" {
		cfg.MemoryLimit = v
	}
	if v := os.Getenv("INSTADOCK_NANO_CPUS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.NanoCPUs = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Address == "" {
		cfg.Address = "0.0.0.0:8000"
	}
	if cfg.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DataDir = filepath.Join(home, ".local", "share", "instadock")
		} else {
			cfg.DataDir = filepath.Join(".", "data")
		}
	}
	if cfg.BaseDomain == "" {
		cfg.BaseDomain = "localhost"
	}
	if cfg.RegistryHost == "" {
		cfg.RegistryHost = "ghcr.io"
	}
	if cfg.RegistryNamespace == "" {
		cfg.RegistryNamespace = "instadock"
	}
	if cfg.QuotaPerUser <= 0 {
		cfg.QuotaPerUser = 5
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 30 * time.Second
	}
	if cfg.MemoryLimit == "" {
		cfg.MemoryLimit = "512m"
	}
	if cfg.NanoCPUs <= 0 {
		cfg.NanoCPUs = 1_000_000_000
	}
}
