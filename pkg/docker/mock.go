package docker

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 是 Client 的 mock 实现
// 用于测试，不需要真实的 Docker daemon
type MockClient struct {
	mock.Mock
}

// NewMockClient 创建新的 MockClient
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Login(ctx context.Context, registry, username, password string) error {
	args := m.Called(ctx, registry, username, password)
	return args.Error(0)
}

func (m *MockClient) Pull(ctx context.Context, image string) error {
	args := m.Called(ctx, image)
	return args.Error(0)
}

func (m *MockClient) Run(ctx context.Context, cfg *RunConfig) (string, error) {
	args := m.Called(ctx, cfg)
	return args.String(0), args.Error(1)
}

func (m *MockClient) Stop(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockClient) Start(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockClient) Restart(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockClient) ForceRemove(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockClient) Inspect(ctx context.Context, id string) (*ContainerInfo, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ContainerInfo), args.Error(1)
}

func (m *MockClient) Stats(ctx context.Context, id string) (*ContainerStats, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ContainerStats), args.Error(1)
}

func (m *MockClient) List(ctx context.Context, all bool) ([]ContainerSummary, error) {
	args := m.Called(ctx, all)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ContainerSummary), args.Error(1)
}

// 编译时检查 MockClient 实现了 Client 接口
var _ Client = (*MockClient)(nil)
