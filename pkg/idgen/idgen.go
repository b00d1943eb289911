package idgen

import (
	"fmt"
	"hash/fnv"
	"os"
	"sync"
	"time"

	"github.com/sony/sonyflake"
)

// Generator 递增 ID 生成器
// 使用 Sonyflake 算法生成全局唯一且递增的 ID
type Generator struct {
	sf *sonyflake.Sonyflake
}

var (
	defaultGenerator     *Generator
	defaultGeneratorOnce sync.Once
)

// initDefaultGenerator 初始化默认生成器
func initDefaultGenerator() {
	defaultGenerator = New()
}

// DefaultGenerator 返回默认的 ID 生成器
func DefaultGenerator() *Generator {
	defaultGeneratorOnce.Do(initDefaultGenerator)
	return defaultGenerator
}

// New 创建新的 ID 生成器
func New() *Generator {
	settings := sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), // 起始时间
	}

	// 默认的机器 ID 取自私网 IP 低 16 位，
	// 没有私网 IP 的环境会创建失败，退回用主机名和进程号派生
	sf := sonyflake.NewSonyflake(settings)
	if sf == nil {
		settings.MachineID = fallbackMachineID
		sf = sonyflake.NewSonyflake(settings)
	}

	return &Generator{
		sf: sf,
	}
}

// fallbackMachineID 由主机名和进程号派生 16 位机器 ID
// 不会返回错误，保证 NewSonyflake 一定能创建成功
func fallbackMachineID() (uint16, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	sum := h.Sum32()
	return uint16(sum>>16) ^ uint16(sum) ^ uint16(os.Getpid()), nil
}

// generateIDWithPrefix 生成带前缀的 ID
func (g *Generator) generateIDWithPrefix(prefix, errorMsg string) (string, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return "", fmt.Errorf("%s: %w", errorMsg, err)
	}
	return fmt.Sprintf("%s-%d", prefix, id), nil
}

// GenerateSubmissionID 生成提交 ID（格式：sub-{递增 ID}）
func (g *Generator) GenerateSubmissionID() (string, error) {
	return g.generateIDWithPrefix("sub", "generate submission ID")
}

// GenerateID 生成通用递增 ID
func (g *Generator) GenerateID() (uint64, error) {
	return g.sf.NextID()
}

// 包级别的便捷函数，使用默认生成器

// GenerateSubmissionID 使用默认生成器生成提交 ID
func GenerateSubmissionID() (string, error) {
	return DefaultGenerator().GenerateSubmissionID()
}

// GenerateID 使用默认生成器生成通用递增 ID
func GenerateID() (uint64, error) {
	return DefaultGenerator().GenerateID()
}
