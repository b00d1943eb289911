// Package idgen 提供递增 ID 生成器
//
// 使用 Sonyflake 算法生成全局唯一且递增的 ID。
// Sonyflake 是 Snowflake 算法的改进版本，生成的 ID 具有以下特性：
//   - 全局唯一
//   - 时间有序（递增）
//   - 64 位整数
//   - 分布式友好
//
// 生成的 ID 格式：
//   - 提交 ID: sub-{递增数字}
//
// 实例 ID 不在这里生成：实例使用容器运行时返回的容器 ID（12 位短格式）。
//
// 使用方式：
//
// 方式一：使用包级别的便捷函数（推荐，使用默认生成器）
//
//	subID, err := idgen.GenerateSubmissionID()
//	// subID: "sub-1234567890"
//
// 方式二：创建自定义生成器
//
//	gen := idgen.New()
//	subID, err := gen.GenerateSubmissionID()
package idgen
