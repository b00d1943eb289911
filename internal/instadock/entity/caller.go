// Package entity 定义业务实体
package entity

// 调用者角色
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Caller 请求的调用者身份
// 登录/注册由外部网关负责，这里只消费网关注入的身份信息，
// 用于属主检查和管理员判定
type Caller struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// IsAdmin 调用者是否为管理员
// 管理员对所有资源有读取和控制权限，但不改变资源的属主
func (c *Caller) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// CanAccess 调用者是否可以操作属于 ownerID 的资源
func (c *Caller) CanAccess(ownerID string) bool {
	if c == nil {
		return false
	}
	return c.UserID == ownerID || c.IsAdmin()
}
