package entity

// SystemStats 宿主机资源用量
type SystemStats struct {
	CPU           float64 `json:"cpu"`          // CPU 使用率（百分比）
	Memory        float64 `json:"memory"`       // 内存使用率（百分比）
	TotalMemoryGB float64 `json:"total_memory"` // 内存总量（GB）
}

// ContainerView 容器对账视图项
// 仅用于管理员观察，不作为生命周期决策依据
type ContainerView struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Image  string  `json:"image"`
	Status string  `json:"status"`
	CPU    float64 `json:"cpu"`
	MemMB  float64 `json:"mem"`
}

// DescribeContainersResponse 容器对账视图响应
type DescribeContainersResponse struct {
	Containers []ContainerView `json:"containers"`
}
