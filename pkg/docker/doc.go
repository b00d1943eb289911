// Package docker 封装容器运行时操作
//
// 对 Docker Engine API 做薄封装，把底层客户端抽象为 Client 接口，
// 便于为上层服务注入 MockClient 做测试。
//
// 错误语义：
//   - ForceRemove 对不存在的容器返回成功（幂等删除）
//   - 其余操作遇到"容器不存在"时返回底层错误，调用方用 IsNotFound 判断，
//     并据此对账存储侧的记录
package docker
