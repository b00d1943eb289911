// Package ginx 提供 gin 框架的 handler 适配器，支持自动参数绑定和响应处理
//
// 请求与响应都使用 JSON 格式。错误响应会识别 apierror 类型并使用其 HTTP 状态码。
//
// 支持多种 handler 函数签名：
//
//	// 1. 有参数，有返回值，有 error
//	func(c *gin.Context, args *Args) (resp, error)
//
//	// 2. 有参数，只有 error
//	func(c *gin.Context, args *Args) error
//
//	// 3. 有参数，只有返回值
//	func(c *gin.Context, args *Args) resp
//
//	// 4. 无参数，有返回值，有 error
//	func(c *gin.Context) (resp, error)
//
//	// 5. 无参数，只有 error
//	func(c *gin.Context) error
//
//	// 6. 无参数，只有返回值
//	func(c *gin.Context) resp
//
//	// 7. 无参数，无返回值
//	func(c *gin.Context)
//
// 使用示例：
//
//	router := gin.Default()
//
//	// 有参数，有返回值，有 error
//	router.POST("/instances/spawn", ginx.Adapt5(func(c *gin.Context, args *SpawnRequest) (*SpawnResponse, error) {
//	    return &SpawnResponse{...}, nil
//	}))
//
//	// 无参数，有返回值
//	router.GET("/health", ginx.Adapt2(func(c *gin.Context) string {
//	    return "ok"
//	}))
package ginx
