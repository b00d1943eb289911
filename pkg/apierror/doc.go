// Package apierror 提供带错误码的错误类型，用于所有服务的统一错误处理
//
// 错误响应使用 JSON 格式：
//
//	{
//	    "errors": [
//	        {
//	            "code": "NotFound",
//	            "message": "The requested resource does not exist."
//	        }
//	    ],
//	    "requestID": "ea966190-f9aa-478e-9ede-example"
//	}
//
// 使用示例：
//
//	// 使用预定义的错误码
//	if inst == nil {
//	    return nil, apierror.ErrNotFound
//	}
//
//	// 包装底层错误，保留错误码和 HTTP 状态码
//	if err := client.Pull(ctx, image); err != nil {
//	    return nil, apierror.WrapError(apierror.ErrImagePullFailed, "Failed to pull image "+image, err)
//	}
//
//	// 判断错误类型
//	if errors.Is(err, apierror.ErrQuotaExceeded) {
//	    // 配额已满，提示用户先释放容量
//	}
package apierror
