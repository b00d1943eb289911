package apierror

import "net/http"

// 实例与提交生命周期的错误码表
// 客户端错误不会重试；服务端错误由调用方决定是否重试
var (
	// ErrInvalidRequest 请求格式错误
	// 例如 image 和 submission_id 同时提供或都未提供、TTL 超出范围
	ErrInvalidRequest = &Error{
		Code:       "InvalidRequest",
		Message:    "The request is malformed. Check the parameters and try again.",
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrInvalidSubmission 提交内容不合法
	// 例如源地址格式错误、归档中包含路径逃逸或禁止的路径
	ErrInvalidSubmission = &Error{
		Code:       "InvalidSubmission",
		Message:    "The submission source is malformed or contains forbidden content.",
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrInvalidTransition 提交状态机不允许该转换
	// 例如对非 approved 状态的提交发送 build-complete 信号
	ErrInvalidTransition = &Error{
		Code:       "InvalidTransition",
		Message:    "The submission is not in a state that allows this transition.",
		HTTPStatus: http.StatusConflict,
	}

	// ErrNotFound 引用的实体不存在
	ErrNotFound = &Error{
		Code:       "NotFound",
		Message:    "The requested resource does not exist.",
		HTTPStatus: http.StatusNotFound,
	}

	// ErrInstanceGone 实例的底层容器已经不在宿主机上
	// 触发存储侧的记录清理，而不是重试
	ErrInstanceGone = &Error{
		Code:       "InstanceGone",
		Message:    "The underlying container no longer exists on the host. The record has been reconciled.",
		HTTPStatus: http.StatusGone,
	}

	// ErrUnauthorized 请求缺少调用者身份
	// 身份由外部网关注入，缺失说明请求绕过了网关
	ErrUnauthorized = &Error{
		Code:       "Unauthorized",
		Message:    "The request is missing caller identity.",
		HTTPStatus: http.StatusUnauthorized,
	}

	// ErrForbidden 调用者不是资源属主且不是管理员
	ErrForbidden = &Error{
		Code:       "Forbidden",
		Message:    "You do not own this resource.",
		HTTPStatus: http.StatusForbidden,
	}

	// ErrQuotaExceeded 用户运行中的实例数已达上限
	// 调用者需要先释放容量
	ErrQuotaExceeded = &Error{
		Code:       "QuotaExceeded",
		Message:    "You have reached the limit of concurrently running instances. Stop or delete an instance first.",
		HTTPStatus: http.StatusTooManyRequests,
	}

	// ErrPreconditionFailed 提交尚未满足可运行条件
	// 例如未审核通过或镜像尚未构建完成
	ErrPreconditionFailed = &Error{
		Code:       "PreconditionFailed",
		Message:    "The submission is not approved or its image has not been built yet.",
		HTTPStatus: http.StatusPreconditionFailed,
	}

	// ErrImagePullFailed 从镜像仓库拉取镜像失败
	ErrImagePullFailed = &Error{
		Code:       "ImagePullFailed",
		Message:    "Failed to pull the image from the registry.",
		HTTPStatus: http.StatusBadGateway,
	}

	// ErrRunFailed 容器创建或启动失败
	// 管理器会回滚已部分启动的容器后再返回此错误
	ErrRunFailed = &Error{
		Code:       "RunFailed",
		Message:    "Failed to create or start the container.",
		HTTPStatus: http.StatusInternalServerError,
	}

	// ErrRuntimeFailed 容器运行时操作失败
	// 管理器不会自动重试
	ErrRuntimeFailed = &Error{
		Code:       "RuntimeFailed",
		Message:    "The container runtime reported an error.",
		HTTPStatus: http.StatusInternalServerError,
	}

	// ErrInternalError 发生了内部错误
	ErrInternalError = &Error{
		Code:       "InternalError",
		Message:    "An internal error has occurred. Retry your request, but if the problem persists, contact the operator.",
		HTTPStatus: http.StatusInternalServerError,
	}
)
