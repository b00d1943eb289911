package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jimyag/instadock/internal/instadock/entity"
	"github.com/jimyag/instadock/pkg/apierror"
)

// 网关注入的身份请求头
const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

const callerContextKey = "instadock-caller"

// CallerMiddleware 从请求头提取调用者身份
// 认证由外部网关完成，这里只消费网关注入的头
func CallerMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		userID := ctx.GetHeader(headerUserID)
		if userID == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, apierror.NewErrorResponse("", apierror.ErrUnauthorized))
			return
		}

		role := ctx.GetHeader(headerUserRole)
		if role != entity.RoleAdmin {
			role = entity.RoleUser
		}

		ctx.Set(callerContextKey, &entity.Caller{UserID: userID, Role: role})
		ctx.Next()
	}
}

// RequireAdmin 只放行管理员
func RequireAdmin() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !callerFrom(ctx).IsAdmin() {
			ctx.AbortWithStatusJSON(http.StatusForbidden, apierror.NewErrorResponse("", apierror.ErrForbidden))
			return
		}
		ctx.Next()
	}
}

// callerFrom 取出中间件注入的调用者
func callerFrom(ctx *gin.Context) *entity.Caller {
	if v, ok := ctx.Get(callerContextKey); ok {
		if caller, ok := v.(*entity.Caller); ok {
			return caller
		}
	}
	return nil
}
