// Package api 提供 HTTP API 服务
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jimyag/instadock/internal/instadock/service"
)

type API struct {
	engine *gin.Engine
	server *http.Server

	instance   *Instance
	submission *Submission
	system     *System
}

func New(
	address string,
	instanceService *service.InstanceService,
	submissionService *service.SubmissionService,
	systemService *service.SystemService,
) (*API, error) {
	engine := gin.Default()
	api := &API{
		engine:     engine,
		instance:   NewInstance(instanceService),
		submission: NewSubmission(submissionService),
		system:     NewSystem(systemService),
	}

	// 健康检查不需要身份
	engine.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := engine.Group("/api", CallerMiddleware())
	api.instance.RegisterRoutes(apiGroup)
	api.submission.RegisterRoutes(apiGroup)
	api.system.RegisterRoutes(apiGroup)

	api.server = &http.Server{
		Addr:    address,
		Handler: engine,
	}
	return api, nil
}

func (a *API) Run(ctx context.Context) error {
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

func (a *API) Name() string {
	return "API Server"
}
