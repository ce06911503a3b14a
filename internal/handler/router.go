package handler

import (
	"pai-chat-client/internal/middleware"

	"github.com/gin-gonic/gin"
)

// NewRouter 创建带日志与 Recovery 中间件的路由引擎，并注册本地 UI 的全部路由。
func NewRouter(h *ChatHandler) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/", Page)
	r.GET("/ws", h.Socket)

	api := r.Group("/api")
	{
		api.GET("/state", h.GetState)

		conversations := api.Group("/conversations")
		{
			conversations.POST("", h.NewConversation)
			conversations.POST("/:id/select", h.SelectConversation)
			conversations.POST("/:id/reset", h.ResetConversation)
			conversations.DELETE("/:id", h.DeleteConversation)
		}

		api.POST("/messages", h.SendMessage)
		api.GET("/messages/:id", h.CopyMessage)
	}
	return r
}
