// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"pai-chat-client/internal/render"
	"pai-chat-client/internal/service"
	"pai-chat-client/internal/state"
	"pai-chat-client/pkg/log"

	"github.com/gin-gonic/gin"
)

// ChatHandler 把浏览器的操作转换为 ChatService 的用户意图。
type ChatHandler struct {
	chatService service.ChatService
	hub         *ViewHub
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, hub *ViewHub) *ChatHandler {
	return &ChatHandler{chatService: chatService, hub: hub}
}

// SendMessageRequest 是发送消息的请求体。空消息与纯空白消息一样被忽略，不算参数错误。
type SendMessageRequest struct {
	Message string `json:"message"`
}

// Socket 建立推送界面更新的 WebSocket 连接。
func (h *ChatHandler) Socket(c *gin.Context) {
	h.hub.Serve(c.Writer, c.Request, func() []render.View {
		return h.chatService.Snapshot().Views
	})
}

// GetState 返回整页重绘所需的状态快照。
func (h *ChatHandler) GetState(c *gin.Context) {
	ok(c, h.chatService.Snapshot())
}

// NewConversation 新建会话。
func (h *ChatHandler) NewConversation(c *gin.Context) {
	id := h.chatService.NewConversation(c.Request.Context())
	ok(c, gin.H{"conversationId": id})
}

// SelectConversation 切换活动会话。
func (h *ChatHandler) SelectConversation(c *gin.Context) {
	id := c.Param("id")
	if err := h.chatService.SelectConversation(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"conversationId": id})
}

// ResetConversation 清空会话并轮换 session。
func (h *ChatHandler) ResetConversation(c *gin.Context) {
	id := c.Param("id")
	if err := h.chatService.ResetConversation(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"conversationId": id})
}

// DeleteConversation 删除会话。
func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	id := c.Param("id")
	if err := h.chatService.DeleteConversation(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// SendMessage 受理一条用户消息，回答通过 WebSocket 推送。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求参数: " + err.Error(), "data": nil})
		return
	}

	receipt, err := h.chatService.SendMessage(c.Request.Context(), req.Message)
	if err != nil {
		fail(c, err)
		return
	}
	if receipt == nil {
		// 空白消息被忽略
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ignored", "data": nil})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "accepted", "data": receipt})
}

// CopyMessage 返回消息原文，供浏览器写入剪贴板。
func (h *ChatHandler) CopyMessage(c *gin.Context) {
	text, err := h.chatService.CopyMessage(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"content": text})
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, state.ErrConversationNotFound), errors.Is(err, service.ErrMessageNotFound):
		status = http.StatusNotFound
	default:
		log.Error("处理请求失败", err)
	}
	c.JSON(status, gin.H{"code": status, "message": err.Error(), "data": nil})
}
