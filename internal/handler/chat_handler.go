package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"chatpulse-go/internal/service"
	"chatpulse-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 客服挂件嵌在租户自己的站点上，允许所有来源
	},
}

// ChatHandler 负责会话管理 API 与客服挂件的 WebSocket 连接。
type ChatHandler struct {
	chatService   service.ChatService
	searchService service.SearchService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, searchService service.SearchService) *ChatHandler {
	return &ChatHandler{
		chatService:   chatService,
		searchService: searchService,
	}
}

// CreateSession 创建一个新的客户会话。
// 该接口由挂件匿名调用，路径中带租户 ID。
func (h *ChatHandler) CreateSession(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的租户 ID",
		})
		return
	}

	var input service.SessionInput
	// 客户信息全部可选，绑定失败时按空信息处理
	_ = c.ShouldBindJSON(&input)

	session, err := h.chatService.CreateSession(uint(userID), input)
	if err != nil {
		log.Errorf("CreateSession: failed for tenant %d, error: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "创建会话失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": session, "message": "success"})
}

// PostMessageRequest 定义了发送消息 API 的请求体结构。
type PostMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// PostMessage 处理客户发来的一条消息并立刻返回自动回复。
func (h *ChatHandler) PostMessage(c *gin.Context) {
	sessionID := c.Param("sessionId")

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：content 不能为空",
		})
		return
	}

	result, err := h.chatService.HandleCustomerMessage(c.Request.Context(), sessionID, req.Content)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    http.StatusNotFound,
				"message": "会话不存在",
			})
			return
		}
		log.Errorf("PostMessage: failed for session %s, error: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "消息处理失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": result, "message": "success"})
}

// UploadAttachment 处理客户上传的附件。
func (h *ChatHandler) UploadAttachment(c *gin.Context) {
	sessionID := c.Param("sessionId")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "请求中缺少文件",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无法读取上传文件",
		})
		return
	}
	defer file.Close()

	result, err := h.chatService.UploadAttachment(
		c.Request.Context(),
		sessionID,
		fileHeader.Filename,
		file,
		fileHeader.Size,
		fileHeader.Header.Get("Content-Type"),
	)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    http.StatusNotFound,
				"message": "会话不存在",
			})
			return
		}
		log.Errorf("UploadAttachment: failed for session %s, error: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "附件上传失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": result, "message": "success"})
}

// ListSessions 返回当前租户的会话列表。
func (h *ChatHandler) ListSessions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	sessions, err := h.chatService.ListSessions(user.ID, limit, offset)
	if err != nil {
		log.Errorf("ListSessions: failed for user %d, error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "获取会话列表失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": sessions, "message": "success"})
}

// ListMessages 返回指定会话的消息列表。
func (h *ChatHandler) ListMessages(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || sessionID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的会话 ID",
		})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := h.chatService.ListMessages(user.ID, uint(sessionID), limit, offset)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    http.StatusNotFound,
				"message": "会话不存在",
			})
			return
		}
		log.Errorf("ListMessages: failed for user %d, session %d, error: %v", user.ID, sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "获取消息列表失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": messages, "message": "success"})
}

// PostHumanReply 处理租户客服在面板中发出的人工回复。
func (h *ChatHandler) PostHumanReply(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || sessionID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的会话 ID",
		})
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：content 不能为空",
		})
		return
	}

	msg, err := h.chatService.PostHumanReply(c.Request.Context(), user.ID, uint(sessionID), req.Content)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    http.StatusNotFound,
				"message": "会话不存在",
			})
			return
		}
		log.Errorf("PostHumanReply: failed for user %d, session %d, error: %v", user.ID, sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "发送回复失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": msg, "message": "success"})
}

// CloseSession 结束一个会话。
func (h *ChatHandler) CloseSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || sessionID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的会话 ID",
		})
		return
	}

	if err := h.chatService.CloseSession(user.ID, uint(sessionID)); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    http.StatusNotFound,
				"message": "会话不存在",
			})
			return
		}
		log.Errorf("CloseSession: failed for user %d, session %d, error: %v", user.ID, sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "结束会话失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "会话已结束"})
}

// Analytics 返回租户最近一段时间的会话统计。
func (h *ChatHandler) Analytics(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	stats, err := h.chatService.Analytics(user.ID, days)
	if err != nil {
		log.Errorf("Analytics: failed for user %d, error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "获取统计数据失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": stats, "message": "success"})
}

// SearchTranscripts 在租户自己的会话转写中做全文搜索。
func (h *ChatHandler) SearchTranscripts(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "搜索关键词不能为空",
		})
		return
	}
	topK, _ := strconv.Atoi(c.DefaultQuery("topK", "20"))

	hits, err := h.searchService.SearchTranscripts(c.Request.Context(), user.ID, query, topK)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "搜索失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": hits, "message": "success"})
}

// wsReply 是写回挂件的 WebSocket 消息结构。
type wsReply struct {
	Type       string `json:"type"`
	Content    string `json:"content,omitempty"`
	Provenance string `json:"provenance,omitempty"`
	Message    string `json:"message,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// HandleWidget 处理客服挂件的 WebSocket 连接。
// 挂件以会话 ID 接入，每收到一条客户消息就同步回写自动回复。
func (h *ChatHandler) HandleWidget(c *gin.Context) {
	sessionID := c.Param("sessionId")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，会话: %s", sessionID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		content := string(message)
		if content == "" {
			continue
		}

		result, err := h.chatService.HandleCustomerMessage(c.Request.Context(), sessionID, content)
		if err != nil {
			log.Errorf("处理挂件消息失败, session: %s, error: %v", sessionID, err)
			errReply := wsReply{
				Type:      "error",
				Message:   "消息处理失败，请稍后重试",
				Timestamp: time.Now().UnixMilli(),
			}
			b, _ := json.Marshal(errReply)
			_ = conn.WriteMessage(websocket.TextMessage, b)
			if errors.Is(err, service.ErrSessionNotFound) {
				break
			}
			continue
		}

		reply := wsReply{
			Type:       "reply",
			Content:    result.AIMessage.Content,
			Provenance: result.Provenance,
			Timestamp:  time.Now().UnixMilli(),
		}
		b, _ := json.Marshal(reply)
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Warnf("向 WebSocket 写入消息失败: %v", err)
			break
		}
	}
}
