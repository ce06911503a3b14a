package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"pai-chat-client/internal/render"
	"pai-chat-client/pkg/log"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 本地 UI，允许所有来源
	},
}

// hubClient 是 hub 与一个浏览器连接之间的中转。
type hubClient struct {
	hub  *ViewHub
	conn *websocket.Conn
	send chan []byte
}

// ViewHub 把界面更新广播给所有已连接的浏览器，实现 service.ViewSink。
type ViewHub struct {
	mu      sync.Mutex
	clients map[*hubClient]struct{}
}

// NewViewHub 创建一个空的 hub。
func NewViewHub() *ViewHub {
	return &ViewHub{clients: make(map[*hubClient]struct{})}
}

// Publish 把每个 View 编码为一帧 JSON 发给所有客户端。
// 发送缓冲已满的客户端会被断开，下次连接时通过快照重新同步。
func (h *ViewHub) Publish(views ...render.View) {
	frames := make([][]byte, 0, len(views))
	for _, v := range views {
		b, err := json.Marshal(v)
		if err != nil {
			log.Error("编码 View 失败", err)
			continue
		}
		frames = append(frames, b)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		for _, f := range frames {
			select {
			case c.send <- f:
			default:
				log.Warnf("websocket 客户端发送缓冲已满，断开连接")
				h.dropLocked(c)
			}
			if _, ok := h.clients[c]; !ok {
				break
			}
		}
	}
}

// Clients 返回当前连接数。
func (h *ViewHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve 升级连接、先推送 initial 给出的整页快照，然后持续转发更新直到连接断开。
func (h *ViewHub) Serve(w http.ResponseWriter, r *http.Request, initial func() []render.View) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	c := &hubClient{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	log.Infof("WebSocket 连接已建立: %s", r.RemoteAddr)

	// 注册之后再取快照：期间发布的更新排在快照之前，快照随后会覆盖它们
	h.enqueue(c, initial())

	go c.writePump()
	c.readPump()
}

func (h *ViewHub) enqueue(c *hubClient, views []render.View) {
	for _, v := range views {
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			select {
			case c.send <- b:
			default:
				h.dropLocked(c)
			}
		}
		h.mu.Unlock()
	}
}

func (h *ViewHub) unregister(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *ViewHub) dropLocked(c *hubClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump 只用于感知连接关闭与处理 pong，浏览器的操作走 REST 接口。
func (c *hubClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}
	}
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub 关闭了通道
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
