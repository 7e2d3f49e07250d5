package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"LazyDJ/logger"

	"github.com/gorilla/websocket"
)

// MessageType 消息类型
type MessageType string

const (
	MsgTypePing MessageType = "ping" // 心跳
	MsgTypePong MessageType = "pong" // 心跳响应

	MsgTypeQueueUpdate     MessageType = "queue_update"     // 队列变化
	MsgTypeParticipantJoin MessageType = "participant_join" // 新成员加入
	MsgTypeSessionEnded    MessageType = "session_ended"    // 派对结束
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client WebSocket 客户端
type Client struct {
	Hub           *Hub
	Conn          *websocket.Conn
	Send          chan []byte
	SessionID     string
	ParticipantID string
}

// Hub 派对 WebSocket 管理中心。
// 队列变化、成员加入、派对结束都通过它推送给在场的浏览器。
type Hub struct {
	// 派对 -> 客户端集合
	sessions map[string]map[*Client]bool

	// 成员 -> 客户端（一个成员在一个派对只保留一个连接）
	participantClients map[string]*Client // key: sessionID:participantID

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	mu   sync.RWMutex
	done chan struct{}
}

type broadcastMessage struct {
	SessionID string
	Message   []byte
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		sessions:           make(map[string]map[*Client]bool),
		participantClients: make(map[string]*Client),
		register:           make(chan *Client),
		unregister:         make(chan *Client),
		broadcast:          make(chan *broadcastMessage, 256),
		done:               make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastToSession(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	close(h.done)
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessionID := client.SessionID
	key := h.participantKey(sessionID, client.ParticipantID)

	// 同一成员重复连接时踢掉旧连接
	if old, exists := h.participantClients[key]; exists {
		h.removeClient(old)
	}

	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*Client]bool)
	}
	h.sessions[sessionID][client] = true
	h.participantClients[key] = client

	logger.Info("客户端已连接",
		logger.String("session", sessionID),
		logger.String("participant", client.ParticipantID))
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeClient(client)
}

// removeClient 移除客户端（内部方法，需要持有锁）
func (h *Hub) removeClient(client *Client) {
	sessionID := client.SessionID
	key := h.participantKey(sessionID, client.ParticipantID)

	if clients, ok := h.sessions[sessionID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.Send)

			if len(clients) == 0 {
				delete(h.sessions, sessionID)
			}
		}
	}
	delete(h.participantClients, key)

	logger.Info("客户端已断开",
		logger.String("session", sessionID),
		logger.String("participant", client.ParticipantID))
}

// broadcastToSession 向派对内所有客户端广播
func (h *Hub) broadcastToSession(msg *broadcastMessage) {
	h.mu.RLock()
	clients, ok := h.sessions[msg.SessionID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	// 复制客户端列表，避免长时间持有锁
	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		select {
		case client.Send <- msg.Message:
		default:
			// 发送缓冲区满，直接移除。
			// 这里正处于 Run 循环内部，往 unregister 通道发送会让循环等待自己，永远卡死。
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()
		}
	}
}

// cleanup 清理所有连接
func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.sessions {
		for client := range clients {
			close(client.Send)
		}
	}
	h.sessions = make(map[string]map[*Client]bool)
	h.participantClients = make(map[string]*Client)
}

func (h *Hub) participantKey(sessionID, participantID string) string {
	return fmt.Sprintf("%s:%s", sessionID, participantID)
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// SessionClientCount 获取派对当前连接数
func (h *Hub) SessionClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.sessions[sessionID])
}

// BroadcastEvent 向派对广播一条事件消息
func (h *Hub) BroadcastEvent(sessionID string, msgType MessageType, payload interface{}) error {
	msg := &WSMessage{
		Type:      msgType,
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		msg.Data = data
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- &broadcastMessage{SessionID: sessionID, Message: raw}:
		return nil
	case <-h.done:
		return fmt.Errorf("hub 已关闭")
	}
}

// ========== Client 方法 ==========

// ReadPump 读取消息循环，只处理心跳，其余消息忽略
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.Conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket 读取失败",
						logger.ErrorField(err),
						logger.String("session", c.SessionID))
				}
				return
			}

			var msg WSMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				logger.Warn("消息格式无效",
					logger.ErrorField(err),
					logger.String("session", c.SessionID))
				continue
			}

			if msg.Type == MsgTypePing {
				pong := &WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()}
				if data, err := json.Marshal(pong); err == nil {
					select {
					case c.Send <- data:
					default:
					}
				}
			}
		}
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 合并发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
