package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"LazyDJ/cache"
	"LazyDJ/config"
	"LazyDJ/core/admin"
	"LazyDJ/core/event"
	"LazyDJ/core/session"
	"LazyDJ/core/spotify"
	"LazyDJ/logger"
	"LazyDJ/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

const sessionCookieName = "lazydj_session"

// APIHandler 聚合所有HTTP处理器依赖
type APIHandler struct {
	cfg         *config.Config
	manager     *session.Manager
	hub         *session.Hub
	spotify     *spotify.Client
	gate        *admin.Gate
	events      *event.Service
	searchCache *cache.SearchCache
	upgrader    websocket.Upgrader
}

// NewAPIHandler 创建处理器
func NewAPIHandler(
	cfg *config.Config,
	manager *session.Manager,
	hub *session.Hub,
	sp *spotify.Client,
	gate *admin.Gate,
	events *event.Service,
	searchCache *cache.SearchCache,
) *APIHandler {
	return &APIHandler{
		cfg:         cfg,
		manager:     manager,
		hub:         hub,
		spotify:     sp,
		gate:        gate,
		events:      events,
		searchCache: searchCache,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// BrowserSession 浏览器会话，以签名JWT的形式存放在Cookie中。
// 没有账号体系，Cookie 就是一位参与者的全部身份。
type BrowserSession struct {
	Admin         bool                 `json:"admin,omitempty"`
	Token         *model.ProviderToken `json:"token,omitempty"`
	OwnedSessions []string             `json:"ownedSessions,omitempty"`
	// 会话ID -> 参与者ID，同一浏览器在每个派对中身份固定
	Participants map[string]string `json:"participants,omitempty"`
	// 全局模式下该浏览器点过的歌
	UserURIs []string `json:"userUris,omitempty"`

	jwt.RegisteredClaims
}

// IsOwner 判断该浏览器是否是指定会话的创建者
func (b *BrowserSession) IsOwner(sessionID string) bool {
	for _, id := range b.OwnedSessions {
		if id == sessionID {
			return true
		}
	}
	return false
}

// readSession 从Cookie解析浏览器会话，无效或缺失时返回空会话
func (h *APIHandler) readSession(r *http.Request) *BrowserSession {
	empty := &BrowserSession{Participants: make(map[string]string)}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return empty
	}

	bs := &BrowserSession{}
	token, err := jwt.ParseWithClaims(cookie.Value, bs, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(h.cfg.SecretKey), nil
	})
	if err != nil || !token.Valid {
		return empty
	}
	if bs.Participants == nil {
		bs.Participants = make(map[string]string)
	}
	return bs
}

// writeSession 签名并写回浏览器会话Cookie
func (h *APIHandler) writeSession(w http.ResponseWriter, bs *BrowserSession) {
	now := time.Now()
	bs.IssuedAt = jwt.NewNumericDate(now)
	bs.ExpiresAt = jwt.NewNumericDate(now.Add(h.cfg.SessionExpiration))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, bs)
	signed, err := token.SignedString([]byte(h.cfg.SecretKey))
	if err != nil {
		logger.Error("签名浏览器会话失败", logger.ErrorField(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.cfg.SessionExpiration / time.Second),
	})
}

// respondJSON 输出JSON响应
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Error("写入响应失败", logger.ErrorField(err))
		}
	}
}

// errorResponse 错误响应体
type errorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// respondError 输出错误响应，调试模式下附带详细信息
func (h *APIHandler) respondError(w http.ResponseWriter, status int, msg, code string, err error) {
	resp := errorResponse{Error: msg, Code: code}
	if err != nil {
		logger.Error(msg, logger.ErrorField(err), logger.Int("status", status))
		if h.cfg.Debug {
			resp.Detail = err.Error()
		}
	}
	respondJSON(w, status, resp)
}

// handleDomainError 把领域错误映射为HTTP响应
func (h *APIHandler) handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		h.respondError(w, http.StatusNotFound, "会话不存在或已过期", "SESSION_NOT_FOUND", nil)
	case errors.Is(err, session.ErrNoActiveDevice), spotify.IsNoActiveDevice(err):
		h.respondError(w, http.StatusNotFound, "没有正在播放的设备，请先在Spotify中开始播放", "NO_ACTIVE_DEVICE", nil)
	case errors.Is(err, session.ErrNoToken):
		h.respondError(w, http.StatusUnauthorized, "请先登录Spotify", "NOT_AUTHENTICATED", nil)
	case spotify.IsAuthExpired(err):
		h.respondError(w, http.StatusUnauthorized, "Spotify授权已失效，请重新登录", "AUTH_EXPIRED", err)
	default:
		h.respondError(w, http.StatusInternalServerError, "服务器内部错误", "INTERNAL", err)
	}
}

// VersionHandler 返回服务版本和活动模式状态
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"version":   Version,
		"eventMode": h.events.Enabled(),
	})
}
