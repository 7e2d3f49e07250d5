package server

import (
	"encoding/json"
	"net/http"

	"LazyDJ/logger"
)

// AdminCheckRequest 管理员口令校验请求
type AdminCheckRequest struct {
	Keyword string `json:"keyword"`
}

// AdminCheckHandler 校验管理员口令。
// 校验成功授予管理员标记；已持有标记但重新校验失败时撤销标记。
func (h *APIHandler) AdminCheckHandler(w http.ResponseWriter, r *http.Request) {
	var req AdminCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "无效的请求", "BAD_REQUEST", err)
		return
	}

	bs := h.readSession(r)
	ok := h.gate.Check(req.Keyword)

	if ok && !bs.Admin {
		bs.Admin = true
		h.writeSession(w, bs)
		logger.Info("管理员模式已激活")
	} else if !ok && bs.Admin {
		// 口令校验失败，撤销已有的管理员标记
		bs.Admin = false
		h.writeSession(w, bs)
		logger.Warn("管理员口令校验失败，已撤销管理员标记")
	}

	respondJSON(w, http.StatusOK, map[string]bool{"admin": ok})
}

// AdminStatusHandler 查询当前浏览器的管理员状态
func (h *APIHandler) AdminStatusHandler(w http.ResponseWriter, r *http.Request) {
	bs := h.readSession(r)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"admin":    bs.Admin,
		"enabled":  h.gate.Enabled(),
		"sessions": h.manager.SessionCount(),
	})
}

// AdminDeactivateHandler 主动退出管理员模式
func (h *APIHandler) AdminDeactivateHandler(w http.ResponseWriter, r *http.Request) {
	bs := h.readSession(r)
	if bs.Admin {
		bs.Admin = false
		h.writeSession(w, bs)
	}
	respondJSON(w, http.StatusOK, map[string]bool{"admin": false})
}

// AdminActionRequest 管理员操作请求
type AdminActionRequest struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId,omitempty"`
}

// AdminActionHandler 执行管理员操作：跳过当前曲目、清空点歌队列
func (h *APIHandler) AdminActionHandler(w http.ResponseWriter, r *http.Request) {
	bs := h.readSession(r)
	if !bs.Admin {
		h.respondError(w, http.StatusForbidden, "需要管理员权限", "ADMIN_REQUIRED", nil)
		return
	}

	var req AdminActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "无效的请求", "BAD_REQUEST", err)
		return
	}

	switch req.Action {
	case "skip_track":
		if req.SessionID != "" {
			if err := h.manager.SkipCurrentTrack(r.Context(), req.SessionID); err != nil {
				h.handleDomainError(w, err)
				return
			}
		} else {
			token := h.ensureToken(w, r, bs)
			if token == nil {
				h.respondError(w, http.StatusUnauthorized, "请先登录Spotify", "NOT_AUTHENTICATED", nil)
				return
			}
			if err := h.spotify.SkipNext(r.Context(), token); err != nil {
				h.handleDomainError(w, err)
				return
			}
		}

	case "clear_queue":
		if req.SessionID == "" {
			h.respondError(w, http.StatusBadRequest, "缺少会话ID", "BAD_REQUEST", nil)
			return
		}
		if err := h.manager.ClearSessionQueue(req.SessionID); err != nil {
			h.handleDomainError(w, err)
			return
		}

	default:
		h.respondError(w, http.StatusBadRequest, "未知的操作", "BAD_REQUEST", nil)
		return
	}

	logger.Info("管理员操作已执行",
		logger.String("action", req.Action),
		logger.String("session", req.SessionID))
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
