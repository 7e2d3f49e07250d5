package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"LazyDJ/core/session"
	"LazyDJ/logger"
	"LazyDJ/model"

	"github.com/gorilla/mux"
)

// CreateSessionHandler 创建派对会话。
// 创建者的Spotify凭证成为整个会话的播放凭证。
func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	bs := h.readSession(r)
	token := h.ensureToken(w, r, bs)
	if token == nil {
		h.respondError(w, http.StatusUnauthorized, "请先登录Spotify", "NOT_AUTHENTICATED", nil)
		return
	}

	sess, err := h.manager.CreateSession(r.Context(), token)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	bs.OwnedSessions = append(bs.OwnedSessions, sess.ID)
	h.writeSession(w, bs)

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"session": sess.Info(),
		"joinUrl": "/session/" + sess.ID,
	})
}

// GetSessionHandler 查询会话信息
func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	sess, err := h.manager.GetSession(sessionID)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	bs := h.readSession(r)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session": sess.Info(),
		"isOwner": bs.IsOwner(sessionID),
	})
}

// JoinSessionHandler 加入会话。
// 同一浏览器重复加入是幂等的：参与者ID记在Cookie里。
func (h *APIHandler) JoinSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	bs := h.readSession(r)

	participant, err := h.manager.JoinSession(sessionID, bs.Participants[sessionID])
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	if bs.Participants[sessionID] != participant.ID {
		bs.Participants[sessionID] = participant.ID
		h.writeSession(w, bs)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"participant": participant,
	})
}

// SessionSearchHandler 会话内搜索，使用会话创建者的凭证
func (h *APIHandler) SessionSearchHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	sess, err := h.manager.GetSession(sessionID)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		h.respondError(w, http.StatusBadRequest, "缺少搜索关键词", "BAD_REQUEST", nil)
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	if cached := h.searchCache.Get(r.Context(), query, limit); cached != nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"tracks": cached, "cached": true})
		return
	}

	tracks, err := h.spotify.Search(r.Context(), sess.OwnerToken(), query, limit)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.searchCache.Set(r.Context(), query, limit, tracks)
	respondJSON(w, http.StatusOK, map[string]interface{}{"tracks": tracks})
}

// SessionQueueHandler 会话内点歌
func (h *APIHandler) SessionQueueHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	bs := h.readSession(r)

	var req QueueTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URI == "" {
		h.respondError(w, http.StatusBadRequest, "无效的请求", "BAD_REQUEST", err)
		return
	}

	result, err := h.manager.SubmitTrack(r.Context(), session.SubmitRequest{
		SessionID: sessionID,
		Track: model.Track{
			URI:      req.URI,
			Name:     req.Name,
			Artists:  req.Artists,
			AlbumArt: req.AlbumArt,
		},
		ParticipantID: bs.Participants[sessionID],
		Admin:         bs.Admin,
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	submitResponse(w, result)
}

// SessionQueueViewHandler 获取会话队列视图
func (h *APIHandler) SessionQueueViewHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	view, err := h.manager.SessionQueueView(r.Context(), sessionID)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// EndSessionHandler 结束会话，仅限创建者或管理员
func (h *APIHandler) EndSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	bs := h.readSession(r)

	if !bs.IsOwner(sessionID) && !bs.Admin {
		h.respondError(w, http.StatusForbidden, "只有会话创建者可以结束会话", "FORBIDDEN", nil)
		return
	}

	// 结束不存在的会话也返回成功，重复点击是安全的
	h.manager.EndSession(sessionID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// SessionWSHandler 升级WebSocket连接，推送队列和成员变化
func (h *APIHandler) SessionWSHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if _, err := h.manager.GetSession(sessionID); err != nil {
		h.handleDomainError(w, err)
		return
	}

	bs := h.readSession(r)
	participantID := bs.Participants[sessionID]
	if participantID == "" {
		participantID = r.RemoteAddr
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket升级失败", logger.ErrorField(err))
		return
	}

	client := &session.Client{
		Hub:           h.hub,
		Conn:          conn,
		Send:          make(chan []byte, 64),
		SessionID:     sessionID,
		ParticipantID: participantID,
	}
	h.hub.Register(client)

	// 注意：不能用请求的ctx，处理器返回后它就取消了
	go client.WritePump()
	go client.ReadPump(context.Background())
}
