package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"LazyDJ/core/session"
	"LazyDJ/model"
)

// SearchHandler 全局搜索曲目，结果走Redis缓存
func (h *APIHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	bs := h.readSession(r)
	token := h.ensureToken(w, r, bs)
	if token == nil {
		h.respondError(w, http.StatusUnauthorized, "请先登录Spotify", "NOT_AUTHENTICATED", nil)
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

	tracks, err := h.spotify.Search(r.Context(), token, query, limit)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	h.searchCache.Set(r.Context(), query, limit, tracks)
	respondJSON(w, http.StatusOK, map[string]interface{}{"tracks": tracks})
}

// QueueTrackRequest 点歌请求
type QueueTrackRequest struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	Artists  string `json:"artists"`
	AlbumArt string `json:"albumArt,omitempty"`
}

// submitResponse 构造点歌结果响应。
// 冷却拒绝不是错误：返回200，前端据此展示剩余时间。
func submitResponse(w http.ResponseWriter, result *session.SubmitResult) {
	if result.Status == session.StatusOnCooldown {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status":           string(result.Status),
			"message":          "这首歌刚刚点过，请稍后再点",
			"remainingSeconds": int(result.Remaining.Seconds()),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": string(result.Status)})
}

// QueueHandler 全局点歌
func (h *APIHandler) QueueHandler(w http.ResponseWriter, r *http.Request) {
	bs := h.readSession(r)
	token := h.ensureToken(w, r, bs)
	if token == nil {
		h.respondError(w, http.StatusUnauthorized, "请先登录Spotify", "NOT_AUTHENTICATED", nil)
		return
	}

	var req QueueTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URI == "" {
		h.respondError(w, http.StatusBadRequest, "无效的请求", "BAD_REQUEST", err)
		return
	}

	result, err := h.manager.SubmitTrack(r.Context(), session.SubmitRequest{
		Token: token,
		Track: model.Track{
			URI:      req.URI,
			Name:     req.Name,
			Artists:  req.Artists,
			AlbumArt: req.AlbumArt,
		},
		Admin: bs.Admin,
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	if result.Status == session.StatusQueued {
		// 记住这是"我点的歌"，队列展示时用来区分点歌和电台
		bs.UserURIs = append(bs.UserURIs, req.URI)
		if result.RefreshedToken != nil {
			bs.Token = result.RefreshedToken
		}
		h.writeSession(w, bs)
	}
	submitResponse(w, result)
}

// CurrentQueueHandler 获取全局队列视图
func (h *APIHandler) CurrentQueueHandler(w http.ResponseWriter, r *http.Request) {
	bs := h.readSession(r)
	token := h.ensureToken(w, r, bs)
	if token == nil {
		h.respondError(w, http.StatusUnauthorized, "请先登录Spotify", "NOT_AUTHENTICATED", nil)
		return
	}

	view, remaining, err := h.manager.GlobalQueueView(r.Context(), token, bs.UserURIs)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	// 已播完的歌从"我点的歌"中剔除
	if len(remaining) != len(bs.UserURIs) {
		bs.UserURIs = remaining
		h.writeSession(w, bs)
	}
	respondJSON(w, http.StatusOK, view)
}

// PlayNowHandler 立即播放指定曲目（管理员专用）。
// 播放成功后同样登记冷却，队列视图中归入点歌队列。
func (h *APIHandler) PlayNowHandler(w http.ResponseWriter, r *http.Request) {
	bs := h.readSession(r)
	if !bs.Admin {
		h.respondError(w, http.StatusForbidden, "需要管理员权限", "ADMIN_REQUIRED", nil)
		return
	}
	token := h.ensureToken(w, r, bs)
	if token == nil {
		h.respondError(w, http.StatusUnauthorized, "请先登录Spotify", "NOT_AUTHENTICATED", nil)
		return
	}

	var req QueueTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URI == "" {
		h.respondError(w, http.StatusBadRequest, "无效的请求", "BAD_REQUEST", err)
		return
	}

	if err := h.spotify.StartPlayback(r.Context(), token, []string{req.URI}); err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.manager.GlobalCooldowns().Record(req.URI)
	respondJSON(w, http.StatusOK, map[string]string{"status": "playing"})
}
