package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"LazyDJ/core/event"
	"LazyDJ/model"
)

// requireEventAccess 活动模式端点的统一门禁：模式开启 + 管理员 + 已登录
func (h *APIHandler) requireEventAccess(w http.ResponseWriter, r *http.Request) (*BrowserSession, *model.ProviderToken, bool) {
	if !h.events.Enabled() {
		h.respondError(w, http.StatusForbidden, "活动模式未开启", "EVENT_MODE_DISABLED", nil)
		return nil, nil, false
	}

	bs := h.readSession(r)
	if !bs.Admin {
		h.respondError(w, http.StatusForbidden, "需要管理员权限", "ADMIN_REQUIRED", nil)
		return nil, nil, false
	}

	token := h.ensureToken(w, r, bs)
	if token == nil {
		h.respondError(w, http.StatusUnauthorized, "请先登录Spotify", "NOT_AUTHENTICATED", nil)
		return nil, nil, false
	}
	return bs, token, true
}

// EventPresetsHandler 返回预设歌曲列表
func (h *APIHandler) EventPresetsHandler(w http.ResponseWriter, r *http.Request) {
	if !h.events.Enabled() {
		h.respondError(w, http.StatusForbidden, "活动模式未开启", "EVENT_MODE_DISABLED", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"presets":   h.events.Presets(),
		"tipQrCode": h.cfg.TipQRCodePath,
	})
}

// EventPlayPresetRequest 播放预设歌曲请求
type EventPlayPresetRequest struct {
	Label string `json:"label"`
}

// EventPlayPresetHandler 快速淡出当前播放并切到预设歌曲
func (h *APIHandler) EventPlayPresetHandler(w http.ResponseWriter, r *http.Request) {
	_, token, ok := h.requireEventAccess(w, r)
	if !ok {
		return
	}

	var req EventPlayPresetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Label == "" {
		h.respondError(w, http.StatusBadRequest, "无效的请求", "BAD_REQUEST", err)
		return
	}

	song, err := h.events.PlayPreset(r.Context(), token, req.Label)
	if err != nil {
		if errors.Is(err, event.ErrNoPreset) {
			h.respondError(w, http.StatusNotFound, "预设歌曲不存在", "PRESET_NOT_FOUND", nil)
			return
		}
		h.handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "playing", "song": song})
}

// EventFadeOutHandler 淡出并暂停
func (h *APIHandler) EventFadeOutHandler(w http.ResponseWriter, r *http.Request) {
	_, token, ok := h.requireEventAccess(w, r)
	if !ok {
		return
	}
	if err := h.events.FadeOut(r.Context(), token); err != nil {
		h.handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// EventFadeInHandler 恢复播放并淡入
func (h *APIHandler) EventFadeInHandler(w http.ResponseWriter, r *http.Request) {
	_, token, ok := h.requireEventAccess(w, r)
	if !ok {
		return
	}
	if err := h.events.FadeIn(r.Context(), token); err != nil {
		h.handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "playing"})
}

// EventResumePlaylistHandler 回到之前的播放列表并开启随机播放
func (h *APIHandler) EventResumePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	_, token, ok := h.requireEventAccess(w, r)
	if !ok {
		return
	}
	if err := h.events.ResumePlaylist(r.Context(), token); err != nil {
		h.handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "playing"})
}

// EventSkipHandler 跳到下一首
func (h *APIHandler) EventSkipHandler(w http.ResponseWriter, r *http.Request) {
	_, token, ok := h.requireEventAccess(w, r)
	if !ok {
		return
	}
	if err := h.events.Skip(r.Context(), token); err != nil {
		h.handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
}

// EventToggleHandler 切换活动模式开关（管理员专用，不要求模式已开启）
func (h *APIHandler) EventToggleHandler(w http.ResponseWriter, r *http.Request) {
	bs := h.readSession(r)
	if !bs.Admin {
		h.respondError(w, http.StatusForbidden, "需要管理员权限", "ADMIN_REQUIRED", nil)
		return
	}
	enabled := h.events.Toggle()
	respondJSON(w, http.StatusOK, map[string]bool{"eventMode": enabled})
}
