package server

import (
	"net/http"
	"time"

	"LazyDJ/logger"
	"LazyDJ/model"

	"github.com/google/uuid"
)

// LoginHandler 跳转到Spotify授权页
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	state := uuid.New().String()
	http.Redirect(w, r, h.spotify.AuthURL(state), http.StatusFound)
}

// CallbackHandler 处理Spotify授权回调，换取凭证后写入浏览器会话
func (h *APIHandler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		h.respondError(w, http.StatusBadRequest, "Spotify授权被拒绝", "AUTH_DENIED", nil)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.respondError(w, http.StatusBadRequest, "缺少授权码", "BAD_REQUEST", nil)
		return
	}

	token, err := h.spotify.ExchangeCode(r.Context(), code)
	if err != nil {
		h.respondError(w, http.StatusBadGateway, "换取Spotify凭证失败", "AUTH_FAILED", err)
		return
	}

	bs := h.readSession(r)
	bs.Token = token
	h.writeSession(w, bs)

	logger.Info("Spotify授权成功")
	http.Redirect(w, r, "/", http.StatusFound)
}

// LogoutHandler 清除浏览器会话
func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ensureToken 返回可用的访问凭证，临近过期时刷新并更新Cookie。
// 没有凭证时返回 nil，调用方应返回未登录错误。
func (h *APIHandler) ensureToken(w http.ResponseWriter, r *http.Request, bs *BrowserSession) *model.ProviderToken {
	if bs.Token == nil || bs.Token.AccessToken == "" {
		return nil
	}
	if !bs.Token.NearExpiry(time.Now()) {
		return bs.Token
	}

	refreshed, err := h.spotify.RefreshToken(r.Context(), bs.Token.RefreshToken)
	if err != nil {
		logger.Warn("刷新Spotify凭证失败", logger.ErrorField(err))
		return bs.Token
	}
	bs.Token = refreshed
	h.writeSession(w, bs)
	return refreshed
}
