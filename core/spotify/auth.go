package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"LazyDJ/model"
)

// AuthURL 构造用户授权跳转地址
func (c *Client) AuthURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", c.redirectURI)
	q.Set("scope", authScope)
	if state != "" {
		q.Set("state", state)
	}
	return c.authURL + "?" + q.Encode()
}

// ExchangeCode 用授权码换取访问凭证
func (c *Client) ExchangeCode(ctx context.Context, code string) (*model.ProviderToken, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.redirectURI)
	return c.requestToken(ctx, form, "")
}

// RefreshToken 用刷新凭证换取新的访问凭证。
// Spotify 不一定返回新的刷新凭证，没有时沿用旧的。
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*model.ProviderToken, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.requestToken(ctx, form, refreshToken)
}

func (c *Client) requestToken(ctx context.Context, form url.Values, fallbackRefresh string) (*model.ProviderToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("创建凭证请求失败: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("凭证请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseAPIError(resp)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("解析凭证响应失败: %w", err)
	}

	refresh := body.RefreshToken
	if refresh == "" {
		refresh = fallbackRefresh
	}

	return &model.ProviderToken{
		AccessToken:  body.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}
