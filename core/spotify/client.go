package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"LazyDJ/config"
	"LazyDJ/model"
)

const (
	defaultAuthURL  = "https://accounts.spotify.com/authorize"
	defaultTokenURL = "https://accounts.spotify.com/api/token"
	defaultAPIURL   = "https://api.spotify.com/v1"

	// 请求的授权范围：播放控制、播放状态读取、播放列表读写
	authScope = "user-modify-playback-state user-read-playback-state playlist-read-private playlist-modify-public"
)

// Client Spotify Web API 客户端
type Client struct {
	clientID     string
	clientSecret string
	redirectURI  string

	authURL    string
	tokenURL   string
	apiURL     string
	httpClient *http.Client
}

// NewClient 创建新的API客户端
func NewClient(cfg *config.Config) *Client {
	return &Client{
		clientID:     cfg.SpotifyClientID,
		clientSecret: cfg.SpotifyClientSecret,
		redirectURI:  cfg.SpotifyRedirectURI,
		authURL:      defaultAuthURL,
		tokenURL:     defaultTokenURL,
		apiURL:       defaultAPIURL,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

// SetBaseURL 设置API基础URL（测试用）
func (c *Client) SetBaseURL(apiURL string) {
	c.apiURL = apiURL
}

// SetAuthBaseURL 设置授权服务地址（测试用）
func (c *Client) SetAuthBaseURL(authURL, tokenURL string) {
	c.authURL = authURL
	c.tokenURL = tokenURL
}

// APIError Spotify API 返回的错误
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("spotify api error: %s (status %d, reason %s)", e.Message, e.Status, e.Reason)
	}
	return fmt.Sprintf("spotify api error: %s (status %d)", e.Message, e.Status)
}

// IsNoActiveDevice 判断错误是否为"没有可用播放设备"
func IsNoActiveDevice(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Reason == "NO_ACTIVE_DEVICE" ||
			(apiErr.Status == http.StatusNotFound && strings.Contains(apiErr.Message, "No active device"))
	}
	return false
}

// IsAuthExpired 判断错误是否为"访问凭证已失效"
func IsAuthExpired(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusUnauthorized
	}
	return false
}

// doRequest 向 Spotify API 发送带凭证的请求，并解析JSON响应。
// body 为 nil 时不携带请求体；result 为 nil 时忽略响应体。
func (c *Client) doRequest(ctx context.Context, token *model.ProviderToken, method, endpoint string, body interface{}, result interface{}) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("没有可用的访问凭证")
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.parseAPIError(resp)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("解析响应失败: %w", err)
		}
	}
	return nil
}

// parseAPIError 解析错误响应体，提取状态码与原因
func (c *Client) parseAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var wrapper struct {
		Error APIError `json:"error"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Error.Status != 0 {
		return &wrapper.Error
	}

	return &APIError{
		Status:  resp.StatusCode,
		Message: strings.TrimSpace(string(raw)),
	}
}
