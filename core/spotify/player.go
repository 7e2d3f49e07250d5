package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"LazyDJ/model"
)

// trackObject Spotify 曲目对象（仅保留需要的字段）
type trackObject struct {
	URI     string `json:"uri"`
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"album"`
}

func (t *trackObject) toModel() model.Track {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	track := model.Track{
		URI:     t.URI,
		Name:    t.Name,
		Artists: strings.Join(names, ", "),
	}
	if len(t.Album.Images) > 0 {
		track.AlbumArt = t.Album.Images[0].URL
	}
	return track
}

// Search 按关键词搜索曲目
func (c *Client) Search(ctx context.Context, token *model.ProviderToken, query string, limit int) ([]model.Track, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "track")
	q.Set("limit", fmt.Sprintf("%d", limit))

	var body struct {
		Tracks struct {
			Items []trackObject `json:"items"`
		} `json:"tracks"`
	}
	if err := c.doRequest(ctx, token, http.MethodGet, "/search?"+q.Encode(), nil, &body); err != nil {
		return nil, err
	}

	tracks := make([]model.Track, 0, len(body.Tracks.Items))
	for i := range body.Tracks.Items {
		tracks = append(tracks, body.Tracks.Items[i].toModel())
	}
	return tracks, nil
}

// Enqueue 把曲目加入当前播放设备的队列
func (c *Client) Enqueue(ctx context.Context, token *model.ProviderToken, trackURI string) error {
	q := url.Values{}
	q.Set("uri", trackURI)
	return c.doRequest(ctx, token, http.MethodPost, "/me/player/queue?"+q.Encode(), nil, nil)
}

// CurrentlyPlaying 获取正在播放的曲目，没有播放时返回 nil
func (c *Client) CurrentlyPlaying(ctx context.Context, token *model.ProviderToken) (*model.Track, error) {
	var body struct {
		IsPlaying bool         `json:"is_playing"`
		Item      *trackObject `json:"item"`
	}
	if err := c.doRequest(ctx, token, http.MethodGet, "/me/player/currently-playing", nil, &body); err != nil {
		return nil, err
	}
	if !body.IsPlaying || body.Item == nil {
		return nil, nil
	}
	track := body.Item.toModel()
	return &track, nil
}

// PlayerQueue 获取播放设备侧的完整队列
func (c *Client) PlayerQueue(ctx context.Context, token *model.ProviderToken) ([]model.Track, error) {
	var body struct {
		Queue []trackObject `json:"queue"`
	}
	if err := c.doRequest(ctx, token, http.MethodGet, "/me/player/queue", nil, &body); err != nil {
		return nil, err
	}
	tracks := make([]model.Track, 0, len(body.Queue))
	for i := range body.Queue {
		tracks = append(tracks, body.Queue[i].toModel())
	}
	return tracks, nil
}

// PlaybackState 当前播放状态（用于淡出/恢复场景）
type PlaybackState struct {
	IsPlaying  bool
	Volume     int
	ContextURI string
	TrackURI   string
	ProgressMs int
}

// CurrentPlayback 获取播放器状态，包括音量和播放上下文
func (c *Client) CurrentPlayback(ctx context.Context, token *model.ProviderToken) (*PlaybackState, error) {
	var body struct {
		IsPlaying  bool `json:"is_playing"`
		ProgressMs int  `json:"progress_ms"`
		Device     struct {
			VolumePercent int `json:"volume_percent"`
		} `json:"device"`
		Context *struct {
			URI string `json:"uri"`
		} `json:"context"`
		Item *trackObject `json:"item"`
	}
	if err := c.doRequest(ctx, token, http.MethodGet, "/me/player", nil, &body); err != nil {
		return nil, err
	}
	state := &PlaybackState{
		IsPlaying:  body.IsPlaying,
		Volume:     body.Device.VolumePercent,
		ProgressMs: body.ProgressMs,
	}
	if body.Context != nil {
		state.ContextURI = body.Context.URI
	}
	if body.Item != nil {
		state.TrackURI = body.Item.URI
	}
	return state, nil
}

// SetVolume 设置播放设备音量（0-100）
func (c *Client) SetVolume(ctx context.Context, token *model.ProviderToken, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	q := url.Values{}
	q.Set("volume_percent", fmt.Sprintf("%d", percent))
	return c.doRequest(ctx, token, http.MethodPut, "/me/player/volume?"+q.Encode(), nil, nil)
}

// SkipNext 跳到下一首
func (c *Client) SkipNext(ctx context.Context, token *model.ProviderToken) error {
	return c.doRequest(ctx, token, http.MethodPost, "/me/player/next", nil, nil)
}

// StartPlayback 开始播放指定曲目
func (c *Client) StartPlayback(ctx context.Context, token *model.ProviderToken, uris []string) error {
	body := map[string]interface{}{"uris": uris}
	return c.doRequest(ctx, token, http.MethodPut, "/me/player/play", body, nil)
}

// StartPlaybackContext 从播放上下文（如播放列表）开始播放
func (c *Client) StartPlaybackContext(ctx context.Context, token *model.ProviderToken, contextURI string) error {
	body := map[string]interface{}{"context_uri": contextURI}
	return c.doRequest(ctx, token, http.MethodPut, "/me/player/play", body, nil)
}

// ResumePlayback 继续播放
func (c *Client) ResumePlayback(ctx context.Context, token *model.ProviderToken) error {
	return c.doRequest(ctx, token, http.MethodPut, "/me/player/play", nil, nil)
}

// PausePlayback 暂停播放
func (c *Client) PausePlayback(ctx context.Context, token *model.ProviderToken) error {
	return c.doRequest(ctx, token, http.MethodPut, "/me/player/pause", nil, nil)
}

// SetShuffle 设置随机播放开关
func (c *Client) SetShuffle(ctx context.Context, token *model.ProviderToken, enabled bool) error {
	q := url.Values{}
	q.Set("state", fmt.Sprintf("%t", enabled))
	return c.doRequest(ctx, token, http.MethodPut, "/me/player/shuffle?"+q.Encode(), nil, nil)
}
