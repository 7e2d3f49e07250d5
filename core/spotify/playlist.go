package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"LazyDJ/model"
)

// Playlist 播放列表的基本信息
type Playlist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// currentUserID 获取当前用户ID（创建播放列表时需要）
func (c *Client) currentUserID(ctx context.Context, token *model.ProviderToken) (string, error) {
	var body struct {
		ID string `json:"id"`
	}
	if err := c.doRequest(ctx, token, http.MethodGet, "/me", nil, &body); err != nil {
		return "", err
	}
	return body.ID, nil
}

// FindPlaylistByName 在用户的播放列表中按名称查找，支持分页遍历
func (c *Client) FindPlaylistByName(ctx context.Context, token *model.ProviderToken, name string) (*Playlist, error) {
	offset := 0
	const pageSize = 50
	for {
		q := url.Values{}
		q.Set("limit", fmt.Sprintf("%d", pageSize))
		q.Set("offset", fmt.Sprintf("%d", offset))

		var body struct {
			Items []Playlist `json:"items"`
			Next  string     `json:"next"`
		}
		if err := c.doRequest(ctx, token, http.MethodGet, "/me/playlists?"+q.Encode(), nil, &body); err != nil {
			return nil, err
		}
		for i := range body.Items {
			if body.Items[i].Name == name {
				return &body.Items[i], nil
			}
		}
		if body.Next == "" || len(body.Items) == 0 {
			return nil, nil
		}
		offset += pageSize
	}
}

// CreatePlaylist 为当前用户创建公开播放列表
func (c *Client) CreatePlaylist(ctx context.Context, token *model.ProviderToken, name string) (*Playlist, error) {
	userID, err := c.currentUserID(ctx, token)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"name":   name,
		"public": true,
	}
	var created Playlist
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(userID))
	if err := c.doRequest(ctx, token, http.MethodPost, endpoint, body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateOrFindPlaylist 按名称复用已有播放列表，不存在时创建
func (c *Client) CreateOrFindPlaylist(ctx context.Context, token *model.ProviderToken, name string) (*Playlist, error) {
	existing, err := c.FindPlaylistByName(ctx, token, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return c.CreatePlaylist(ctx, token, name)
}

// ListPlaylistTracks 列出播放列表中所有曲目的URI，支持分页遍历
func (c *Client) ListPlaylistTracks(ctx context.Context, token *model.ProviderToken, playlistID string) ([]string, error) {
	var uris []string
	offset := 0
	const pageSize = 100
	for {
		q := url.Values{}
		q.Set("limit", fmt.Sprintf("%d", pageSize))
		q.Set("offset", fmt.Sprintf("%d", offset))
		q.Set("fields", "items(track(uri)),next")

		var body struct {
			Items []struct {
				Track struct {
					URI string `json:"uri"`
				} `json:"track"`
			} `json:"items"`
			Next string `json:"next"`
		}
		endpoint := fmt.Sprintf("/playlists/%s/tracks?%s", url.PathEscape(playlistID), q.Encode())
		if err := c.doRequest(ctx, token, http.MethodGet, endpoint, nil, &body); err != nil {
			return nil, err
		}
		for _, item := range body.Items {
			uris = append(uris, item.Track.URI)
		}
		if body.Next == "" || len(body.Items) == 0 {
			return uris, nil
		}
		offset += pageSize
	}
}

// AddTracksToPlaylist 把曲目追加到播放列表
func (c *Client) AddTracksToPlaylist(ctx context.Context, token *model.ProviderToken, playlistID string, uris []string) error {
	if len(uris) == 0 {
		return nil
	}
	body := map[string]interface{}{"uris": uris}
	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	return c.doRequest(ctx, token, http.MethodPost, endpoint, body, nil)
}
