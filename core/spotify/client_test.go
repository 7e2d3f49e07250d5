package spotify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"LazyDJ/config"
	"LazyDJ/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(apiURL string) *Client {
	c := NewClient(&config.Config{
		SpotifyClientID:     "id",
		SpotifyClientSecret: "secret",
		SpotifyRedirectURI:  "http://localhost:5000/callback",
	})
	c.SetBaseURL(apiURL)
	return c
}

func apiToken() *model.ProviderToken {
	return &model.ProviderToken{AccessToken: "tok", RefreshToken: "ref", ExpiresAt: time.Now().Add(time.Hour)}
}

func TestSearchParsesTracks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "track", r.URL.Query().Get("type"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tracks":{"items":[
			{"uri":"spotify:track:a","name":"Song A","artists":[{"name":"Artist 1"},{"name":"Artist 2"}],
			 "album":{"images":[{"url":"http://img/a.jpg"}]}}
		]}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	tracks, err := c.Search(context.Background(), apiToken(), "song", 10)
	require.NoError(t, err)

	require.Len(t, tracks, 1)
	assert.Equal(t, "spotify:track:a", tracks[0].URI)
	assert.Equal(t, "Artist 1, Artist 2", tracks[0].Artists)
	assert.Equal(t, "http://img/a.jpg", tracks[0].AlbumArt)
}

func TestEnqueueNoActiveDevice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"status":404,"message":"Player command failed: No active device found","reason":"NO_ACTIVE_DEVICE"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.Enqueue(context.Background(), apiToken(), "spotify:track:a")

	require.Error(t, err)
	assert.True(t, IsNoActiveDevice(err))
	assert.False(t, IsAuthExpired(err))
}

func TestAuthExpiredDetection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"status":401,"message":"The access token expired"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.Enqueue(context.Background(), apiToken(), "spotify:track:a")

	require.Error(t, err)
	assert.True(t, IsAuthExpired(err))
	assert.False(t, IsNoActiveDevice(err))
}

func TestRefreshTokenKeepsOldRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		// Spotify 刷新时通常不返回新的 refresh_token
		w.Write([]byte(`{"access_token":"new-tok","expires_in":3600}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.SetAuthBaseURL(srv.URL+"/authorize", srv.URL+"/api/token")

	token, err := c.RefreshToken(context.Background(), "old-refresh")
	require.NoError(t, err)

	assert.Equal(t, "new-tok", token.AccessToken)
	assert.Equal(t, "old-refresh", token.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, 5*time.Second)
}

func TestAuthURLContainsScopeAndState(t *testing.T) {
	c := newTestClient("http://unused")
	u := c.AuthURL("state123")

	assert.Contains(t, u, "client_id=id")
	assert.Contains(t, u, "state=state123")
	assert.Contains(t, u, "response_type=code")
}

func TestFindPlaylistByNamePaging(t *testing.T) {
	page := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if page == 0 {
			page++
			w.Write([]byte(`{"items":[{"id":"p1","name":"Other"}],"next":"more"}`))
			return
		}
		w.Write([]byte(`{"items":[{"id":"p2","name":"LazyDJ - 2026-08-31"}],"next":""}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	pl, err := c.FindPlaylistByName(context.Background(), apiToken(), "LazyDJ - 2026-08-31")
	require.NoError(t, err)

	require.NotNil(t, pl)
	assert.Equal(t, "p2", pl.ID)
}
