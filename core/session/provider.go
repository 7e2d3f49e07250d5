package session

import (
	"context"

	"LazyDJ/core/spotify"
	"LazyDJ/model"
)

// Provider 音乐服务端的能力抽象，由 spotify.Client 实现。
// 点歌流水线和队列核对只依赖这一层，便于在测试中替换。
type Provider interface {
	Search(ctx context.Context, token *model.ProviderToken, query string, limit int) ([]model.Track, error)
	Enqueue(ctx context.Context, token *model.ProviderToken, trackURI string) error
	CurrentlyPlaying(ctx context.Context, token *model.ProviderToken) (*model.Track, error)
	PlayerQueue(ctx context.Context, token *model.ProviderToken) ([]model.Track, error)
	RefreshToken(ctx context.Context, refreshToken string) (*model.ProviderToken, error)
	CreateOrFindPlaylist(ctx context.Context, token *model.ProviderToken, name string) (*spotify.Playlist, error)
	ListPlaylistTracks(ctx context.Context, token *model.ProviderToken, playlistID string) ([]string, error)
	AddTracksToPlaylist(ctx context.Context, token *model.ProviderToken, playlistID string, uris []string) error
	SkipNext(ctx context.Context, token *model.ProviderToken) error
}
