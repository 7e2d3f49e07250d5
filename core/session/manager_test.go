package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"LazyDJ/config"
	"LazyDJ/core/spotify"
	"LazyDJ/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider 测试用的音乐服务端替身
type fakeProvider struct {
	mu sync.Mutex

	enqueued     []string
	enqueueErr   error
	failFirst    bool // 第一次入队返回 enqueueErr，之后成功
	enqueueCalls int

	refreshCalls   int
	refreshErr     error
	refreshStarted chan struct{} // 刷新开始时发出通知
	refreshBlock   chan struct{} // 刷新挂起，直到通道关闭

	playlistErr    error
	playlistTracks []string
	addedToList    []string

	current     *model.Track
	playerQueue []model.Track
}

func (f *fakeProvider) Search(ctx context.Context, token *model.ProviderToken, query string, limit int) ([]model.Track, error) {
	return nil, nil
}

func (f *fakeProvider) Enqueue(ctx context.Context, token *model.ProviderToken, uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueueCalls++
	if f.enqueueErr != nil {
		if f.failFirst && f.enqueueCalls > 1 {
			// 重试成功
		} else {
			return f.enqueueErr
		}
	}
	f.enqueued = append(f.enqueued, uri)
	return nil
}

func (f *fakeProvider) CurrentlyPlaying(ctx context.Context, token *model.ProviderToken) (*model.Track, error) {
	return f.current, nil
}

func (f *fakeProvider) PlayerQueue(ctx context.Context, token *model.ProviderToken) ([]model.Track, error) {
	return f.playerQueue, nil
}

func (f *fakeProvider) RefreshToken(ctx context.Context, refreshToken string) (*model.ProviderToken, error) {
	if f.refreshStarted != nil {
		select {
		case f.refreshStarted <- struct{}{}:
		default:
		}
	}
	if f.refreshBlock != nil {
		<-f.refreshBlock
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &model.ProviderToken{
		AccessToken:  "refreshed",
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeProvider) CreateOrFindPlaylist(ctx context.Context, token *model.ProviderToken, name string) (*spotify.Playlist, error) {
	if f.playlistErr != nil {
		return nil, f.playlistErr
	}
	return &spotify.Playlist{ID: "pl1", Name: name}, nil
}

func (f *fakeProvider) ListPlaylistTracks(ctx context.Context, token *model.ProviderToken, playlistID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.playlistTracks...), nil
}

func (f *fakeProvider) AddTracksToPlaylist(ctx context.Context, token *model.ProviderToken, playlistID string, uris []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addedToList = append(f.addedToList, uris...)
	return nil
}

func (f *fakeProvider) SkipNext(ctx context.Context, token *model.ProviderToken) error {
	return nil
}

func (f *fakeProvider) enqueueCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enqueueCalls
}

func testConfig() *config.Config {
	return &config.Config{
		TrackCooldownPeriod: 20 * time.Minute,
		SessionExpiration:   24 * time.Hour,
		RadioQueueLimit:     5,
	}
}

func testToken() *model.ProviderToken {
	return &model.ProviderToken{
		AccessToken:  "token",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func testTrack(uri string) model.Track {
	return model.Track{URI: uri, Name: "歌曲 " + uri, Artists: "测试歌手"}
}

func TestCreateSessionUniqueShortIDs(t *testing.T) {
	m := NewManager(testConfig(), &fakeProvider{}, nil)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		sess, err := m.CreateSession(context.Background(), testToken())
		require.NoError(t, err)
		assert.Len(t, sess.ID, 8)
		assert.False(t, seen[sess.ID], "会话ID重复: %s", sess.ID)
		seen[sess.ID] = true
	}
	assert.Equal(t, 50, m.SessionCount())
}

func TestCreateSessionConcurrentNoCollision(t *testing.T) {
	if testing.Short() {
		t.Skip("压力测试")
	}

	const n = 10000
	m := NewManager(testConfig(), &fakeProvider{}, nil)

	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := m.CreateSession(context.Background(), testToken())
			if err != nil {
				t.Error(err)
				return
			}
			ids <- sess.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		assert.False(t, seen[id], "会话ID重复: %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, m.SessionCount())
}

func TestCreateSessionRequiresToken(t *testing.T) {
	m := NewManager(testConfig(), &fakeProvider{}, nil)

	_, err := m.CreateSession(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestCreateSessionPlaylistFailure(t *testing.T) {
	provider := &fakeProvider{playlistErr: fmt.Errorf("boom")}
	m := NewManager(testConfig(), provider, nil)

	_, err := m.CreateSession(context.Background(), testToken())
	assert.Error(t, err)
	assert.Equal(t, 0, m.SessionCount())
}

func TestSubmitTrackCooldownRejectsDuplicate(t *testing.T) {
	provider := &fakeProvider{}
	m := NewManager(testConfig(), provider, nil)
	sess, err := m.CreateSession(context.Background(), testToken())
	require.NoError(t, err)

	req := SubmitRequest{SessionID: sess.ID, Track: testTrack("spotify:track:a")}

	result, err := m.SubmitTrack(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, result.Status)

	// 冷却期内重复点歌被拒绝，且不会再次入队
	result, err = m.SubmitTrack(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusOnCooldown, result.Status)
	assert.Greater(t, result.Remaining, time.Duration(0))
	assert.LessOrEqual(t, result.Remaining, 20*time.Minute)
	assert.Equal(t, 1, provider.enqueueCount())
}

func TestSubmitTrackAdminBypassesCooldown(t *testing.T) {
	provider := &fakeProvider{}
	m := NewManager(testConfig(), provider, nil)
	sess, err := m.CreateSession(context.Background(), testToken())
	require.NoError(t, err)

	req := SubmitRequest{SessionID: sess.ID, Track: testTrack("spotify:track:a")}
	_, err = m.SubmitTrack(context.Background(), req)
	require.NoError(t, err)

	req.Admin = true
	result, err := m.SubmitTrack(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, result.Status)
	assert.Equal(t, 2, provider.enqueueCount())
}

func TestSubmitTrackConcurrentDuplicate(t *testing.T) {
	provider := &fakeProvider{}
	m := NewManager(testConfig(), provider, nil)
	sess, err := m.CreateSession(context.Background(), testToken())
	require.NoError(t, err)

	// 两个人同时点同一首歌，只有一个能成功
	var wg sync.WaitGroup
	results := make([]*SubmitResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := m.SubmitTrack(context.Background(), SubmitRequest{
				SessionID: sess.ID,
				Track:     testTrack("spotify:track:a"),
			})
			require.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	queued, rejected := 0, 0
	for _, r := range results {
		switch r.Status {
		case StatusQueued:
			queued++
		case StatusOnCooldown:
			rejected++
		}
	}
	assert.Equal(t, 1, queued)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, provider.enqueueCount())
}

func TestSubmitTrackNoActiveDevice(t *testing.T) {
	provider := &fakeProvider{
		enqueueErr: &spotify.APIError{Status: 404, Message: "Player command failed: No active device found", Reason: "NO_ACTIVE_DEVICE"},
	}
	m := NewManager(testConfig(), provider, nil)
	sess, err := m.CreateSession(context.Background(), testToken())
	require.NoError(t, err)

	_, err = m.SubmitTrack(context.Background(), SubmitRequest{
		SessionID: sess.ID,
		Track:     testTrack("spotify:track:a"),
	})
	assert.ErrorIs(t, err, ErrNoActiveDevice)

	// 入队失败不记录冷却，设备恢复后可以立刻再点
	assert.False(t, sess.HasQueued("spotify:track:a"))
}

func TestSubmitTrackAuthExpiredRetriesOnce(t *testing.T) {
	provider := &fakeProvider{
		enqueueErr: &spotify.APIError{Status: 401, Message: "The access token expired"},
		failFirst:  true,
	}
	m := NewManager(testConfig(), provider, nil)
	sess, err := m.CreateSession(context.Background(), testToken())
	require.NoError(t, err)

	result, err := m.SubmitTrack(context.Background(), SubmitRequest{
		SessionID: sess.ID,
		Track:     testTrack("spotify:track:a"),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, result.Status)
	assert.Equal(t, 1, provider.refreshCalls)
	assert.Equal(t, 2, provider.enqueueCount())

	// 刷新后的凭证写回会话
	assert.Equal(t, "refreshed", sess.OwnerToken().AccessToken)
}

func TestPartitionQueue(t *testing.T) {
	playerQueue := []model.Track{
		testTrack("spotify:track:a"),
		testTrack("spotify:track:r1"),
		testTrack("spotify:track:b"),
		testTrack("spotify:track:r2"),
		testTrack("spotify:track:c"),
	}
	mine := map[string]bool{
		"spotify:track:a": true,
		"spotify:track:b": true,
		"spotify:track:c": true,
	}

	user, radio := partitionQueue(playerQueue, func(uri string) bool { return mine[uri] }, 5)

	// 每首歌恰好落在一边，顺序保持不变
	assert.Equal(t, []string{"spotify:track:a", "spotify:track:b", "spotify:track:c"}, trackURIs(user))
	assert.Equal(t, []string{"spotify:track:r1", "spotify:track:r2"}, trackURIs(radio))
}

func TestPartitionQueueRadioLimit(t *testing.T) {
	var playerQueue []model.Track
	for i := 0; i < 10; i++ {
		playerQueue = append(playerQueue, testTrack(fmt.Sprintf("spotify:track:r%d", i)))
	}
	// 用户点的歌排在电台之后也能被找到
	playerQueue = append(playerQueue, testTrack("spotify:track:mine"))

	user, radio := partitionQueue(playerQueue, func(uri string) bool { return uri == "spotify:track:mine" }, 5)

	assert.Len(t, radio, 5)
	assert.Equal(t, []string{"spotify:track:mine"}, trackURIs(user))
}

func trackURIs(tracks []model.Track) []string {
	uris := make([]string, 0, len(tracks))
	for _, t := range tracks {
		uris = append(uris, t.URI)
	}
	return uris
}

func TestSessionQueueViewAttribution(t *testing.T) {
	provider := &fakeProvider{}
	m := NewManager(testConfig(), provider, nil)
	sess, err := m.CreateSession(context.Background(), testToken())
	require.NoError(t, err)

	_, err = m.SubmitTrack(context.Background(), SubmitRequest{SessionID: sess.ID, Track: testTrack("spotify:track:a")})
	require.NoError(t, err)

	// 本地只记录了 a，上游队列是 a,b,c：a 归点歌队列，b,c 归电台
	provider.playerQueue = []model.Track{
		testTrack("spotify:track:a"),
		testTrack("spotify:track:b"),
		testTrack("spotify:track:c"),
	}

	view, err := m.SessionQueueView(context.Background(), sess.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"spotify:track:a"}, trackURIs(view.UserQueue))
	assert.Equal(t, []string{"spotify:track:b", "spotify:track:c"}, trackURIs(view.RadioQueue))
	assert.Nil(t, view.CurrentTrack)
}

func TestSessionQueueViewPrunesPlayedTracks(t *testing.T) {
	provider := &fakeProvider{}
	m := NewManager(testConfig(), provider, nil)
	sess, err := m.CreateSession(context.Background(), testToken())
	require.NoError(t, err)

	_, err = m.SubmitTrack(context.Background(), SubmitRequest{SessionID: sess.ID, Track: testTrack("spotify:track:a")})
	require.NoError(t, err)
	_, err = m.SubmitTrack(context.Background(), SubmitRequest{SessionID: sess.ID, Track: testTrack("spotify:track:b")})
	require.NoError(t, err)

	// a 已经播完：既不在播放器队列中，也不是正在播放
	current := testTrack("spotify:track:c")
	provider.current = &current
	provider.playerQueue = []model.Track{testTrack("spotify:track:b")}

	view, err := m.SessionQueueView(context.Background(), sess.ID)
	require.NoError(t, err)

	assert.Equal(t, "spotify:track:c", view.CurrentTrack.URI)
	assert.Equal(t, []string{"spotify:track:b"}, trackURIs(view.UserQueue))
	assert.Equal(t, []string{"spotify:track:b"}, trackURIs(sess.Queue()))
}

func TestGlobalQueueView(t *testing.T) {
	provider := &fakeProvider{
		playerQueue: []model.Track{
			testTrack("spotify:track:mine"),
			testTrack("spotify:track:radio"),
		},
	}
	m := NewManager(testConfig(), provider, nil)

	view, remaining, err := m.GlobalQueueView(context.Background(), testToken(),
		[]string{"spotify:track:mine", "spotify:track:played"})
	require.NoError(t, err)

	assert.Equal(t, []string{"spotify:track:mine"}, trackURIs(view.UserQueue))
	assert.Equal(t, []string{"spotify:track:radio"}, trackURIs(view.RadioQueue))
	// 已播完的URI被剔除
	assert.Equal(t, []string{"spotify:track:mine"}, remaining)
}

func TestSubmitTrackRefreshFailureNotAuthenticated(t *testing.T) {
	provider := &fakeProvider{refreshErr: errors.New("invalid_grant")}
	m := NewManager(testConfig(), provider, nil)

	stale := &model.ProviderToken{
		AccessToken:  "tok",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(30 * time.Second),
	}
	_, err := m.SubmitTrack(context.Background(), SubmitRequest{
		Token: stale,
		Track: testTrack("spotify:track:x"),
	})
	// 刷新失败按未登录处理
	assert.ErrorIs(t, err, ErrNoToken)
	assert.Equal(t, 0, provider.enqueueCount())
}

func TestSubmitNotBlockedByTokenRefresh(t *testing.T) {
	provider := &fakeProvider{
		refreshStarted: make(chan struct{}, 1),
		refreshBlock:   make(chan struct{}),
	}
	m := NewManager(testConfig(), provider, nil)

	// 即将过期的凭证触发主动刷新；刷新被挂起
	stale := &model.ProviderToken{
		AccessToken:  "tok",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(30 * time.Second),
	}
	slowDone := make(chan struct{})
	go func() {
		_, err := m.SubmitTrack(context.Background(), SubmitRequest{
			Token: stale,
			Track: testTrack("spotify:track:slow"),
		})
		assert.NoError(t, err)
		close(slowDone)
	}()
	<-provider.refreshStarted

	// 刷新挂起期间，其他点歌不应被挡住
	fastDone := make(chan struct{})
	go func() {
		_, err := m.SubmitTrack(context.Background(), SubmitRequest{
			Token: testToken(),
			Track: testTrack("spotify:track:fast"),
		})
		assert.NoError(t, err)
		close(fastDone)
	}()
	select {
	case <-fastDone:
	case <-time.After(2 * time.Second):
		t.Fatal("点歌被挂起的凭证刷新阻塞")
	}

	close(provider.refreshBlock)
	<-slowDone
	assert.Equal(t, 2, provider.enqueueCount())
}

func TestGlobalQueueViewAttributesFromRegistry(t *testing.T) {
	provider := &fakeProvider{}
	m := NewManager(testConfig(), provider, nil)

	// 浏览器A点歌
	_, err := m.SubmitTrack(context.Background(), SubmitRequest{
		Token: testToken(),
		Track: testTrack("spotify:track:x"),
	})
	require.NoError(t, err)

	provider.playerQueue = []model.Track{testTrack("spotify:track:x")}

	// 浏览器B没有本地记录，这首歌对它同样属于点歌队列而不是电台
	view, _, err := m.GlobalQueueView(context.Background(), testToken(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"spotify:track:x"}, trackURIs(view.UserQueue))
	assert.Empty(t, view.RadioQueue)
}

func TestEndSessionIdempotent(t *testing.T) {
	m := NewManager(testConfig(), &fakeProvider{}, nil)
	sess, err := m.CreateSession(context.Background(), testToken())
	require.NoError(t, err)

	assert.True(t, m.EndSession(sess.ID))
	assert.False(t, m.EndSession(sess.ID))
	assert.Equal(t, 0, m.SessionCount())

	_, err = m.GetSession(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSweepExpiredBoundary(t *testing.T) {
	cfg := testConfig()
	m := NewManager(cfg, &fakeProvider{}, nil)

	fresh, err := m.CreateSession(context.Background(), testToken())
	require.NoError(t, err)
	stale, err := m.CreateSession(context.Background(), testToken())
	require.NoError(t, err)

	now := time.Now()
	fresh.CreatedAt = now.Add(-cfg.SessionExpiration + time.Second)
	stale.CreatedAt = now.Add(-cfg.SessionExpiration - time.Second)

	removed := m.SweepExpired(now)
	assert.Equal(t, 1, removed)

	_, err = m.GetSession(fresh.ID)
	assert.NoError(t, err)
	_, err = m.GetSession(stale.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestJoinSessionIdempotent(t *testing.T) {
	m := NewManager(testConfig(), &fakeProvider{}, nil)
	sess, err := m.CreateSession(context.Background(), testToken())
	require.NoError(t, err)

	p1, err := m.JoinSession(sess.ID, "")
	require.NoError(t, err)
	assert.NotEmpty(t, p1.ID)

	// 带着已有的参与者ID重复加入不产生新成员
	p2, err := m.JoinSession(sess.ID, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, 1, sess.ParticipantCount())

	_, err = m.JoinSession("missing", "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMirrorToPlaylistIdempotent(t *testing.T) {
	provider := &fakeProvider{playlistTracks: []string{"spotify:track:a"}}
	m := NewManager(testConfig(), provider, nil)
	sess, err := m.CreateSession(context.Background(), testToken())
	require.NoError(t, err)

	// 已在播放列表中的歌不会重复添加
	m.mirrorToPlaylist(sess, testTrack("spotify:track:a"))
	assert.Empty(t, provider.addedToList)

	m.mirrorToPlaylist(sess, testTrack("spotify:track:b"))
	assert.Equal(t, []string{"spotify:track:b"}, provider.addedToList)
}
