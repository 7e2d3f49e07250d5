package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"LazyDJ/config"
	"LazyDJ/core/spotify"
	"LazyDJ/logger"
	"LazyDJ/model"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound 会话不存在或已过期
	ErrSessionNotFound = errors.New("会话不存在或已过期")
	// ErrNoActiveDevice 没有可用的播放设备
	ErrNoActiveDevice = errors.New("没有正在播放的设备，请先在Spotify中开始播放")
	// ErrNoToken 没有可用的访问凭证
	ErrNoToken = errors.New("没有可用的访问凭证")
)

const (
	sessionIDLength  = 8
	maxIDAttempts    = 100
	playlistPrefix   = "LazyDJ - "
	mirrorTimeout    = 15 * time.Second
)

// Manager 会话管理器。
// 维护所有活跃会话、全局冷却登记表，并串联点歌流水线。
type Manager struct {
	cfg      *config.Config
	provider Provider
	hub      *Hub
	global   *CooldownRegistry

	mu       sync.RWMutex
	sessions map[string]*model.Session

	// 点歌流水线互斥：冷却检查、入队、记录必须作为一个整体执行，
	// 否则两个并发请求会同时通过冷却检查导致重复点歌
	submitMu sync.Mutex
}

// NewManager 创建会话管理器
func NewManager(cfg *config.Config, provider Provider, hub *Hub) *Manager {
	return &Manager{
		cfg:      cfg,
		provider: provider,
		hub:      hub,
		global:   NewCooldownRegistry(cfg.TrackCooldownPeriod),
		sessions: make(map[string]*model.Session),
	}
}

// GlobalCooldowns 返回全局冷却登记表
func (m *Manager) GlobalCooldowns() *CooldownRegistry {
	return m.global
}

// CreateSession 创建新会话。
// 会同时创建（或复用）当天的镜像播放列表，创建失败则会话创建失败。
func (m *Manager) CreateSession(ctx context.Context, ownerToken *model.ProviderToken) (*model.Session, error) {
	if ownerToken == nil || ownerToken.AccessToken == "" {
		return nil, ErrNoToken
	}

	// 顺手清理过期会话
	m.SweepExpired(time.Now())

	playlistName := playlistPrefix + time.Now().Format("2006-01-02")
	playlist, err := m.provider.CreateOrFindPlaylist(ctx, ownerToken, playlistName)
	if err != nil {
		return nil, fmt.Errorf("创建镜像播放列表失败: %w", err)
	}

	// 生成短会话ID并注册必须是一个原子动作，
	// 并发创建时两个请求不能拿到同一个ID
	m.mu.Lock()
	var id string
	for i := 0; i < maxIDAttempts; i++ {
		candidate := strings.ReplaceAll(uuid.New().String(), "-", "")[:sessionIDLength]
		if _, exists := m.sessions[candidate]; !exists {
			id = candidate
			break
		}
	}
	if id == "" {
		m.mu.Unlock()
		return nil, fmt.Errorf("生成会话ID失败，已重试%d次", maxIDAttempts)
	}
	sess := model.NewSession(id, ownerToken)
	sess.PlaylistID = playlist.ID
	sess.PlaylistName = playlist.Name
	m.sessions[id] = sess
	m.mu.Unlock()

	logger.Info("会话已创建",
		logger.String("session", id),
		logger.String("playlist", playlist.Name))
	return sess, nil
}

// GetSession 按ID查找会话
func (m *Manager) GetSession(id string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// SessionCount 返回活跃会话数
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// JoinSession 把参与者加入会话（重复加入是幂等的），并广播加入事件
func (m *Manager) JoinSession(sessionID, participantID string) (model.Participant, error) {
	sess, err := m.GetSession(sessionID)
	if err != nil {
		return model.Participant{}, err
	}

	before := sess.ParticipantCount()
	p := sess.AddParticipant(participantID)

	if m.hub != nil && sess.ParticipantCount() > before {
		_ = m.hub.BroadcastEvent(sessionID, MsgTypeParticipantJoin, map[string]interface{}{
			"participant":      p,
			"participantCount": sess.ParticipantCount(),
		})
	}
	return p, nil
}

// EndSession 结束会话。会话不存在时返回 false，多次结束是安全的。
func (m *Manager) EndSession(sessionID string) bool {
	m.mu.Lock()
	_, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if ok {
		if m.hub != nil {
			_ = m.hub.BroadcastEvent(sessionID, MsgTypeSessionEnded, nil)
		}
		logger.Info("会话已结束", logger.String("session", sessionID))
	}
	return ok
}

// SweepExpired 清理所有过期会话，返回清理数量
func (m *Manager) SweepExpired(now time.Time) int {
	// 先在读锁下拿到过期ID快照，再逐个删除
	m.mu.RLock()
	var expired []string
	for id, sess := range m.sessions {
		if sess.Expired(now, m.cfg.SessionExpiration) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		m.EndSession(id)
	}

	m.global.Sweep(now)

	if len(expired) > 0 {
		logger.Info("已清理过期会话", logger.Int("count", len(expired)))
	}
	return len(expired)
}

// StartSweeper 启动后台清理任务，直到 ctx 取消
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.SweepExpired(now)
			}
		}
	}()
}

// SubmitStatus 点歌结果状态
type SubmitStatus string

const (
	StatusQueued     SubmitStatus = "queued"   // 已加入队列
	StatusOnCooldown SubmitStatus = "cooldown" // 冷却期内被拒绝
)

// SubmitRequest 点歌请求
type SubmitRequest struct {
	SessionID     string // 为空表示全局（非会话）点歌
	Token         *model.ProviderToken
	Track         model.Track
	ParticipantID string
	Admin         bool // 管理员点歌不受冷却限制
}

// SubmitResult 点歌结果
type SubmitResult struct {
	Status    SubmitStatus
	Remaining time.Duration // 冷却剩余时长

	// 非 nil 时表示访问凭证已刷新，调用方应更新浏览器会话
	RefreshedToken *model.ProviderToken
}

// SubmitTrack 点歌流水线：冷却检查 → 入队 → 记录。
// 整个流程持有 submitMu，保证同一首歌不会被并发请求重复点进队列。
// 播放列表镜像和队列广播在锁外进行。
func (m *Manager) SubmitTrack(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	var sess *model.Session
	if req.SessionID != "" {
		var err error
		sess, err = m.GetSession(req.SessionID)
		if err != nil {
			return nil, err
		}
	}

	result := &SubmitResult{Status: StatusQueued}
	period := m.cfg.TrackCooldownPeriod
	uri := req.Track.URI

	// 会话内点歌统一使用会话创建者的凭证驱动播放
	token := req.Token
	if sess != nil {
		token = sess.OwnerToken()
	}

	// 凭证刷新走网络，放在锁外；锁只覆盖 冷却检查→入队→记录
	token, err := m.ensureFresh(ctx, sess, token, result)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	m.submitMu.Lock()

	// 冷却检查（管理员直接放行）
	if !req.Admin {
		var onCooldown bool
		var remaining time.Duration
		if sess != nil {
			onCooldown = sess.IsTrackOnCooldown(uri, now, period)
			remaining = sess.CooldownRemaining(uri, now, period)
		} else {
			onCooldown, remaining = m.global.CheckAt(uri, now)
		}
		if onCooldown {
			m.submitMu.Unlock()
			logger.Debug("曲目在冷却期内",
				logger.String("uri", uri),
				logger.Duration("remaining", remaining))
			return &SubmitResult{Status: StatusOnCooldown, Remaining: remaining}, nil
		}
	}

	if err := m.enqueueWithRetry(ctx, sess, token, uri, result); err != nil {
		m.submitMu.Unlock()
		if spotify.IsNoActiveDevice(err) {
			return nil, ErrNoActiveDevice
		}
		return nil, err
	}

	// 入队成功后记录冷却（管理员点歌同样刷新冷却时间）
	if sess != nil {
		track := req.Track
		track.AddedAt = now
		sess.AddToQueue(track)
		if req.ParticipantID != "" {
			sess.RecordParticipantTrack(req.ParticipantID)
		}
	} else {
		m.global.RecordAt(uri, now)
	}

	m.submitMu.Unlock()

	if sess != nil {
		go m.mirrorToPlaylist(sess, req.Track)
		if m.hub != nil {
			_ = m.hub.BroadcastEvent(sess.ID, MsgTypeQueueUpdate, map[string]interface{}{
				"track": req.Track,
			})
		}
	}

	logger.Info("点歌成功",
		logger.String("uri", uri),
		logger.String("track", req.Track.Name),
		logger.String("session", req.SessionID))
	return result, nil
}

// ensureFresh 凭证临近过期时主动刷新
func (m *Manager) ensureFresh(ctx context.Context, sess *model.Session, token *model.ProviderToken, result *SubmitResult) (*model.ProviderToken, error) {
	if token == nil || token.AccessToken == "" {
		return nil, ErrNoToken
	}
	if !token.NearExpiry(time.Now()) {
		return token, nil
	}

	refreshed, err := m.provider.RefreshToken(ctx, token.RefreshToken)
	if err != nil {
		// 刷新失败视为未登录，引导用户重新授权
		logger.Warn("刷新访问凭证失败", logger.ErrorField(err))
		return nil, fmt.Errorf("%w: %v", ErrNoToken, err)
	}
	m.storeRefreshed(sess, refreshed, result)
	return refreshed, nil
}

// enqueueWithRetry 入队，凭证失效时刷新一次后重试
func (m *Manager) enqueueWithRetry(ctx context.Context, sess *model.Session, token *model.ProviderToken, uri string, result *SubmitResult) error {
	err := m.provider.Enqueue(ctx, token, uri)
	if err == nil || !spotify.IsAuthExpired(err) {
		return err
	}

	refreshed, rerr := m.provider.RefreshToken(ctx, token.RefreshToken)
	if rerr != nil {
		return err
	}
	m.storeRefreshed(sess, refreshed, result)
	return m.provider.Enqueue(ctx, refreshed, uri)
}

func (m *Manager) storeRefreshed(sess *model.Session, refreshed *model.ProviderToken, result *SubmitResult) {
	if sess != nil {
		sess.SetOwnerToken(refreshed)
	}
	if result != nil {
		result.RefreshedToken = refreshed
	}
}

// mirrorToPlaylist 把点歌镜像到会话播放列表。
// 镜像是尽力而为的：任何失败只记日志，绝不影响已经成功的点歌。
func (m *Manager) mirrorToPlaylist(sess *model.Session, track model.Track) {
	if sess.PlaylistID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	token := sess.OwnerToken()
	existing, err := m.provider.ListPlaylistTracks(ctx, token, sess.PlaylistID)
	if err != nil {
		logger.Warn("读取镜像播放列表失败",
			logger.ErrorField(err),
			logger.String("session", sess.ID))
		return
	}
	for _, uri := range existing {
		if uri == track.URI {
			return // 已在播放列表中
		}
	}

	if err := m.provider.AddTracksToPlaylist(ctx, token, sess.PlaylistID, []string{track.URI}); err != nil {
		logger.Warn("镜像到播放列表失败",
			logger.ErrorField(err),
			logger.String("session", sess.ID),
			logger.String("uri", track.URI))
	}
}

// partitionQueue 把播放器队列切分为点歌队列和电台队列。
// 每首歌只会落在其中一边；电台队列截断到 radioLimit 长度。
func partitionQueue(playerQueue []model.Track, isUserTrack func(string) bool, radioLimit int) (user, radio []model.Track) {
	user = make([]model.Track, 0, len(playerQueue))
	radio = make([]model.Track, 0, radioLimit)
	for _, t := range playerQueue {
		if isUserTrack(t.URI) {
			user = append(user, t)
		} else if len(radio) < radioLimit {
			radio = append(radio, t)
		}
	}
	return user, radio
}

// SessionQueueView 获取会话视角的队列：正在播放、点歌队列、电台预览。
// 同时把已经播完的点歌从会话队列中清掉。
func (m *Manager) SessionQueueView(ctx context.Context, sessionID string) (*model.SessionQueueView, error) {
	sess, err := m.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	token, err := m.ensureFresh(ctx, sess, sess.OwnerToken(), nil)
	if err != nil {
		return nil, err
	}

	current, err := m.provider.CurrentlyPlaying(ctx, token)
	if err != nil {
		return nil, err
	}
	playerQueue, err := m.provider.PlayerQueue(ctx, token)
	if err != nil {
		return nil, err
	}

	userQueue, radioQueue := partitionQueue(playerQueue, sess.HasQueued, m.cfg.RadioQueueLimit)
	m.pruneSessionQueue(sess, current, playerQueue)

	return &model.SessionQueueView{
		QueueView: model.QueueView{
			CurrentTrack: current,
			UserQueue:    userQueue,
			RadioQueue:   radioQueue,
		},
		Participants:     sess.Participants(),
		ParticipantCount: sess.ParticipantCount(),
	}, nil
}

// pruneSessionQueue 把既不在播放器队列中、也不是正在播放的点歌移出会话队列
func (m *Manager) pruneSessionQueue(sess *model.Session, current *model.Track, playerQueue []model.Track) {
	present := make(map[string]bool, len(playerQueue)+1)
	for _, t := range playerQueue {
		present[t.URI] = true
	}
	if current != nil {
		present[current.URI] = true
	}

	for _, t := range sess.Queue() {
		if !present[t.URI] {
			sess.RemoveFromQueue(t.URI)
		}
	}
}

// GlobalQueueView 获取非会话视角的队列。
// 点歌归属看全局冷却登记表：任何浏览器点过的歌对所有人都算点歌队列。
// userURIs 是该浏览器自己点过的歌，仅用于剔除已经播完的URI。
func (m *Manager) GlobalQueueView(ctx context.Context, token *model.ProviderToken, userURIs []string) (*model.QueueView, []string, error) {
	if token == nil || token.AccessToken == "" {
		return nil, nil, ErrNoToken
	}

	current, err := m.provider.CurrentlyPlaying(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	playerQueue, err := m.provider.PlayerQueue(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	mine := make(map[string]bool, len(userURIs))
	for _, uri := range userURIs {
		mine[uri] = true
	}

	userQueue, radioQueue := partitionQueue(playerQueue, func(uri string) bool {
		return m.global.Has(uri) || mine[uri]
	}, m.cfg.RadioQueueLimit)

	// 只保留仍在播放器队列中（或正在播放）的URI
	present := make(map[string]bool, len(playerQueue)+1)
	for _, t := range playerQueue {
		present[t.URI] = true
	}
	if current != nil {
		present[current.URI] = true
	}
	remaining := make([]string, 0, len(userURIs))
	for _, uri := range userURIs {
		if present[uri] {
			remaining = append(remaining, uri)
		}
	}

	return &model.QueueView{
		CurrentTrack: current,
		UserQueue:    userQueue,
		RadioQueue:   radioQueue,
	}, remaining, nil
}

// SkipCurrentTrack 跳过会话正在播放的曲目（管理员操作）
func (m *Manager) SkipCurrentTrack(ctx context.Context, sessionID string) error {
	sess, err := m.GetSession(sessionID)
	if err != nil {
		return err
	}
	token, err := m.ensureFresh(ctx, sess, sess.OwnerToken(), nil)
	if err != nil {
		return err
	}
	if err := m.provider.SkipNext(ctx, token); err != nil {
		if spotify.IsNoActiveDevice(err) {
			return ErrNoActiveDevice
		}
		return err
	}
	if m.hub != nil {
		_ = m.hub.BroadcastEvent(sessionID, MsgTypeQueueUpdate, nil)
	}
	return nil
}

// ClearSessionQueue 清空会话的点歌记录（管理员操作）。
// 只清除本地记录，播放器侧已入队的歌无法撤回。
func (m *Manager) ClearSessionQueue(sessionID string) error {
	sess, err := m.GetSession(sessionID)
	if err != nil {
		return err
	}
	sess.ClearQueue()
	if m.hub != nil {
		_ = m.hub.BroadcastEvent(sessionID, MsgTypeQueueUpdate, nil)
	}
	return nil
}
