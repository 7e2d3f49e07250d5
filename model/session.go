package model

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Participant 会话参与者
type Participant struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	JoinedAt    time.Time `json:"joinedAt"`
	TracksAdded int       `json:"tracksAdded"`
}

// Session 一场活动的协作点歌会话。
// 会话由会话注册表独占持有，请求处理器每次按ID查找，不长期持有引用。
// 所有可变状态由内部互斥锁保护。
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.RWMutex
	ownerToken   *ProviderToken
	queue        []Track
	cooldowns    map[string]time.Time
	participants map[string]Participant

	PlaylistID   string
	PlaylistName string
}

// NewSession 创建一个空会话
func NewSession(id string, ownerToken *ProviderToken) *Session {
	return &Session{
		ID:           id,
		CreatedAt:    time.Now(),
		ownerToken:   ownerToken,
		queue:        make([]Track, 0),
		cooldowns:    make(map[string]time.Time),
		participants: make(map[string]Participant),
	}
}

// OwnerToken 返回会话创建者的凭证
func (s *Session) OwnerToken() *ProviderToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownerToken
}

// SetOwnerToken 更新会话创建者的凭证（刷新后回写）
func (s *Session) SetOwnerToken(token *ProviderToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownerToken = token
}

// AddToQueue 将歌曲追加到队列末尾，并记录该URI的冷却时间。
// 播放列表镜像由管理器在锁外以尽力而为的方式执行，不属于这里。
func (s *Session) AddToQueue(track Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if track.AddedAt.IsZero() {
		track.AddedAt = time.Now()
	}
	s.queue = append(s.queue, track)
	s.cooldowns[track.URI] = track.AddedAt
}

// IsTrackOnCooldown 判断该URI是否处于会话冷却期内
func (s *Session) IsTrackOnCooldown(uri string, now time.Time, period time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	last, ok := s.cooldowns[uri]
	if !ok {
		return false
	}
	return now.Sub(last) < period
}

// CooldownRemaining 返回该URI的剩余冷却时长，不在冷却期时返回0
func (s *Session) CooldownRemaining(uri string, now time.Time, period time.Duration) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	last, ok := s.cooldowns[uri]
	if !ok {
		return 0
	}
	elapsed := now.Sub(last)
	if elapsed >= period {
		return 0
	}
	return period - elapsed
}

// RemoveFromQueue 移除队列中所有匹配该URI的条目
func (s *Session) RemoveFromQueue(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := s.queue[:0]
	for _, t := range s.queue {
		if t.URI != uri {
			filtered = append(filtered, t)
		}
	}
	s.queue = filtered
}

// Queue 返回队列的快照（保持点歌顺序）
func (s *Session) Queue() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]Track, len(s.queue))
	copy(snapshot, s.queue)
	return snapshot
}

// ClearQueue 清空队列
func (s *Session) ClearQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = s.queue[:0]
}

// HasQueued 判断该URI是否出现在会话点歌记录中
func (s *Session) HasQueued(uri string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cooldowns[uri]
	return ok
}

// AddParticipant 注册参与者。
// 已存在的ID直接返回现有信息（幂等），空ID会分配新的参与者。
func (s *Session) AddParticipant(id string) Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if p, ok := s.participants[id]; ok {
			return p
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	p := Participant{
		ID:       id,
		Name:     fmt.Sprintf("Guest %d", len(s.participants)+1),
		JoinedAt: time.Now(),
	}
	s.participants[id] = p
	return p
}

// RecordParticipantTrack 累计参与者的点歌数
func (s *Session) RecordParticipantTrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.participants[id]; ok {
		p.TracksAdded++
		s.participants[id] = p
	}
}

// Participants 返回参与者列表快照
func (s *Session) Participants() []Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]Participant, 0, len(s.participants))
	for _, p := range s.participants {
		list = append(list, p)
	}
	return list
}

// ParticipantCount 返回参与者数量
func (s *Session) ParticipantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants)
}

// Expired 判断会话是否已超过过期时间
func (s *Session) Expired(now time.Time, expiration time.Duration) bool {
	return now.Sub(s.CreatedAt) > expiration
}

// SessionInfo 会话的对外展示信息
type SessionInfo struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"createdAt"`
	PlaylistID       string    `json:"playlistId,omitempty"`
	PlaylistName     string    `json:"playlistName,omitempty"`
	QueueLength      int       `json:"queueLength"`
	ParticipantCount int       `json:"participantCount"`
}

// Info 生成会话展示信息快照
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionInfo{
		ID:               s.ID,
		CreatedAt:        s.CreatedAt,
		PlaylistID:       s.PlaylistID,
		PlaylistName:     s.PlaylistName,
		QueueLength:      len(s.queue),
		ParticipantCount: len(s.participants),
	}
}
