package model

import "time"

// Track 表示一首待点播或已点播的歌曲。
// URI 是外部平台的唯一标识，同时作为冷却记录的键。
type Track struct {
	URI      string    `json:"uri"`
	Name     string    `json:"name"`
	Artists  string    `json:"artists"`
	AlbumArt string    `json:"albumArt,omitempty"`
	AddedAt  time.Time `json:"-"`
}

// ProviderToken 外部播放平台的访问凭证
type ProviderToken struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// NearExpiry 判断凭证是否即将过期（60秒内）
func (t *ProviderToken) NearExpiry(now time.Time) bool {
	return t.ExpiresAt.Sub(now) < time.Minute
}

// QueueView 队列视图：外部播放队列按本地点歌记录划分后的展示结构
type QueueView struct {
	CurrentTrack *Track  `json:"currentTrack"`
	UserQueue    []Track `json:"userQueue"`
	RadioQueue   []Track `json:"radioQueue"`
}

// SessionQueueView 会话队列视图，附带参与者信息
type SessionQueueView struct {
	QueueView
	Participants     []Participant `json:"participants"`
	ParticipantCount int           `json:"participantCount"`
}
