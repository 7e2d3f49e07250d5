package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestSession() *Session {
	return NewSession("abc12345", &ProviderToken{
		AccessToken:  "token",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	})
}

func TestSessionQueueKeepsOrder(t *testing.T) {
	s := newTestSession()
	s.AddToQueue(Track{URI: "spotify:track:a"})
	s.AddToQueue(Track{URI: "spotify:track:b"})
	s.AddToQueue(Track{URI: "spotify:track:c"})

	queue := s.Queue()
	assert.Len(t, queue, 3)
	assert.Equal(t, "spotify:track:a", queue[0].URI)
	assert.Equal(t, "spotify:track:c", queue[2].URI)

	s.RemoveFromQueue("spotify:track:b")
	queue = s.Queue()
	assert.Len(t, queue, 2)
	assert.Equal(t, "spotify:track:a", queue[0].URI)
	assert.Equal(t, "spotify:track:c", queue[1].URI)
}

func TestSessionCooldownSurvivesQueueRemoval(t *testing.T) {
	s := newTestSession()
	now := time.Now()
	s.AddToQueue(Track{URI: "spotify:track:a", AddedAt: now})

	// 歌播完被移出队列后冷却记录仍然有效
	s.RemoveFromQueue("spotify:track:a")
	assert.True(t, s.IsTrackOnCooldown("spotify:track:a", now.Add(time.Minute), 20*time.Minute))
	assert.False(t, s.IsTrackOnCooldown("spotify:track:a", now.Add(21*time.Minute), 20*time.Minute))
}

func TestSessionCooldownRemaining(t *testing.T) {
	s := newTestSession()
	now := time.Now()
	s.AddToQueue(Track{URI: "spotify:track:a", AddedAt: now})

	assert.Equal(t, 15*time.Minute, s.CooldownRemaining("spotify:track:a", now.Add(5*time.Minute), 20*time.Minute))
	assert.Zero(t, s.CooldownRemaining("spotify:track:a", now.Add(20*time.Minute), 20*time.Minute))
	assert.Zero(t, s.CooldownRemaining("spotify:track:x", now, 20*time.Minute))
}

func TestAddParticipantIdempotent(t *testing.T) {
	s := newTestSession()

	p1 := s.AddParticipant("")
	assert.NotEmpty(t, p1.ID)
	assert.Equal(t, "Guest 1", p1.Name)

	// 带已有ID重复加入返回原有参与者
	p2 := s.AddParticipant(p1.ID)
	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, 1, s.ParticipantCount())

	p3 := s.AddParticipant("")
	assert.Equal(t, "Guest 2", p3.Name)
	assert.Equal(t, 2, s.ParticipantCount())
}

func TestRecordParticipantTrack(t *testing.T) {
	s := newTestSession()
	p := s.AddParticipant("")

	s.RecordParticipantTrack(p.ID)
	s.RecordParticipantTrack(p.ID)
	s.RecordParticipantTrack("unknown") // 未知ID静默忽略

	for _, got := range s.Participants() {
		if got.ID == p.ID {
			assert.Equal(t, 2, got.TracksAdded)
		}
	}
}

func TestSessionExpired(t *testing.T) {
	s := newTestSession()
	expiration := 24 * time.Hour

	assert.False(t, s.Expired(s.CreatedAt.Add(expiration-time.Second), expiration))
	assert.True(t, s.Expired(s.CreatedAt.Add(expiration+time.Second), expiration))
}

func TestProviderTokenNearExpiry(t *testing.T) {
	token := &ProviderToken{ExpiresAt: time.Now().Add(time.Hour)}
	assert.False(t, token.NearExpiry(time.Now()))
	assert.True(t, token.NearExpiry(token.ExpiresAt.Add(-30*time.Second)))
	assert.True(t, token.NearExpiry(token.ExpiresAt.Add(time.Second)))
}
