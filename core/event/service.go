package event

import (
	"context"
	"errors"
	"sync"
	"time"

	"LazyDJ/core/spotify"
	"LazyDJ/logger"
	"LazyDJ/model"
)

// ErrNoPreset 预设歌曲不存在
var ErrNoPreset = errors.New("预设歌曲不存在")

const (
	fadeOutDuration    = 4 * time.Second
	fadeInDuration     = 2 * time.Second
	presetFadeDuration = 500 * time.Millisecond
	defaultVolume      = 80
)

// Player 活动模式需要的播放控制能力，由 spotify.Client 实现
type Player interface {
	CurrentPlayback(ctx context.Context, token *model.ProviderToken) (*spotify.PlaybackState, error)
	SetVolume(ctx context.Context, token *model.ProviderToken, percent int) error
	StartPlayback(ctx context.Context, token *model.ProviderToken, uris []string) error
	StartPlaybackContext(ctx context.Context, token *model.ProviderToken, contextURI string) error
	PausePlayback(ctx context.Context, token *model.ProviderToken) error
	ResumePlayback(ctx context.Context, token *model.ProviderToken) error
	SetShuffle(ctx context.Context, token *model.ProviderToken, enabled bool) error
	SkipNext(ctx context.Context, token *model.ProviderToken) error
}

// Service 活动模式（婚礼/派对单人控台）。
// 提供淡出、淡入、预设歌曲一键播放等现场操控能力。
type Service struct {
	player  Player
	presets *PresetStore

	// 渐变时长，测试时可以调小
	fadeOutDur    time.Duration
	fadeInDur     time.Duration
	presetFadeDur time.Duration

	mu          sync.Mutex
	enabled     bool
	savedVolume int  // 淡出前的音量，淡入时恢复
	hasSaved    bool
	savedCtxURI string // 淡出前的播放上下文，恢复播放列表时使用
}

// NewService 创建活动模式服务
func NewService(player Player, presets *PresetStore, enabled bool) *Service {
	return &Service{
		player:        player,
		presets:       presets,
		enabled:       enabled,
		fadeOutDur:    fadeOutDuration,
		fadeInDur:     fadeInDuration,
		presetFadeDur: presetFadeDuration,
	}
}

// Enabled 活动模式是否开启
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Toggle 切换活动模式开关，返回切换后的状态
func (s *Service) Toggle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = !s.enabled
	return s.enabled
}

// Presets 返回预设歌曲列表
func (s *Service) Presets() []PresetSong {
	return s.presets.Songs()
}

// fadeVolume 把音量从 from 分10步渐变到 to
func (s *Service) fadeVolume(ctx context.Context, token *model.ProviderToken, from, to int, duration time.Duration) error {
	const steps = 10
	interval := duration / steps

	for i := 1; i <= steps; i++ {
		volume := from + (to-from)*i/steps
		if err := s.player.SetVolume(ctx, token, volume); err != nil {
			return err
		}
		if i < steps {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return nil
}

// currentVolume 读取当前音量和播放上下文，读不到时用默认音量
func (s *Service) currentVolume(ctx context.Context, token *model.ProviderToken) (int, string) {
	state, err := s.player.CurrentPlayback(ctx, token)
	if err != nil || state == nil {
		logger.Warn("读取播放状态失败，使用默认音量", logger.ErrorField(err))
		return defaultVolume, ""
	}
	if state.Volume <= 0 {
		return defaultVolume, state.ContextURI
	}
	return state.Volume, state.ContextURI
}

// FadeOut 淡出并暂停。
// 音量渐变到0后暂停播放，并把音量设回原值，下次播放直接是正常音量。
func (s *Service) FadeOut(ctx context.Context, token *model.ProviderToken) error {
	volume, ctxURI := s.currentVolume(ctx, token)

	s.mu.Lock()
	s.savedVolume = volume
	s.hasSaved = true
	if ctxURI != "" {
		s.savedCtxURI = ctxURI
	}
	s.mu.Unlock()

	if err := s.fadeVolume(ctx, token, volume, 0, s.fadeOutDur); err != nil {
		return err
	}
	if err := s.player.PausePlayback(ctx, token); err != nil {
		return err
	}
	return s.player.SetVolume(ctx, token, volume)
}

// FadeIn 恢复播放并淡入到淡出前的音量
func (s *Service) FadeIn(ctx context.Context, token *model.ProviderToken) error {
	s.mu.Lock()
	target := s.savedVolume
	if !s.hasSaved {
		target = defaultVolume
	}
	s.mu.Unlock()

	if err := s.player.SetVolume(ctx, token, 0); err != nil {
		return err
	}
	if err := s.player.ResumePlayback(ctx, token); err != nil {
		return err
	}
	return s.fadeVolume(ctx, token, 0, target, s.fadeInDur)
}

// PlayPreset 快速淡出当前播放，然后立即播放预设歌曲。
// 婚礼现场一键切到第一支舞就是这个操作。
func (s *Service) PlayPreset(ctx context.Context, token *model.ProviderToken, label string) (PresetSong, error) {
	song, ok := s.presets.Find(label)
	if !ok {
		return PresetSong{}, ErrNoPreset
	}

	volume, ctxURI := s.currentVolume(ctx, token)

	s.mu.Lock()
	s.savedVolume = volume
	s.hasSaved = true
	if ctxURI != "" {
		s.savedCtxURI = ctxURI
	}
	s.mu.Unlock()

	if err := s.fadeVolume(ctx, token, volume, 0, s.presetFadeDur); err != nil {
		return PresetSong{}, err
	}
	if err := s.player.StartPlayback(ctx, token, []string{song.URI}); err != nil {
		return PresetSong{}, err
	}
	if err := s.player.SetVolume(ctx, token, volume); err != nil {
		return PresetSong{}, err
	}

	logger.Info("已播放预设歌曲",
		logger.String("label", song.Label),
		logger.String("uri", song.URI))
	return song, nil
}

// ResumePlaylist 预设歌曲播完后回到之前的播放列表，并开启随机播放
func (s *Service) ResumePlaylist(ctx context.Context, token *model.ProviderToken) error {
	s.mu.Lock()
	ctxURI := s.savedCtxURI
	s.mu.Unlock()

	if ctxURI == "" {
		// 没有记录过上下文时直接读当前状态
		if state, err := s.player.CurrentPlayback(ctx, token); err == nil && state != nil {
			ctxURI = state.ContextURI
		}
	}

	if err := s.player.SetShuffle(ctx, token, true); err != nil {
		logger.Warn("开启随机播放失败", logger.ErrorField(err))
	}

	if ctxURI == "" {
		return s.player.ResumePlayback(ctx, token)
	}
	return s.player.StartPlaybackContext(ctx, token, ctxURI)
}

// Skip 跳到下一首
func (s *Service) Skip(ctx context.Context, token *model.ProviderToken) error {
	return s.player.SkipNext(ctx, token)
}
