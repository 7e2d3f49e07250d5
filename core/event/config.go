package event

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"LazyDJ/logger"

	"github.com/fsnotify/fsnotify"
)

// PresetSong 活动预设歌曲（如婚礼的第一支舞）
type PresetSong struct {
	Label  string `json:"label"`
	Name   string `json:"name"`
	Artist string `json:"artist,omitempty"`
	URI    string `json:"uri"`
}

type presetFile struct {
	Songs []PresetSong `json:"songs"`
}

// PresetStore 预设歌曲配置，支持文件热更新。
// 活动现场改配置不需要重启服务。
type PresetStore struct {
	mu    sync.RWMutex
	path  string
	songs []PresetSong
}

// NewPresetStore 创建配置存储并立即加载一次
func NewPresetStore(path string) *PresetStore {
	s := &PresetStore{path: path}
	if err := s.load(); err != nil {
		logger.Warn("加载预设歌曲配置失败，使用空列表",
			logger.ErrorField(err),
			logger.String("path", path))
	}
	return s
}

// load 从文件加载配置，失败时保留上一次的内容
func (s *PresetStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var file presetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}

	s.mu.Lock()
	s.songs = file.Songs
	s.mu.Unlock()

	logger.Info("预设歌曲配置已加载",
		logger.String("path", s.path),
		logger.Int("count", len(file.Songs)))
	return nil
}

// Songs 返回预设歌曲快照
func (s *PresetStore) Songs() []PresetSong {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]PresetSong, len(s.songs))
	copy(snapshot, s.songs)
	return snapshot
}

// Find 按标签查找预设歌曲
func (s *PresetStore) Find(label string) (PresetSong, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, song := range s.songs {
		if song.Label == label {
			return song, true
		}
	}
	return PresetSong{}, false
}

// Watch 监听配置文件变化并自动重新加载，直到 ctx 取消。
// 监听目录而不是文件本身，编辑器保存时的重命名也能触发。
func (s *PresetStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.load(); err != nil {
					logger.Warn("重新加载预设歌曲配置失败",
						logger.ErrorField(err),
						logger.String("path", s.path))
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("配置文件监听出错", logger.ErrorField(err))
			}
		}
	}()
	return nil
}
