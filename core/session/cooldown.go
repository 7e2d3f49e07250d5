package session

import (
	"sync"
	"time"
)

// CooldownRegistry 全局点歌冷却登记表。
// 记录每首歌最近一次被点的时间，冷却期内的重复点歌会被拒绝。
type CooldownRegistry struct {
	mu      sync.RWMutex
	period  time.Duration
	entries map[string]time.Time
}

// NewCooldownRegistry 创建冷却登记表
func NewCooldownRegistry(period time.Duration) *CooldownRegistry {
	return &CooldownRegistry{
		period:  period,
		entries: make(map[string]time.Time),
	}
}

// Period 返回冷却时长
func (r *CooldownRegistry) Period() time.Duration {
	return r.period
}

// Record 记录曲目刚被点播
func (r *CooldownRegistry) Record(trackURI string) {
	r.RecordAt(trackURI, time.Now())
}

// RecordAt 以指定时间记录曲目被点播（测试用）
func (r *CooldownRegistry) RecordAt(trackURI string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[trackURI] = at
}

// Check 检查曲目是否在冷却期内，是则返回剩余冷却时长
func (r *CooldownRegistry) Check(trackURI string) (bool, time.Duration) {
	return r.CheckAt(trackURI, time.Now())
}

// CheckAt 以指定时间检查冷却状态（测试用）
func (r *CooldownRegistry) CheckAt(trackURI string, now time.Time) (bool, time.Duration) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	last, ok := r.entries[trackURI]
	if !ok {
		return false, 0
	}
	elapsed := now.Sub(last)
	if elapsed >= r.period {
		return false, 0
	}
	return true, r.period - elapsed
}

// Has 检查曲目是否有点播记录（不论冷却期是否已过）
func (r *CooldownRegistry) Has(trackURI string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[trackURI]
	return ok
}

// Sweep 清理已过冷却期的记录，返回清理数量
func (r *CooldownRegistry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for uri, last := range r.entries {
		if now.Sub(last) >= r.period {
			delete(r.entries, uri)
			removed++
		}
	}
	return removed
}

// Len 返回当前记录数
func (r *CooldownRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
