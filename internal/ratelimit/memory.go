package ratelimit

import (
	"context"
	"sync"
	"time"
)

// windowEntry はクライアントごとの固定ウィンドウカウンタ。
type windowEntry struct {
	count       int
	windowStart time.Time
}

// MemoryStore はインメモリの固定ウィンドウカウンタによるLimiter実装。
// ウィンドウ開始からwindow経過でカウンタがリセットされる。
// Redisが構成されていない場合のデフォルトストア。
type MemoryStore struct {
	window time.Duration
	max    int

	mu      sync.Mutex
	entries map[string]*windowEntry

	stopCh chan struct{}

	// now はテストで時刻を差し替えるためのフック。
	now func() time.Time
}

// NewMemoryStore は新しいMemoryStoreを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewMemoryStore(window time.Duration, max int) *MemoryStore {
	s := &MemoryStore{
		window:  window,
		max:     max,
		entries: make(map[string]*windowEntry),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}

	go s.cleanupLoop()

	return s
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (s *MemoryStore) Stop() {
	close(s.stopCh)
}

// Check はクライアントのウィンドウ内リクエスト数を検査し、カウントアップする。
// 上限到達後のリクエストはカウントせず拒否する。
func (s *MemoryStore) Check(_ context.Context, clientID string) (Result, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[clientID]
	if !exists || now.Sub(e.windowStart) >= s.window {
		// 新しいウィンドウを開始
		s.entries[clientID] = &windowEntry{count: 1, windowStart: now}
		return Result{Allowed: true, Remaining: s.max - 1}, nil
	}

	if e.count >= s.max {
		return Result{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: s.window - now.Sub(e.windowStart),
		}, nil
	}

	e.count++
	return Result{Allowed: true, Remaining: s.max - e.count}, nil
}

// EntryCount は現在管理されているカウンタのエントリ数を返す。
// テストおよびメトリクス用。
func (s *MemoryStore) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup はウィンドウ開始からwindowを超過したエントリを削除する。
func (s *MemoryStore) cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for clientID, e := range s.entries {
		if now.Sub(e.windowStart) >= s.window {
			delete(s.entries, clientID)
		}
	}
}

// compile-time interface check
var _ Limiter = (*MemoryStore)(nil)
