package bot

import (
	"context"
	"sync"
	"time"
)

// StateStore - быстрое runtime-состояние ботов.
//
// Кулдаун, последняя сторона сделки и kill switch живут отдельно от
// БД: они переживают рестарт процесса (Redis), но их потеря не
// нарушает учет средств.
type StateStore interface {
	LastTradeTime(ctx context.Context, botID int) (time.Time, bool, error)
	SetLastTradeTime(ctx context.Context, botID int, t time.Time) error

	LastSide(ctx context.Context, botID int) (Signal, bool, error)
	SetLastSide(ctx context.Context, botID int, side Signal) error

	KillSwitch(ctx context.Context, botID int) (bool, error)
	SetKillSwitch(ctx context.Context, botID int, on bool) error
}

// MemoryStateStore - состояние в памяти процесса.
// Используется в тестах и при запуске без Redis.
type MemoryStateStore struct {
	mu         sync.RWMutex
	lastTrade  map[int]time.Time
	lastSide   map[int]Signal
	killSwitch map[int]bool
}

// NewMemoryStateStore создает пустое состояние в памяти
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		lastTrade:  make(map[int]time.Time),
		lastSide:   make(map[int]Signal),
		killSwitch: make(map[int]bool),
	}
}

func (s *MemoryStateStore) LastTradeTime(_ context.Context, botID int) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lastTrade[botID]
	return t, ok, nil
}

func (s *MemoryStateStore) SetLastTradeTime(_ context.Context, botID int, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTrade[botID] = t
	return nil
}

func (s *MemoryStateStore) LastSide(_ context.Context, botID int) (Signal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	side, ok := s.lastSide[botID]
	return side, ok, nil
}

func (s *MemoryStateStore) SetLastSide(_ context.Context, botID int, side Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSide[botID] = side
	return nil
}

func (s *MemoryStateStore) KillSwitch(_ context.Context, botID int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.killSwitch[botID], nil
}

func (s *MemoryStateStore) SetKillSwitch(_ context.Context, botID int, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killSwitch[botID] = on
	return nil
}
