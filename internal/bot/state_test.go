package bot

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStateStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()

	// Пустое состояние
	if _, ok, _ := store.LastTradeTime(ctx, 1); ok {
		t.Error("expected no last trade time for fresh store")
	}
	if _, ok, _ := store.LastSide(ctx, 1); ok {
		t.Error("expected no last side for fresh store")
	}
	if killed, _ := store.KillSwitch(ctx, 1); killed {
		t.Error("kill switch must default to off")
	}

	// Запись и чтение
	now := time.Now().UTC().Truncate(time.Second)
	if err := store.SetLastTradeTime(ctx, 1, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok, _ := store.LastTradeTime(ctx, 1)
	if !ok || !got.Equal(now) {
		t.Errorf("last trade time = %v, want %v", got, now)
	}

	if err := store.SetLastSide(ctx, 1, SignalBuy); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	side, ok, _ := store.LastSide(ctx, 1)
	if !ok || side != SignalBuy {
		t.Errorf("last side = %s, want buy", side)
	}

	if err := store.SetKillSwitch(ctx, 1, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if killed, _ := store.KillSwitch(ctx, 1); !killed {
		t.Error("kill switch must be on after SetKillSwitch(true)")
	}

	// Изоляция по ботам
	if killed, _ := store.KillSwitch(ctx, 2); killed {
		t.Error("kill switch of another bot must stay off")
	}
}
