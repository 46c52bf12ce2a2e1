package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: 15 * time.Minute, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2026, 2, 10, 12, 7, 13, 0, time.UTC)
	want := time.Date(2026, 2, 10, 12, 15, 0, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(want) {
		t.Fatalf("nextTick = %v, 期望 %v", got, want)
	}

	// Exactly on a boundary advances to the next one.
	boundary := time.Date(2026, 2, 10, 12, 15, 0, 0, time.UTC)
	want = time.Date(2026, 2, 10, 12, 30, 0, 0, time.UTC)
	if got := s.nextTick(boundary); !got.Equal(want) {
		t.Fatalf("边界上的 nextTick = %v, 期望 %v", got, want)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: 10 * time.Minute}, zerolog.Nop())

	now := time.Date(2026, 2, 10, 12, 7, 13, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(now.Add(10*time.Minute)) {
		t.Fatalf("未对齐模式应从当前时间起算, 实际 %v", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, func(ctx context.Context, tick time.Time) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("取消后应返回 context.Canceled, 实际 %v", err)
	}
}

func TestRunContinuesAfterTickError(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := 0
	err := s.Run(ctx, func(ctx context.Context, tick time.Time) error {
		ticks++
		if ticks >= 2 {
			cancel()
		}
		return errors.New("tick failed")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled, 实际 %v", err)
	}
	if ticks < 2 {
		t.Fatalf("失败的 tick 不应中止循环, 实际执行 %d 次", ticks)
	}
}
