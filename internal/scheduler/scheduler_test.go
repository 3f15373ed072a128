package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

func TestAddReplacesByName(t *testing.T) {
	s := New(Config{}, logx.Nop())
	noop := func(context.Context) error { return nil }
	if err := s.Add("compliance", "0 6 * * *", time.Minute, noop); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("compliance", "@hourly", time.Minute, noop); err != nil {
		t.Fatalf("Add replace: %v", err)
	}
	entries := s.Entries()
	if len(entries) != 1 || entries[0].Spec != "@hourly" {
		t.Fatalf("entries = %+v, want one @hourly job", entries)
	}
	if !s.Remove("compliance") || s.Remove("compliance") {
		t.Fatal("Remove should report existence once")
	}
}

func TestAddRejectsBadSchedule(t *testing.T) {
	s := New(Config{}, logx.Nop())
	if err := s.Add("x", "61 * * * *", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected cron parse error")
	}
	if err := s.Add("", "@daily", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected name error")
	}
}

func TestExecSkipsOverlapAndRecovers(t *testing.T) {
	s := New(Config{}, logx.Nop())
	var calls atomic.Int32
	release := make(chan struct{})
	d := &jobDef{name: "slow", running: &atomic.Bool{}, run: func(context.Context) error {
		calls.Add(1)
		<-release
		return nil
	}}

	done := make(chan struct{})
	go func() {
		s.exec(d)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !d.running.Load() {
		if time.Now().After(deadline) {
			t.Fatal("job never started")
		}
		time.Sleep(time.Millisecond)
	}
	s.exec(d)
	close(release)
	<-done
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1 (overlapping tick skipped)", got)
	}

	p := &jobDef{name: "panicky", running: &atomic.Bool{}, run: func(context.Context) error { panic("boom") }}
	s.exec(p)
	if p.running.Load() {
		t.Fatal("running flag not cleared after panic")
	}
}

func TestExecAppliesTimeout(t *testing.T) {
	s := New(Config{}, logx.Nop())
	var gotErr atomic.Value
	d := &jobDef{name: "t", timeout: 10 * time.Millisecond, running: &atomic.Bool{}, run: func(ctx context.Context) error {
		<-ctx.Done()
		gotErr.Store(ctx.Err())
		return ctx.Err()
	}}
	s.exec(d)
	if err, _ := gotErr.Load().(error); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ctx err = %v, want deadline exceeded", err)
	}
}

func TestStartStopRunsIntervalJob(t *testing.T) {
	s := New(Config{}, logx.Nop())
	ran := make(chan struct{}, 1)
	if err := s.Add("tick", "1s", 0, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("interval job did not run")
	}
}
