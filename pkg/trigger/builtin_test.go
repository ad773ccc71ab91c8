package trigger

import (
	"sync/atomic"
	"testing"
	"time"
)

type fakeLock struct {
	acquired atomic.Int32
	released atomic.Int32
	fail     bool
}

func (f *fakeLock) Acquire() bool {
	if f.fail {
		return false
	}
	f.acquired.Add(1)
	return true
}

func (f *fakeLock) Release() { f.released.Add(1) }

func TestKeepAwakeTrigger(t *testing.T) {
	lock := &fakeLock{}
	k := NewKeepAwakeTrigger([]string{"com.reader"}, lock)

	r := NewRegistry(nil)
	r.Register(k)
	r.Recompute("com.reader")
	r.Recompute("com.reader")
	if !k.Held() || lock.acquired.Load() != 1 {
		t.Errorf("expected one acquisition, got %d", lock.acquired.Load())
	}

	r.Recompute("com.other")
	if k.Held() || lock.released.Load() != 1 {
		t.Errorf("expected one release, got %d", lock.released.Load())
	}

	// 未持有时不应释放
	k.Deactivate()
	if lock.released.Load() != 1 {
		t.Error("Deactivate without a held lock should not release")
	}
}

func TestKeepAwakeAcquireFailure(t *testing.T) {
	lock := &fakeLock{fail: true}
	k := NewKeepAwakeTrigger([]string{"com.reader"}, lock)
	k.Activate()
	if k.Held() {
		t.Error("failed acquisition should leave the lock not held")
	}
	k.Deactivate()
	if lock.released.Load() != 0 {
		t.Error("nothing to release after failed acquisition")
	}
}

func TestAutoTurnTrigger(t *testing.T) {
	actions := &fakeActions{}
	a := NewAutoTurnTrigger(AutoTurnConfig{
		Apps:     []string{"com.reader"},
		Interval: 10 * time.Millisecond,
		Forward:  true,
	}, actions)

	a.Activate()
	a.Activate() // idempotent
	deadline := time.Now().Add(2 * time.Second)
	for a.Turns() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	a.Deactivate()
	a.Deactivate()
	a.Wait()

	if a.Turns() < 3 {
		t.Fatalf("expected at least 3 turns, got %d", a.Turns())
	}
	turns := a.Turns()
	time.Sleep(30 * time.Millisecond)
	if a.Turns() != turns {
		t.Error("turning continued after Deactivate")
	}
	for _, c := range actions.recorded() {
		if c != "turn:next" {
			t.Errorf("unexpected action %q", c)
		}
	}
}

func TestAutoTurnVertical(t *testing.T) {
	actions := &fakeActions{}
	a := NewAutoTurnTrigger(AutoTurnConfig{Interval: 5 * time.Millisecond, Vertical: true}, actions)
	a.Activate()
	for a.Turns() < 1 {
		time.Sleep(2 * time.Millisecond)
	}
	a.Deactivate()
	a.Wait()
	if got := actions.recorded(); len(got) == 0 || got[0] != "vturn:prev" {
		t.Errorf("expected vertical backward turns, got %v", got)
	}
}

func TestAutoTurnDefaultInterval(t *testing.T) {
	a := NewAutoTurnTrigger(AutoTurnConfig{}, &fakeActions{})
	if a.cfg.Interval != 30*time.Second {
		t.Errorf("default interval = %v", a.cfg.Interval)
	}
	a.Wait() // never activated
}
