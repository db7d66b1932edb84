package systemd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) send(state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true, nil
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func TestDisabledNotifierIsSilent(t *testing.T) {
	rec := &recorder{}
	n := New(false)
	n.send = rec.send
	ok, err := n.Ready()
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Empty(t, rec.get())

	var nilN *Notifier
	ok, _ = nilN.Stopping()
	assert.False(t, ok)
}

func TestNotifierStates(t *testing.T) {
	rec := &recorder{}
	n := New(true)
	n.send = rec.send
	_, _ = n.Ready()
	_, _ = n.Status("3 loops active")
	_, _ = n.Stopping()
	assert.Equal(t, []string{"READY=1", "STATUS=3 loops active", "STOPPING=1"}, rec.get())
}

func TestRunWatchdogHonorsHealth(t *testing.T) {
	rec := &recorder{}
	n := New(true)
	n.send = rec.send

	var mu sync.Mutex
	healthy := false
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.RunWatchdog(ctx, 5*time.Millisecond, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return healthy
		})
	}()

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.get())

	mu.Lock()
	healthy = true
	mu.Unlock()
	assert.Eventually(t, func() bool { return len(rec.get()) > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "WATCHDOG=1", rec.get()[0])

	cancel()
	<-done
}
