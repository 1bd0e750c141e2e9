package reconnect

import (
	"context"
	"testing"
	"time"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoConnectAllSkipsReadersWithoutAutoConnect(t *testing.T) {
	readers := []*model.Reader{
		{Nickname: "r1", AutoConnect: false},
		{Nickname: "r2", AutoConnect: true},
	}
	orig := StartupPause
	StartupPause = time.Millisecond
	defer func() { StartupPause = orig }()

	var built []string
	factory := func(r *model.Reader) Session {
		built = append(built, r.Nickname)
		return &fakeSession{}
	}
	sup := New(nil)
	sup.wait = time.Millisecond

	var results []string
	done := make(chan struct{})
	go func() {
		AutoConnectAll(context.Background(), readers, factory, sup, func(r *model.Reader, connected bool) {
			results = append(results, r.Nickname)
			assert.True(t, connected)
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("AutoConnectAll did not return in time (startup pause override missing?)")
	}

	require.Len(t, built, 1)
	assert.Equal(t, "r2", built[0])
	assert.Equal(t, []string{"r2"}, results)
}

func TestAutoConnectAllHonorsCancellationDuringStartupPause(t *testing.T) {
	readers := []*model.Reader{{Nickname: "r1", AutoConnect: true}}
	factory := func(r *model.Reader) Session { return &fakeSession{} }
	sup := New(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	AutoConnectAll(ctx, readers, factory, sup, func(r *model.Reader, connected bool) { called = true })

	assert.False(t, called, "a cancelled context must abort before the startup pause elapses")
}
