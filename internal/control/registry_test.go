package control

import (
	"context"
	"testing"
	"time"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/reconnect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistrySession struct {
	closed       bool
	started      bool
	connectCalls int
	onLost       func()
}

func (f *fakeRegistrySession) Connect(ctx context.Context) error {
	f.connectCalls++
	return nil
}
func (f *fakeRegistrySession) StartReading() error { f.started = true; return nil }
func (f *fakeRegistrySession) StopReading() error  { f.started = false; return nil }
func (f *fakeRegistrySession) Close()              { f.closed = true }
func (f *fakeRegistrySession) OnLost(fn func())    { f.onLost = fn }

func TestRegistryPutGetRemove(t *testing.T) {
	reg := newRegistry(nil, nil, reconnect.New(nil))
	reader := &model.Reader{ID: 1, Nickname: "finish"}
	reg.put(reader)

	got, ok := reg.get(1)
	require.True(t, ok)
	require.Equal(t, "finish", got.Nickname)

	reg.remove(1)
	_, ok = reg.get(1)
	require.False(t, ok)
}

func TestRegistryConnectSuccessAttachesSession(t *testing.T) {
	fake := &fakeRegistrySession{}
	reg := newRegistry(nil, func(r *model.Reader) Session { return fake }, reconnect.New(nil))
	reader := &model.Reader{ID: 1, Nickname: "finish"}
	reg.put(reader)

	err := reg.connect(context.Background(), reader)
	require.NoError(t, err)

	require.NoError(t, reg.startReading(1))
	require.True(t, fake.started)

	require.NoError(t, reg.stopReading(1))
	require.False(t, fake.started)
}

func TestRegistryStartReadingNotConnected(t *testing.T) {
	reg := newRegistry(nil, nil, reconnect.New(nil))
	err := reg.startReading(99)
	require.Equal(t, errSessionNotConnected, err)
}

func TestRegistryDisconnectClosesSession(t *testing.T) {
	fake := &fakeRegistrySession{}
	reg := newRegistry(nil, func(r *model.Reader) Session { return fake }, reconnect.New(nil))
	reader := &model.Reader{ID: 1}
	reg.put(reader)
	require.NoError(t, reg.connect(context.Background(), reader))

	require.NoError(t, reg.disconnect(1))
	require.True(t, fake.closed)

	err := reg.stopReading(1)
	require.Equal(t, errSessionNotConnected, err)
}

func TestRegistryConnectionLossTriggersSupervisedReconnect(t *testing.T) {
	fake := &fakeRegistrySession{}
	reg := newRegistry(nil, func(r *model.Reader) Session { return fake }, reconnect.New(nil))
	reader := &model.Reader{ID: 1, Nickname: "finish", AutoConnect: true}
	reg.put(reader)

	require.NoError(t, reg.connect(context.Background(), reader))
	require.NotNil(t, fake.onLost)

	fake.connectCalls = 0
	fake.started = false
	fake.onLost()

	require.Eventually(t, func() bool { return fake.started }, time.Second, time.Millisecond)
	assert.Equal(t, 1, fake.connectCalls)
}

func TestRegistryExplicitDisconnectSuppressesReconnect(t *testing.T) {
	fake := &fakeRegistrySession{}
	reg := newRegistry(nil, func(r *model.Reader) Session { return fake }, reconnect.New(nil))
	reader := &model.Reader{ID: 1, Nickname: "finish", AutoConnect: true}
	reg.put(reader)
	require.NoError(t, reg.connect(context.Background(), reader))
	require.NotNil(t, fake.onLost)

	require.NoError(t, reg.disconnect(1))
	fake.connectCalls = 0
	fake.onLost()

	// The session was already removed from the registry by the
	// explicit disconnect, so the stale loss callback must not spawn
	// a reconnect attempt.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, fake.connectCalls)
}

func TestRegistryRemoveClosesAttachedSession(t *testing.T) {
	fake := &fakeRegistrySession{}
	reg := newRegistry(nil, func(r *model.Reader) Session { return fake }, reconnect.New(nil))
	reader := &model.Reader{ID: 1}
	reg.put(reader)
	require.NoError(t, reg.connect(context.Background(), reader))

	reg.remove(1)
	require.True(t, fake.closed)
}
