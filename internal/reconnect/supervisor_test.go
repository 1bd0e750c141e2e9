package reconnect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	failConnectTimes int
	connectCalls     int
	startReadingErr  error
	startCalls       int
}

func (f *fakeSession) Connect(ctx context.Context) error {
	f.connectCalls++
	if f.connectCalls <= f.failConnectTimes {
		return errors.New("dial failed")
	}
	return nil
}

func (f *fakeSession) StartReading() error {
	f.startCalls++
	return f.startReadingErr
}

type fakeNotifier struct {
	notified []string
}

func (f *fakeNotifier) NotifyReconnectExhausted(readerName string) {
	f.notified = append(f.notified, readerName)
}

func TestRunSucceedsWithoutAutoConnect(t *testing.T) {
	sup := New(nil)
	session := &fakeSession{}

	ok := sup.Run(context.Background(), "reader-1", session, false)

	assert.True(t, ok)
	assert.Equal(t, 1, session.connectCalls)
	assert.Equal(t, 0, session.startCalls, "start_reading is skipped when auto_connect is false")
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	sup := New(nil)
	sup.wait = time.Millisecond
	session := &fakeSession{failConnectTimes: 3}

	ok := sup.Run(context.Background(), "reader-1", session, true)

	require.True(t, ok)
	assert.Equal(t, 4, session.connectCalls)
	assert.Equal(t, 1, session.startCalls)
}

func TestRunExhaustsBudgetAndNotifiesOnce(t *testing.T) {
	notifier := &fakeNotifier{}
	sup := New(notifier)
	sup.wait = time.Millisecond
	session := &fakeSession{failConnectTimes: MaxAttempts + 10}

	ok := sup.Run(context.Background(), "reader-1", session, true)

	assert.False(t, ok)
	assert.Equal(t, MaxAttempts, session.connectCalls)
	assert.Equal(t, 0, session.startCalls)
	require.Len(t, notifier.notified, 1)
	assert.Equal(t, "reader-1", notifier.notified[0])
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	notifier := &fakeNotifier{}
	sup := New(notifier)
	session := &fakeSession{failConnectTimes: MaxAttempts}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := sup.Run(ctx, "reader-1", session, true)

	assert.False(t, ok)
	assert.Equal(t, 0, session.connectCalls)
	assert.Empty(t, notifier.notified, "a cancelled run is not a budget exhaustion")
}
