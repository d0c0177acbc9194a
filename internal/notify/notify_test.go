package notify

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/heydoc-scheduler/pkg/logging"
)

func TestFeedDrain(t *testing.T) {
	feed := NewFeed(10)
	feed.Success(MsgBooked)
	feed.Error(MsgCancelFailed)

	got := feed.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, LevelSuccess, got[0].Level)
	assert.Equal(t, MsgBooked, got[0].Message)
	assert.Equal(t, LevelError, got[1].Level)
	assert.False(t, got[0].At.IsZero())

	assert.Empty(t, feed.Drain())
}

func TestFeedDropsOldest(t *testing.T) {
	feed := NewFeed(2)
	feed.Success("one")
	feed.Success("two")
	feed.Success("three")

	got := feed.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, "two", got[0].Message)
	assert.Equal(t, "three", got[1].Message)
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewFeed(5), NewFeed(5)
	m := Multi{a, nil, b}
	m.Error("boom")

	assert.Len(t, a.Drain(), 1)
	assert.Len(t, b.Drain(), 1)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(logging.NewWithWriter("info", &buf))
	n.Success(MsgCancelled)
	n.Error(MsgCancelFailed)

	out := buf.String()
	assert.True(t, strings.Contains(out, MsgCancelled))
	assert.True(t, strings.Contains(out, `"type":"error"`))
}

func TestCancelTooLateNamesWindow(t *testing.T) {
	assert.Equal(t, "Appointments can only be cancelled more than 24 hours in advance", CancelTooLate(24*time.Hour))
	assert.Equal(t, "Appointments can only be cancelled more than 1 hour in advance", CancelTooLate(time.Hour))
	assert.Equal(t, "Appointments can only be cancelled more than 1h30m0s in advance", CancelTooLate(90*time.Minute))
}
