package upload

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRejectionBoard_AutoDismiss(t *testing.T) {
	var dismissed atomic.Int32
	board := NewRejectionBoard(20*time.Millisecond, func() { dismissed.Add(1) })
	defer board.Close()

	notice := board.Show("history.doc is too large (12.0MB). Maximum size is 10MB.", []string{"history.doc"})
	assert.Equal(t, notice.ShownAt.Add(20*time.Millisecond), notice.ExpiresAt)

	current := board.Current()
	require.NotNil(t, current)
	assert.Contains(t, current.Message, "12.0MB")

	assert.Eventually(t, func() bool { return board.Current() == nil }, time.Second, 2*time.Millisecond)
	assert.Equal(t, int32(1), dismissed.Load())
}

func TestRejectionBoard_NewerNoticeOwnsDismissal(t *testing.T) {
	board := NewRejectionBoard(40*time.Millisecond, nil)
	defer board.Close()

	board.Show("first", []string{"a.doc"})
	time.Sleep(25 * time.Millisecond)
	board.Show("second", []string{"b.doc"})
	time.Sleep(25 * time.Millisecond)

	current := board.Current()
	require.NotNil(t, current)
	assert.Equal(t, "second", current.Message)

	assert.Eventually(t, func() bool { return board.Current() == nil }, time.Second, 2*time.Millisecond)
}

func TestRejectionBoard_CloseDropsNotice(t *testing.T) {
	var dismissed atomic.Int32
	board := NewRejectionBoard(10*time.Millisecond, func() { dismissed.Add(1) })

	board.Show("gone", nil)
	board.Close()

	assert.Nil(t, board.Current())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), dismissed.Load())
}
