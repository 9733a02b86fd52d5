package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSyncedWaitBlocksUntilPush(t *testing.T) {
	s := NewSynced[int](4)
	done := make(chan int, 1)
	go func() {
		v, ok := s.Wait()
		require.True(t, ok)
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	s.Push(42)

	select {
	case v := <-done:
		require.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after Push")
	}
}

func TestSyncedCloseWakesWaiters(t *testing.T) {
	s := NewSynced[int](4)
	done := make(chan bool, 1)
	go func() {
		_, ok := s.Wait()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after Close")
	}
	require.True(t, s.Closed())
}

func TestSyncedPushAfterCloseIsNoop(t *testing.T) {
	s := NewSynced[int](4)
	s.Close()
	s.Push(1)
	require.Zero(t, s.Len())
}
