package groutine

import (
	"context"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo_NameAndLabel(t *testing.T) {
	var name, label string
	var ok bool

	done := Go(context.Background(), "ble-scan", func(ctx context.Context) {
		name = Name(ctx)
		label, ok = pprof.Label(ctx, LabelName)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not finish")
	}
	assert.Equal(t, "ble-scan", name)
	require.True(t, ok)
	assert.Equal(t, "ble-scan", label)
}

func TestGo_InheritsCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})

	done := Go(parent, "waiter", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine ignored parent cancellation")
	}
}

func TestName_Outside(t *testing.T) {
	assert.Empty(t, Name(context.Background()))
	assert.Empty(t, Name(nil))
}
