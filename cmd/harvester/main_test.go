package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go-portal-harvester/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunScheduled_WaitsForStartupRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var finished atomic.Bool

	job := func() {
		select {
		case <-started:
			return
		default:
			close(started)
		}
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
	}

	done := make(chan error, 1)
	go func() { done <- runScheduled(ctx, "@every 1h", job, logger.NewNop()) }()

	<-started
	cancel()
	require.NoError(t, <-done)
	assert.True(t, finished.Load(), "returned before the startup run finished")
}

func TestRunScheduled_BadSchedule(t *testing.T) {
	called := false
	err := runScheduled(context.Background(), "every now and then", func() { called = true }, logger.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every now and then")
	assert.False(t, called)
}
