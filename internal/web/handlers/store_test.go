package handlers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolmap/internal/engine"
)

func TestRunStoreKeepsPreviousResultOnFailure(t *testing.T) {
	fail := false
	n := 0
	store := NewRunStore(func(ctx context.Context) (*engine.RunResult, error) {
		if fail {
			return nil, errors.New("registry unreachable")
		}
		n++
		return &engine.RunResult{RunID: string(rune('a' + n - 1))}, nil
	})

	_, err := store.Current()
	assert.ErrorIs(t, err, ErrNoRun)

	first, err := store.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", first.RunID)

	fail = true
	_, err = store.Refresh(context.Background())
	require.Error(t, err)

	current, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, "a", current.RunID)

	st := store.Status()
	assert.Equal(t, "a", st.RunID)
	assert.Equal(t, "registry unreachable", st.LastError)
	assert.False(t, st.Refreshing)
	assert.NotNil(t, st.LastAttempt)
}

func TestRunStoreRejectsConcurrentRefresh(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	store := NewRunStore(func(ctx context.Context) (*engine.RunResult, error) {
		close(started)
		<-release
		return &engine.RunResult{RunID: "slow"}, nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := store.Refresh(context.Background())
		assert.NoError(t, err)
	}()

	<-started
	_, err := store.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrRefreshInProgress)
	assert.True(t, store.Status().Refreshing)

	close(release)
	wg.Wait()

	current, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, "slow", current.RunID)
}

func TestRunStoreWithoutRunFunc(t *testing.T) {
	store := NewRunStore(nil)
	assert.False(t, store.CanRefresh())
	_, err := store.Refresh(context.Background())
	assert.Error(t, err)

	store.Set(&engine.RunResult{RunID: "fixed"})
	current, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, "fixed", current.RunID)
}
