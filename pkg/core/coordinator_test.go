package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorRefresh(t *testing.T) {
	fail := false
	calls := 0
	coordinator := NewCoordinator("test", 0, func(ctx context.Context) (int, error) {
		calls++
		if fail {
			return 0, errors.New("boom")
		}
		return calls, nil
	})
	notified := 0
	remove := coordinator.AddListener(func() { notified++ })

	require.NoError(t, coordinator.Refresh(context.Background()))
	assert.True(t, coordinator.LastUpdateSuccess())
	assert.Equal(t, 1, coordinator.Data())
	assert.Equal(t, 1, notified)

	fail = true
	err := coordinator.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpdateFailed))
	assert.False(t, coordinator.LastUpdateSuccess())
	// Data is kept from the last success.
	assert.Equal(t, 1, coordinator.Data())
	assert.Equal(t, 2, notified)

	fail = false
	remove()
	require.NoError(t, coordinator.Refresh(context.Background()))
	assert.True(t, coordinator.LastUpdateSuccess())
	assert.Equal(t, 3, coordinator.Data())
	assert.Equal(t, 2, notified)
}

func TestCoordinatorKeepsUpdateFailedError(t *testing.T) {
	original := UpdateFailed(nil, "no cache")
	coordinator := NewCoordinator("test", 0, func(ctx context.Context) (int, error) {
		return 0, original
	})
	err := coordinator.Refresh(context.Background())
	assert.Same(t, original, err)
}

func TestCoordinatorFirstRefreshNotReady(t *testing.T) {
	coordinator := NewCoordinator("test", 0, func(ctx context.Context) (int, error) {
		return 0, errors.New("offline")
	})
	err := coordinator.FirstRefresh(context.Background())
	assert.True(t, errors.Is(err, ErrNotReady))
	assert.True(t, errors.Is(err, ErrUpdateFailed))
}

func TestCoordinatorSetData(t *testing.T) {
	coordinator := NewCoordinator[string]("push", 0, nil)
	assert.False(t, coordinator.LastUpdateSuccess())
	notified := false
	coordinator.AddListener(func() { notified = true })
	coordinator.SetData("hello")
	assert.True(t, notified)
	assert.True(t, coordinator.LastUpdateSuccess())
	assert.Equal(t, "hello", coordinator.Data())
}

func TestCoordinatorListenerOrder(t *testing.T) {
	coordinator := NewCoordinator[int]("push", 0, nil)
	order := []int{}
	for i := 0; i < 5; i++ {
		i := i
		coordinator.AddListener(func() { order = append(order, i) })
	}
	coordinator.SetData(1)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestCoordinatorPolling(t *testing.T) {
	refreshed := make(chan struct{}, 10)
	coordinator := NewCoordinator("poll", 5*time.Millisecond, func(ctx context.Context) (int, error) {
		refreshed <- struct{}{}
		return 1, nil
	})
	coordinator.Start(context.Background())
	defer coordinator.Stop()

	select {
	case <-refreshed:
	case <-time.After(time.Second):
		t.Fatal("coordinator did not poll")
	}
}

type testEntity struct {
	CoordinatorEntity[int]
}

func TestCoordinatorEntityAvailability(t *testing.T) {
	fail := true
	coordinator := NewCoordinator("test", 0, func(ctx context.Context) (int, error) {
		if fail {
			return 0, errors.New("boom")
		}
		return 1, nil
	})
	entity := &testEntity{NewCoordinatorEntity(coordinator, EntityDescription{UniqueId: "id", Name: "Test"})}
	changes := 0
	entity.SetOnChange(func() { changes++ })

	_ = coordinator.Refresh(context.Background())
	assert.False(t, entity.Available())
	fail = false
	_ = coordinator.Refresh(context.Background())
	assert.True(t, entity.Available())
	assert.Equal(t, 2, changes)

	entity.SetOnChange(nil)
	_ = coordinator.Refresh(context.Background())
	assert.Equal(t, 2, changes)
}
