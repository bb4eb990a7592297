package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockStore) Set(ctx context.Context, key string, value []byte) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *mockStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func TestFailoverStore(t *testing.T) {
	primary := new(mockStore)
	fallback := new(mockStore)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverStore(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Get", ctx, "offers").Return([]byte("p"), nil).Once()

		got, err := repo.Get(ctx, "offers")
		assert.NoError(t, err)
		assert.Equal(t, []byte("p"), got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("Get", ctx, "statuses").Return(nil, errors.New("fail")).Once()
		fallback.On("Get", ctx, "statuses").Return([]byte("f"), nil).Once()

		got, err := repo.Get(ctx, "statuses")
		assert.NoError(t, err)
		assert.Equal(t, []byte("f"), got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("DownSkipsPrimary", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now()
		fallback.On("Set", ctx, "syncQueue", []byte("q")).Return(nil).Once()

		err := repo.Set(ctx, "syncQueue", []byte("q"))
		assert.NoError(t, err)
		fallback.AssertExpectations(t)
		primary.AssertNotCalled(t, "Set", ctx, "syncQueue", []byte("q"))
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)
		primary.On("Get", ctx, "queue").Return([]byte("recovered"), nil).Once()

		got, err := repo.Get(ctx, "queue")
		assert.NoError(t, err)
		assert.Equal(t, []byte("recovered"), got)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)
		primary.On("Get", ctx, "queue2").Return(nil, errors.New("still fail")).Once()
		fallback.On("Get", ctx, "queue2").Return(nil, nil).Once()

		got, err := repo.Get(ctx, "queue2")
		assert.NoError(t, err)
		assert.Nil(t, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("Set", ctx, "offers", []byte("v")).Return(errors.New("fail")).Once()
		fallback.On("Set", ctx, "offers", []byte("v")).Return(nil).Once()

		err := repo.Set(ctx, "offers", []byte("v"))
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("DeleteSuccess", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("Delete", ctx, "offers").Return(nil).Once()

		err := repo.Delete(ctx, "offers")
		assert.NoError(t, err)
		primary.AssertExpectations(t)
	})

	t.Run("DeleteFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("Delete", ctx, "timestamps").Return(errors.New("fail")).Once()
		fallback.On("Delete", ctx, "timestamps").Return(nil).Once()

		err := repo.Delete(ctx, "timestamps")
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		fallback.AssertExpectations(t)
	})
}
