package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/models"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/utils"
)

func textMsg(id, content string, ts int64) models.BufferedMessage {
	return models.BufferedMessage{ID: id, Content: content, ContentType: models.ContentTypeText, Timestamp: ts}
}

func TestAddMessagePreservesArrivalOrder(t *testing.T) {
	svc := NewMessageBufferService(newFakeBufferRepo())
	ctx := context.Background()

	require.NoError(t, svc.AddMessage(ctx, "u1", "c1", 1, textMsg("m1", "Hello", 1000)))
	require.NoError(t, svc.AddMessage(ctx, "u1", "c1", 1, textMsg("m2", "world", 1050)))

	msgs, err := svc.GetMessages(ctx, "u1", "c1", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
}

func TestBufferKeysAreIsolated(t *testing.T) {
	svc := NewMessageBufferService(newFakeBufferRepo())
	ctx := context.Background()

	require.NoError(t, svc.AddMessage(ctx, "u1", "c1", 1, textMsg("m1", "only here", 1000)))

	for _, k := range []struct {
		user, convo string
		step        int
	}{
		{"u1", "c1", 2},
		{"u1", "c2", 1},
		{"u2", "c1", 1},
	} {
		msgs, err := svc.GetMessages(ctx, k.user, k.convo, k.step)
		require.NoError(t, err)
		assert.Empty(t, msgs, "key (%s,%s,%d) must not see the fragment", k.user, k.convo, k.step)
	}
}

func TestGetMessagesMissingBufferIsEmptyNotError(t *testing.T) {
	svc := NewMessageBufferService(newFakeBufferRepo())

	msgs, err := svc.GetMessages(context.Background(), "u1", "c1", 1)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestClearBufferIsIdempotent(t *testing.T) {
	svc := NewMessageBufferService(newFakeBufferRepo())
	ctx := context.Background()

	// clearing a buffer that never existed is a no-op
	require.NoError(t, svc.ClearBuffer(ctx, "u1", "c1", 1))

	require.NoError(t, svc.AddMessage(ctx, "u1", "c1", 1, textMsg("m1", "hi", 1000)))
	require.NoError(t, svc.ClearBuffer(ctx, "u1", "c1", 1))

	has, err := svc.HasBuffer(ctx, "u1", "c1", 1)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, svc.ClearBuffer(ctx, "u1", "c1", 1))
}

func TestAddMessageValidation(t *testing.T) {
	svc := NewMessageBufferService(newFakeBufferRepo())
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
	}{
		{"missing user", func() error {
			return svc.AddMessage(ctx, "", "c1", 1, textMsg("m1", "hi", 0))
		}},
		{"missing content", func() error {
			return svc.AddMessage(ctx, "u1", "c1", 1, textMsg("m1", "", 0))
		}},
		{"bad content type", func() error {
			return svc.AddMessage(ctx, "u1", "c1", 1, models.BufferedMessage{Content: "hi", ContentType: "carrier-pigeon"})
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, utils.IsCode(tc.run(), utils.CodeInvalidArgument))
		})
	}
}

func TestAddMessageAssignsDefaults(t *testing.T) {
	svc := NewMessageBufferService(newFakeBufferRepo())
	ctx := context.Background()

	require.NoError(t, svc.AddMessage(ctx, "u1", "c1", 1, models.BufferedMessage{
		Content:     "hi",
		ContentType: models.ContentTypeText,
	}))

	msgs, err := svc.GetMessages(ctx, "u1", "c1", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.NotEmpty(t, msgs[0].ID)
	assert.NotZero(t, msgs[0].Timestamp)
}

func TestConcurrentAddsToSameKeyLoseNothing(t *testing.T) {
	svc := NewMessageBufferService(newFakeBufferRepo())
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = svc.AddMessage(ctx, "u1", "c1", 1, textMsg(fmt.Sprintf("m%d", i), "fragment", int64(i)))
		}(i)
	}
	wg.Wait()

	msgs, err := svc.GetMessages(ctx, "u1", "c1", 1)
	require.NoError(t, err)
	assert.Len(t, msgs, n)
}

func TestDrainMessagesRemovesBuffer(t *testing.T) {
	svc := NewMessageBufferService(newFakeBufferRepo())
	ctx := context.Background()

	require.NoError(t, svc.AddMessage(ctx, "u1", "c1", 1, textMsg("m1", "Hello", 1000)))
	require.NoError(t, svc.AddMessage(ctx, "u1", "c1", 1, textMsg("m2", "world", 1050)))

	msgs, err := svc.DrainMessages(ctx, "u1", "c1", 1, "flush-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)

	has, err := svc.HasBuffer(ctx, "u1", "c1", 1)
	require.NoError(t, err)
	assert.False(t, has)

	// retrying the drain is safe
	msgs, err = svc.DrainMessages(ctx, "u1", "c1", 1, "flush-1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDrainMessagesRequiresFlushID(t *testing.T) {
	svc := NewMessageBufferService(newFakeBufferRepo())

	_, err := svc.DrainMessages(context.Background(), "u1", "c1", 1, "")
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
}
