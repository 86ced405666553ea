package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/metadata"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/utils"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newMetaFixture(t *testing.T) (*fakeConvoRepo, ConversationMetadataService) {
	t.Helper()
	repo := newFakeConvoRepo()
	return repo, NewConversationMetadataService(repo, nil, quietLogger())
}

func TestUpdateMetadataCommitsAndBumpsVersionByOne(t *testing.T) {
	repo, svc := newMetaFixture(t)
	repo.seed("c1", []byte(`{}`), 0)

	ok, err := svc.UpdateMetadata(context.Background(), "c1", map[string]any{
		"interviewStarted": true,
		"identifiedBy":     metadata.IdentifiedByPinCode,
		"pinCode":          "4711",
	})
	require.NoError(t, err)
	assert.True(t, ok)

	raw, version, err := repo.GetMetadata(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	md, err := metadata.Parse(raw)
	require.NoError(t, err)
	assert.True(t, md.InterviewStarted)
	assert.Equal(t, metadata.IdentifiedByPinCode, md.IdentifiedBy)
	assert.Equal(t, "4711", md.PinCode)
}

func TestUpdateMetadataMissingConversationReturnsFalse(t *testing.T) {
	_, svc := newMetaFixture(t)

	ok, err := svc.UpdateMetadata(context.Background(), "nope", map[string]any{"awaitingPin": true})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateMetadataFailsClosedOnCorruptState(t *testing.T) {
	repo, svc := newMetaFixture(t)
	repo.seed("c1", []byte(`{"identifiedBy":"bogus_value"}`), 3)

	ok, err := svc.UpdateMetadata(context.Background(), "c1", map[string]any{"awaitingPin": true})
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeInternal))

	// nothing was written
	_, version, err := repo.GetMetadata(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)
}

func TestUpdateMetadataRejectsInvalidPatch(t *testing.T) {
	repo, svc := newMetaFixture(t)
	repo.seed("c1", []byte(`{}`), 0)

	tests := []struct {
		name  string
		patch map[string]any
	}{
		{"bad enum value", map[string]any{"identifiedBy": "carrier_pigeon"}},
		{"unknown field", map[string]any{"favouriteColor": "green"}},
		{"bad timestamp", map[string]any{"completedAt": "yesterday", "interviewCompleted": true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := svc.UpdateMetadata(context.Background(), "c1", tc.patch)
			assert.False(t, ok)
			assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
		})
	}

	_, version, err := repo.GetMetadata(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
}

func TestUpdateMetadataRetriesThroughConflicts(t *testing.T) {
	repo, svc := newMetaFixture(t)
	repo.seed("c1", []byte(`{}`), 0)
	repo.casRejects = 2 // two racing commits land first

	ok, err := svc.UpdateMetadata(context.Background(), "c1", map[string]any{"interviewStarted": true})
	require.NoError(t, err)
	assert.True(t, ok)

	// one bump per logical update: two from the simulated racer, one ours
	_, version, err := repo.GetMetadata(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)
}

func TestUpdateMetadataExhaustedRetriesReturnsFalse(t *testing.T) {
	repo, svc := newMetaFixture(t)
	repo.seed("c1", []byte(`{}`), 0)
	repo.casRejects = 100

	ok, err := svc.UpdateMetadata(context.Background(), "c1", map[string]any{"interviewStarted": true}, WithMaxRetries(3))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentUpdatersLoseNothing(t *testing.T) {
	repo, svc := newMetaFixture(t)
	repo.seed("c1", []byte(`{}`), 0)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	results := make([]bool, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			qa := metadata.QuestionAnswer{Question: fmt.Sprintf("Q%d", i), Answer: fmt.Sprintf("A%d", i)}
			results[i], errs[i] = svc.UpdateMetadataWith(ctx, "c1", func(current metadata.ConversationMetadata) (map[string]any, error) {
				return map[string]any{"questionAnswers": append(current.QuestionAnswers, qa)}, nil
			}, WithMaxRetries(n*4))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.True(t, results[i], "updater %d must commit", i)
	}

	raw, version, err := repo.GetMetadata(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(n), version)

	md, err := metadata.Parse(raw)
	require.NoError(t, err)
	assert.Len(t, md.QuestionAnswers, n)
}

func TestMonotonicFlagsSurviveStalePatches(t *testing.T) {
	repo, svc := newMetaFixture(t)
	repo.seed("c1", []byte(`{"interviewStarted":true,"interviewCompleted":true,"completedAt":"2026-08-30T10:00:00Z"}`), 7)
	ctx := context.Background()

	ok, err := svc.UpdateMetadata(ctx, "c1", map[string]any{
		"interviewStarted":   false,
		"interviewCompleted": false,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	md, err := svc.GetMetadata(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, md.InterviewStarted)
	assert.True(t, md.InterviewCompleted)
	assert.Equal(t, "2026-08-30T10:00:00Z", md.CompletedAt)
}

func TestCompletionStampsCompletedAt(t *testing.T) {
	repo, svc := newMetaFixture(t)
	repo.seed("c1", []byte(`{"interviewStarted":true}`), 1)
	ctx := context.Background()

	ok, err := svc.UpdateMetadata(ctx, "c1", map[string]any{"interviewCompleted": true})
	require.NoError(t, err)
	assert.True(t, ok)

	md, err := svc.GetMetadata(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, md.InterviewCompleted)
	assert.NotEmpty(t, md.CompletedAt)
}

func TestGetMetadataFailsOpen(t *testing.T) {
	repo, svc := newMetaFixture(t)
	repo.seed("corrupt", []byte(`{"identifiedBy":"bogus_value"}`), 2)
	ctx := context.Background()

	md, err := svc.GetMetadata(ctx, "corrupt")
	require.NoError(t, err)
	assert.Equal(t, metadata.ConversationMetadata{}, md)

	md, err = svc.GetMetadata(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, metadata.ConversationMetadata{}, md)
}
