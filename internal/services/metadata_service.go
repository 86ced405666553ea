package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/cache"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/metadata"
	pgrepo "github.com/botcraftengineer/qbs-autonaim-sub007/internal/repositories/postgres"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/utils"
)

const (
	defaultMaxRetries = 3
	retryBackoffStep  = 10 * time.Millisecond
	snapshotTTL       = 30 * time.Second
)

// ConversationMetadataService applies partial updates to a conversation's
// metadata under optimistic concurrency control. Concurrent writers (bot
// handler, scoring worker, manual admin edit) never silently clobber each
// other: every committed write observed the immediately prior committed
// state, and every commit bumps metadata_version by exactly 1.
//
// Writes fail closed: corrupt stored metadata aborts the update with an
// error. Reads fail open: GetMetadata returns an empty value and logs the
// anomaly, so the interview flow stays alive.
type ConversationMetadataService interface {
	// UpdateMetadata shallow-merges patch onto the current metadata (top
	// level keys win, arrays and objects replace wholesale) and commits it
	// with a conditional write. Returns (false, nil) when the conversation
	// does not exist or retries were exhausted; errors are reserved for
	// corrupt state, invalid patches, and infrastructure failures.
	UpdateMetadata(ctx context.Context, conversationID string, patch map[string]any, opts ...UpdateOption) (bool, error)
	// UpdateMetadataWith recomputes the patch from the freshly read state on
	// every attempt. Use it for read-modify-write patches (appending to
	// questionAnswers) that would stomp concurrent writes if replayed as-is.
	UpdateMetadataWith(ctx context.Context, conversationID string, build PatchFunc, opts ...UpdateOption) (bool, error)
	GetMetadata(ctx context.Context, conversationID string) (metadata.ConversationMetadata, error)
}

// PatchFunc builds a partial update from the current committed metadata.
type PatchFunc func(current metadata.ConversationMetadata) (map[string]any, error)

type UpdateOption func(*updateOptions)

type updateOptions struct {
	maxRetries int
}

func WithMaxRetries(n int) UpdateOption {
	return func(o *updateOptions) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// casOutcome is the per-attempt result of the read-merge-write cycle.
type casOutcome int

const (
	casCommitted casOutcome = iota
	casConflict
	casNotFound
)

type metadataService struct {
	convos pgrepo.ConversationRepo
	snaps  cache.Cache
	log    *logrus.Logger
}

func NewConversationMetadataService(convos pgrepo.ConversationRepo, snaps cache.Cache, log *logrus.Logger) ConversationMetadataService {
	if log == nil {
		log = logrus.New()
	}
	return &metadataService{convos: convos, snaps: snaps, log: log}
}

func (s *metadataService) UpdateMetadata(ctx context.Context, conversationID string, patch map[string]any, opts ...UpdateOption) (bool, error) {
	return s.UpdateMetadataWith(ctx, conversationID, func(metadata.ConversationMetadata) (map[string]any, error) {
		return patch, nil
	}, opts...)
}

func (s *metadataService) UpdateMetadataWith(ctx context.Context, conversationID string, build PatchFunc, opts ...UpdateOption) (bool, error) {
	const op = "MetadataService.UpdateMetadata"

	if conversationID == "" {
		return false, utils.E(utils.CodeInvalidArgument, op, "conversation_id is required", nil)
	}
	if build == nil {
		return false, utils.E(utils.CodeInvalidArgument, op, "patch builder is required", nil)
	}
	o := updateOptions{maxRetries: defaultMaxRetries}
	for _, apply := range opts {
		apply(&o)
	}

	for attempt := 1; attempt <= o.maxRetries; attempt++ {
		outcome, err := s.tryUpdate(ctx, conversationID, build)
		if err != nil {
			return false, err
		}
		switch outcome {
		case casCommitted:
			return true, nil
		case casNotFound:
			return false, nil
		case casConflict:
			s.log.WithFields(logrus.Fields{
				"conversation_id": conversationID,
				"attempt":         attempt,
			}).Debug("metadata version conflict, retrying")
			if attempt == o.maxRetries {
				break
			}
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(retryBackoffStep * time.Duration(attempt)):
			}
		}
	}

	s.log.WithField("conversation_id", conversationID).Warn("metadata update retries exhausted")
	return false, nil
}

// tryUpdate runs one read-validate-merge-write cycle.
func (s *metadataService) tryUpdate(ctx context.Context, conversationID string, build PatchFunc) (casOutcome, error) {
	const op = "MetadataService.UpdateMetadata"

	raw, version, err := s.convos.GetMetadata(ctx, conversationID)
	if errors.Is(err, utils.ErrNotFound) {
		return casNotFound, nil
	}
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to read conversation metadata", err)
	}

	// fail closed: never merge onto corrupt state
	current, err := metadata.Parse(raw)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"conversation_id": conversationID,
			"error":           err.Error(),
		}).Error("stored conversation metadata is corrupt, refusing update")
		return 0, utils.E(utils.CodeInternal, op, "stored metadata failed schema validation", err)
	}

	patch, err := build(current)
	if err != nil {
		return 0, utils.E(utils.CodeInvalidArgument, op, "failed to build metadata patch", err)
	}

	merged, err := mergeMetadata(raw, current, patch)
	if err != nil {
		return 0, err
	}

	next, err := metadata.Serialize(merged)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to serialize metadata", err)
	}

	ok, err := s.convos.CompareAndSwapMetadata(ctx, conversationID, version, next)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "conditional metadata write failed", err)
	}
	if !ok {
		return casConflict, nil
	}

	if s.snaps != nil {
		_ = s.snaps.Del(ctx, cache.MetadataKey(conversationID))
	}
	return casCommitted, nil
}

// mergeMetadata applies patch onto raw at the JSON top level and validates
// the result against the schema. interviewStarted/interviewCompleted are
// one-way flags: a stale patch can never flip them back to false. completedAt
// is stamped on the false→true completion transition if the patch did not
// carry one.
func mergeMetadata(raw []byte, current metadata.ConversationMetadata, patch map[string]any) (metadata.ConversationMetadata, error) {
	const op = "MetadataService.UpdateMetadata"

	base := map[string]any{}
	if len(raw) > 0 {
		// raw already passed Parse, so it decodes
		_ = json.Unmarshal(raw, &base)
	}
	for k, v := range patch {
		if v == nil {
			delete(base, k)
			continue
		}
		base[k] = v
	}

	blob, err := json.Marshal(base)
	if err != nil {
		return metadata.ConversationMetadata{}, utils.E(utils.CodeInvalidArgument, op, "patch is not JSON-serializable", err)
	}
	merged, err := metadata.Parse(blob)
	if err != nil {
		return metadata.ConversationMetadata{}, utils.E(utils.CodeInvalidArgument, op, "merged metadata failed schema validation", err)
	}

	if current.InterviewStarted {
		merged.InterviewStarted = true
	}
	if current.InterviewCompleted {
		merged.InterviewCompleted = true
		if merged.CompletedAt == "" {
			merged.CompletedAt = current.CompletedAt
		}
	}
	if merged.InterviewCompleted && merged.CompletedAt == "" {
		merged.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return merged, nil
}

type metadataSnapshot struct {
	Metadata metadata.ConversationMetadata `json:"metadata"`
	Version  int64                         `json:"version"`
}

func (s *metadataService) GetMetadata(ctx context.Context, conversationID string) (metadata.ConversationMetadata, error) {
	const op = "MetadataService.GetMetadata"

	if conversationID == "" {
		return metadata.ConversationMetadata{}, utils.E(utils.CodeInvalidArgument, op, "conversation_id is required", nil)
	}

	if s.snaps != nil {
		var snap metadataSnapshot
		if hit, err := s.snaps.GetJSON(ctx, cache.MetadataKey(conversationID), &snap); err == nil && hit {
			return snap.Metadata, nil
		}
	}

	raw, version, err := s.convos.GetMetadata(ctx, conversationID)
	if errors.Is(err, utils.ErrNotFound) {
		s.log.WithField("conversation_id", conversationID).Warn("metadata read for missing conversation, returning empty value")
		return metadata.ConversationMetadata{}, nil
	}
	if err != nil {
		return metadata.ConversationMetadata{}, utils.E(utils.CodeInternal, op, "failed to read conversation metadata", err)
	}

	md, err := metadata.Parse(raw)
	if err != nil {
		// fail open: keep the interview flow alive, but make noise
		s.log.WithFields(logrus.Fields{
			"conversation_id": conversationID,
			"version":         version,
			"error":           err.Error(),
		}).Error("stored conversation metadata is corrupt, returning empty value")
		return metadata.ConversationMetadata{}, nil
	}

	if s.snaps != nil {
		_ = s.snaps.SetJSON(ctx, cache.MetadataKey(conversationID), metadataSnapshot{Metadata: md, Version: version}, snapshotTTL)
	}
	return md, nil
}
