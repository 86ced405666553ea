package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/models"
	mongorepo "github.com/botcraftengineer/qbs-autonaim-sub007/internal/repositories/mongo"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/utils"
)

// In-memory repository fakes. Append and CompareAndSwapMetadata hold the
// mutex for the whole operation, mirroring the atomicity the real backends
// provide ($push upsert, conditional UPDATE).

type fakeBufferRepo struct {
	mu   sync.Mutex
	bufs map[string]*models.MessageBuffer
}

func newFakeBufferRepo() *fakeBufferRepo {
	return &fakeBufferRepo{bufs: map[string]*models.MessageBuffer{}}
}

func bufKey(userID, conversationID string, step int) string {
	return fmt.Sprintf("%s/%s/%d", userID, conversationID, step)
}

func (f *fakeBufferRepo) Append(_ context.Context, userID, conversationID string, step int, msg models.BufferedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := bufKey(userID, conversationID, step)
	buf, ok := f.bufs[k]
	if !ok {
		buf = &models.MessageBuffer{UserID: userID, ConversationID: conversationID, InterviewStep: step}
		f.bufs[k] = buf
	}
	buf.Messages = append(buf.Messages, msg)
	return nil
}

func (f *fakeBufferRepo) Get(_ context.Context, userID, conversationID string, step int) (*models.MessageBuffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf, ok := f.bufs[bufKey(userID, conversationID, step)]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *buf
	cp.Messages = append([]models.BufferedMessage(nil), buf.Messages...)
	return &cp, nil
}

func (f *fakeBufferRepo) Clear(_ context.Context, userID, conversationID string, step int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bufs, bufKey(userID, conversationID, step))
	return nil
}

func (f *fakeBufferRepo) Exists(_ context.Context, userID, conversationID string, step int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.bufs[bufKey(userID, conversationID, step)]
	return ok, nil
}

func (f *fakeBufferRepo) Drain(_ context.Context, userID, conversationID string, step int, flushID string) ([]models.BufferedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := bufKey(userID, conversationID, step)
	buf, ok := f.bufs[k]
	if !ok {
		return nil, utils.ErrNotFound
	}
	if buf.FlushID != nil && *buf.FlushID != flushID {
		return nil, mongorepo.ErrBufferClaimed
	}
	delete(f.bufs, k)
	return buf.Messages, nil
}

type fakeConvoRow struct {
	raw     []byte
	version int64
}

type fakeConvoRepo struct {
	mu   sync.Mutex
	rows map[string]*fakeConvoRow

	// casRejects simulates a concurrent writer: while positive, every CAS
	// attempt is rejected and the stored version is bumped as if the other
	// writer committed.
	casRejects int
}

func newFakeConvoRepo() *fakeConvoRepo {
	return &fakeConvoRepo{rows: map[string]*fakeConvoRow{}}
}

func (f *fakeConvoRepo) seed(id string, raw []byte, version int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id] = &fakeConvoRow{raw: raw, version: version}
}

func (f *fakeConvoRepo) Create(_ context.Context, c *models.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[c.ID] = &fakeConvoRow{raw: []byte(c.Metadata), version: c.MetadataVersion}
	return nil
}

func (f *fakeConvoRepo) GetByID(_ context.Context, id string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return &models.Conversation{ID: id, Metadata: append([]byte(nil), row.raw...), MetadataVersion: row.version}, nil
}

func (f *fakeConvoRepo) GetMetadata(_ context.Context, id string) ([]byte, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, 0, utils.ErrNotFound
	}
	return append([]byte(nil), row.raw...), row.version, nil
}

func (f *fakeConvoRepo) CompareAndSwapMetadata(_ context.Context, id string, expected int64, raw []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return false, nil
	}
	if f.casRejects > 0 {
		f.casRejects--
		row.version++ // the simulated racer committed first
		return false, nil
	}
	if row.version != expected {
		return false, nil
	}
	row.raw = append([]byte(nil), raw...)
	row.version = expected + 1
	return true, nil
}

type fakeAnswerRepo struct {
	mu      sync.Mutex
	records []*models.AnswerRecord
}

func (f *fakeAnswerRepo) Insert(_ context.Context, rec *models.AnswerRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	f.records = append(f.records, &cp)
	return nil
}

func (f *fakeAnswerRepo) GetByID(_ context.Context, id string) (*models.AnswerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (f *fakeAnswerRepo) ListByConversation(_ context.Context, conversationID string, _ int) ([]models.AnswerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AnswerRecord
	for _, r := range f.records {
		if r.ConversationID == conversationID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeAnswerRepo) SetScore(_ context.Context, id string, score float64, feedback string, _ []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			s := score
			r.Score = &s
			r.Feedback = feedback
			return nil
		}
	}
	return utils.ErrNotFound
}

func (f *fakeAnswerRepo) SearchSimilar(_ context.Context, _ []float32, _ int) ([]models.AnswerRecord, error) {
	return nil, nil
}
