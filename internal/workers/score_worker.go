package workers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/metadata"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/providers/llm"
	pgrepo "github.com/botcraftengineer/qbs-autonaim-sub007/internal/repositories/postgres"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/services"
)

// ScoreWorkerPool grades flushed answers. It scores and embeds each answer
// record, then folds the result into conversation metadata through the
// coordinator, which makes it a second concurrent metadata writer next to
// the bot handler.
type ScoreWorkerPool struct {
	Redis      *redis.Client
	Answers    pgrepo.AnswerRepo
	Meta       services.ConversationMetadataService
	LLM        llm.Provider
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *ScoreWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Answers == nil || p.Meta == nil || p.LLM == nil {
		return errors.New("ScoreWorkerPool missing dependency: Redis/Answers/Meta/LLM must be set")
	}
	if p.Stream == "" {
		p.Stream = "answers:stream"
	}
	if p.Group == "" {
		p.Group = "score-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "s"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *ScoreWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func (p *ScoreWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	conversationID := getStr("conversation_id")
	recordID := getStr("record_id")
	question := getStr("question")
	answer := getStr("answer")
	if conversationID == "" || recordID == "" || question == "" {
		return
	}

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":        msg.ID,
		"conversation_id": conversationID,
		"record_id":       recordID,
	})

	score, err := p.LLM.ScoreAnswer(ctx, question, answer)
	if err != nil {
		log.WithError(err).Error("answer scoring failed")
		return
	}

	embedding, err := p.LLM.EmbedText(ctx, answer)
	if err != nil {
		log.WithError(err).Warn("answer embedding failed, storing score without it")
		embedding = nil
	}

	if err := p.Answers.SetScore(ctx, recordID, score.Score, score.Feedback, embedding); err != nil {
		log.WithError(err).Error("failed to persist answer score")
		return
	}

	// rebuilt from fresh state on every retry, so concurrent appends and
	// parallel score workers cannot lose each other's updates
	committed, err := p.Meta.UpdateMetadataWith(ctx, conversationID, func(current metadata.ConversationMetadata) (map[string]any, error) {
		n := current.ScoredAnswers + 1
		avg := (current.AverageScore*float64(current.ScoredAnswers) + score.Score) / float64(n)
		return map[string]any{
			"averageScore":  avg,
			"scoredAnswers": n,
		}, nil
	})
	if err != nil {
		log.WithError(err).Error("failed to fold score into metadata")
		return
	}
	if !committed {
		log.Warn("score metadata update not committed")
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"type":            "answer_scored",
		"conversation_id": conversationID,
		"record_id":       recordID,
		"score":           score.Score,
	})
	_ = p.Redis.Publish(ctx, "conversation:"+conversationID+":events", string(payload)).Err()

	log.WithField("score", score.Score).Info("answer scored")
}
