package workers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/models"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/providers/stt"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/services"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/storage"
)

// VoiceWorkerPool turns queued voice fragments into buffered text fragments:
// fetch the audio (archive object or URL), transcribe it, and append the
// transcription to the candidate's message buffer.
type VoiceWorkerPool struct {
	Redis      *redis.Client
	Buffers    services.MessageBufferService
	STT        stt.Provider
	Voice      storage.VoiceStore
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *VoiceWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Buffers == nil || p.STT == nil {
		return errors.New("VoiceWorkerPool missing dependency: Redis/Buffers/STT must be set")
	}
	if p.Stream == "" {
		p.Stream = "voice:stream"
	}
	if p.Group == "" {
		p.Group = "voice-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "v"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 3
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

func (p *VoiceWorkerPool) runConsumer(ctx context.Context, consumer string) {
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

func (p *VoiceWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	userID := getStr("user_id")
	conversationID := getStr("conversation_id")
	stepStr := getStr("interview_step")
	if userID == "" || conversationID == "" || stepStr == "" {
		return
	}
	step, _ := strconv.Atoi(stepStr)

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":        msg.ID,
		"conversation_id": conversationID,
		"interview_step":  step,
	})

	eventsCh := "conversation:" + conversationID + ":events"

	// Fetch audio
	var audio []byte
	if obj := getStr("voice_object"); obj != "" && p.Voice != nil {
		b, err := p.Voice.Fetch(ctx, obj)
		if err != nil {
			log.WithError(err).Warn("voice object fetch failed")
			p.publishEvent(ctx, eventsCh, "voice_failed", conversationID, step, "failed to fetch voice object")
			return
		}
		audio = b
	} else if url := getStr("voice_url"); url != "" {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.WithError(err).Warn("voice_url fetch failed")
			p.publishEvent(ctx, eventsCh, "voice_failed", conversationID, step, "failed to fetch voice_url")
			return
		}
		defer resp.Body.Close()

		const maxBytes = 10 << 20
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
		if len(body) == 0 {
			p.publishEvent(ctx, eventsCh, "voice_failed", conversationID, step, "empty audio")
			return
		}
		audio = body
	} else {
		return
	}

	text, conf, err := p.STT.Transcribe(ctx, audio, normalizeLanguage(getStr("language")))
	if err != nil {
		log.WithError(err).Error("transcription failed")
		p.publishEvent(ctx, eventsCh, "voice_failed", conversationID, step, "transcription failed")
		return
	}
	if strings.TrimSpace(text) == "" {
		p.publishEvent(ctx, eventsCh, "voice_failed", conversationID, step, "no speech recognized")
		return
	}

	err = p.Buffers.AddMessage(ctx, userID, conversationID, step, models.BufferedMessage{
		ID:              getStr("message_id"),
		Content:         text,
		ContentType:     models.ContentTypeVoice,
		QuestionContext: getStr("question_context"),
	})
	if err != nil {
		log.WithError(err).Error("failed to buffer transcribed fragment")
		return
	}

	log.WithField("confidence", conf).Info("voice fragment buffered")
	p.publishEvent(ctx, eventsCh, "voice_buffered", conversationID, step, text)
}

func (p *VoiceWorkerPool) publishEvent(ctx context.Context, channel, typ, conversationID string, step int, detail string) {
	payload, _ := json.Marshal(map[string]any{
		"type":            typ,
		"conversation_id": conversationID,
		"interview_step":  step,
		"detail":          detail,
	})
	_ = p.Redis.Publish(ctx, channel, string(payload)).Err()
}

func normalizeLanguage(v string) string {
	switch strings.TrimSpace(v) {
	case "ru", "ru-RU":
		return "ru-RU"
	case "en", "en-US", "":
		return "en-US"
	default:
		return v
	}
}
