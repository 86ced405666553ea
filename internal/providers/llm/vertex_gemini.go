package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

type VertexGemini struct {
	client   *vertexgenai.Client
	model    *vertexgenai.GenerativeModel
	embedder *vertexgenai.EmbeddingModel
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName, embedModelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	if embedModelName == "" {
		embedModelName = "text-embedding-004"
	}

	return &VertexGemini{
		client:   c,
		model:    c.GenerativeModel(modelName),
		embedder: c.EmbeddingModel(embedModelName),
	}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) ScoreAnswer(ctx context.Context, question, answer string) (AnswerScore, error) {
	full := strings.Builder{}
	it := v.model.GenerateContentStream(ctx, vertexgenai.Text(
		"You are grading a candidate's answer in a screening interview.\n"+
			`Respond with JSON only: {"score": <number 0..1>, "feedback": "<one sentence>"}.`+
			"\n\nQuestion:\n"+question+"\n\nAnswer:\n"+answer,
	))
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return AnswerScore{}, err
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if t, ok := part.(vertexgenai.Text); ok {
					full.WriteString(string(t))
				}
			}
		}
	}

	return parseScore(full.String())
}

func parseScore(raw string) (AnswerScore, error) {
	s := strings.TrimSpace(raw)
	// models love fencing JSON in markdown
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var out AnswerScore
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return AnswerScore{}, errors.New("unparseable score response: " + raw)
	}
	if out.Score < 0 {
		out.Score = 0
	}
	if out.Score > 1 {
		out.Score = 1
	}
	return out, nil
}

func (v *VertexGemini) EmbedText(ctx context.Context, text string) ([]float32, error) {
	resp, err := v.embedder.EmbedContent(ctx, vertexgenai.Text(text))
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Embedding == nil {
		return nil, errors.New("empty embedding response")
	}
	return resp.Embedding.Values, nil
}
