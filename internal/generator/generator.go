// Package generator wraps the chat-completion service used for
// grounded answers, conversation condensation and emotion labels.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"ragtutor/internal/domain"
	"ragtutor/internal/retry"
)

const answerSystemPrompt = `You are Momo, a friendly and encouraging AI tutor for undergraduate STEM topics. Explain concepts clearly and concisely.

Rules:
1. Use ONLY the provided CONTEXT. Never draw on outside knowledge.
2. If the answer is not in the CONTEXT, reply: "I'm sorry, but I cannot answer that question based on the materials provided. Please try asking something else related to the documents you've uploaded."
3. Do not include citation markers like [1] or [2] in the response.
4. Structure answers for readability with paragraphs and bullet points where helpful.
5. Keep a positive, supportive tone.`

const conciseInstruction = "Answer concisely in 1-3 short sentences. Be direct and to the point."

const condensePrompt = `You are a concise summarizer. Given a conversation between a tutor and a student, produce a short summary that captures the student's current knowledge state, unanswered questions, and context necessary for future replies. Provide the summary as a short paragraph (1-3 sentences).
CONVERSATION:
%s`

const emotionPrompt = `You are a concise classifier. Given the assistant's answer below, return exactly one word (only the word) that best describes the emotional state or intent of the assistant. Choose one of: happy, thinking, explaining, clarifying, neutral, encouraging.

Answer:
-----
%s
-----
Respond with exactly one word from the list. No punctuation.`

var emotionLabels = map[string]struct{}{
	"happy": {}, "thinking": {}, "explaining": {},
	"clarifying": {}, "neutral": {}, "encouraging": {},
}

// Generator calls an OpenAI-compatible chat endpoint. Safe for
// concurrent use; construct once and share.
type Generator struct {
	client *openai.Client
	model  string
	policy retry.Policy
	logger *slog.Logger
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

func New(cfg Config, logger *slog.Logger) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing generation API key", domain.ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: missing generation model", domain.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Generator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		policy: retry.Default(),
		logger: logger,
	}, nil
}

// Answer produces a grounded answer from the question and its context
// passages.
func (g *Generator) Answer(ctx context.Context, question string, contexts []domain.ContextEntry, shortAnswer bool) (string, error) {
	var blocks []string
	for _, c := range contexts {
		source := c.Source
		if source == "" {
			source = "unknown"
		}
		blocks = append(blocks, "Source: "+source+"\n"+c.Text)
	}
	user := fmt.Sprintf("CONTEXT:\n---\n%s\n---\n\nQUESTION:\n%s\n\nBased *only* on the context provided, please provide a clear and accurate answer. Do not include citation markers.",
		strings.Join(blocks, "\n\n"), question)
	if shortAnswer {
		user = conciseInstruction + " " + user
	}
	text, err := g.complete(ctx, answerSystemPrompt, user, 512)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Condense summarizes a rendered conversation window for session
// compaction.
func (g *Generator) Condense(ctx context.Context, conversation string) (string, error) {
	text, err := g.complete(ctx, "You are a concise summarizer for conversation state.",
		fmt.Sprintf(condensePrompt, conversation), 200)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Emotion classifies the answer into one of the known labels. Any
// failure or unexpected label falls back to "neutral".
func (g *Generator) Emotion(ctx context.Context, answer string) string {
	text, err := g.complete(ctx, "You are an accurate classifier that outputs exactly one label.",
		fmt.Sprintf(emotionPrompt, answer), 8)
	if err != nil {
		g.logger.Warn("emotion classification failed, defaulting to neutral", "error", err)
		return "neutral"
	}
	label := strings.ToLower(strings.TrimSpace(text))
	if _, ok := emotionLabels[label]; !ok {
		g.logger.Warn("unexpected emotion label", "label", label)
		return "neutral"
	}
	return label
}

func (g *Generator) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	var resp openai.ChatCompletionResponse
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       g.model,
			Temperature: 0,
			MaxTokens:   maxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
