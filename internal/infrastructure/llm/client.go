package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"CurateAI/internal/config"
	"CurateAI/internal/domain"
	"CurateAI/internal/ports"
)

// Client implements topic scoring and angle generation backed by an
// OpenAI-compatible chat-completions API.
type Client struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ports.TopicScorer = (*Client)(nil)
var _ ports.AngleGenerator = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg config.LLMConfig) *Client {
	return &Client{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: safePrompt(cfg.SystemPrompt),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Score asks the model to rate the topic on relevance, novelty, and impact.
func (c *Client) Score(ctx context.Context, topic domain.TopicCandidate) (domain.TopicScores, error) {
	prompt := fmt.Sprintf(`Rate this AI/ML topic for a practitioner audience.
Title: %s
Summary: %s
Reply with JSON only: {"relevance": 0.0-1.0, "novelty": 0.0-1.0, "impact": 0.0-1.0}`,
		topic.Title, topic.Summary)

	content, err := c.complete(ctx, prompt)
	if err != nil {
		return domain.TopicScores{}, err
	}

	var parsed struct {
		Relevance float64 `json:"relevance"`
		Novelty   float64 `json:"novelty"`
		Impact    float64 `json:"impact"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		return domain.TopicScores{}, &domain.GenerationServiceError{Err: fmt.Errorf("parse scores: %w", err)}
	}

	scores := domain.TopicScores{
		Relevance: clamp01(parsed.Relevance),
		Novelty:   clamp01(parsed.Novelty),
		Impact:    clamp01(parsed.Impact),
	}
	scores.Combined = (scores.Relevance + scores.Novelty + scores.Impact) / 3
	return scores, nil
}

// Generate asks the model for an opinionated angle on the topic.
func (c *Client) Generate(ctx context.Context, topic domain.ScoredTopic) (domain.Angle, error) {
	prompt := fmt.Sprintf(`Write an opinionated take on this AI/ML topic. No neutral summaries.
Title: %s
Summary: %s
Reply with JSON only:
{"stance": "...", "why_it_matters": "...", "second_order_effects": ["..."], "relevant_for": ["..."], "confidence": 0.0-1.0}`,
		topic.Title, topic.Summary)

	content, err := c.complete(ctx, prompt)
	if err != nil {
		return domain.Angle{}, err
	}

	var parsed struct {
		Stance             string   `json:"stance"`
		WhyItMatters       string   `json:"why_it_matters"`
		SecondOrderEffects []string `json:"second_order_effects"`
		RelevantFor        []string `json:"relevant_for"`
		Confidence         float64  `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		return domain.Angle{}, &domain.GenerationServiceError{Err: fmt.Errorf("parse angle: %w", err)}
	}
	if parsed.Stance == "" {
		return domain.Angle{}, &domain.GenerationServiceError{Err: fmt.Errorf("model returned empty stance")}
	}

	return domain.Angle{
		ID:                 uuid.NewString(),
		TopicID:            topic.ID,
		Stance:             parsed.Stance,
		WhyItMatters:       parsed.WhyItMatters,
		SecondOrderEffects: parsed.SecondOrderEffects,
		RelevantFor:        parsed.RelevantFor,
		Confidence:         clamp01(parsed.Confidence),
		Status:             domain.AngleCandidate,
		SupportingLinks:    []string{topic.URL},
	}, nil
}

func (c *Client) complete(ctx context.Context, userPrompt string) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", &domain.GenerationServiceError{Err: fmt.Errorf("llm client misconfigured")}
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": c.systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &domain.GenerationServiceError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &domain.GenerationServiceError{
			Err: fmt.Errorf("llm error %s: %s", resp.Status, strings.TrimSpace(string(payload))),
		}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &domain.GenerationServiceError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", &domain.GenerationServiceError{Err: fmt.Errorf("empty completion response")}
	}

	return parsed.Choices[0].Message.Content, nil
}

// extractJSON strips markdown fences and surrounding prose the model
// sometimes wraps around its JSON reply.
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You curate AI/ML research and write opinionated takes."
	}
	return prompt
}
