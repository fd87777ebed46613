// Package llm generates candidate Go tool source from natural-language
// task descriptions. Adapted from original_source's llm_adapter.py
// (OpenAI-compatible DashScope client) and llm_adapter_local.py (protocol
// cleaning, prompt selection, contract formatting), retargeted from the
// OpenAI Python SDK to google.golang.org/genai, following the same
// client-wrapping pattern as internal/embedding/genai.go.
package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"finevo/internal/model"
)

// GenerationRequest describes a code-generation call.
type GenerationRequest struct {
	Task         string
	Category     string // "fetch", "calculation", "composite"; inferred if empty
	Contract     *model.Contract
	ErrorContext string // previous failure, present during refinement
}

// GenerationResult is a parsed model response plus the category used.
type GenerationResult struct {
	ThoughtTrace string
	CodePayload  string
	TextResponse string
	RawResponse  string
	Category     string
}

// Adapter generates tool code from a task description.
type Adapter interface {
	GenerateToolCode(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// Config configures a GenAIAdapter.
type Config struct {
	APIKey         string
	Model          string
	Temperature    float32
	EnableThinking bool
}

// GenAIAdapter generates tool code via Google's Gemini API.
type GenAIAdapter struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGenAIAdapter creates a GenAIAdapter.
func NewGenAIAdapter(ctx context.Context, cfg Config) (*GenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("llm: create genai client: %w", err)
	}

	return &GenAIAdapter{client: client, model: model, temperature: cfg.Temperature}, nil
}

func inferCategory(task string) string {
	lower := strings.ToLower(task)
	fetchKw := []string{"fetch", "get", "price", "quote", "historical", "dividend"}
	calcKw := []string{"calculate", "calc", "rsi", "macd", "bollinger", "kdj", "drawdown", "volatility"}
	compositeKw := []string{"if ", "return true", "return false", "signal", "divergence", "portfolio"}

	hasFetch := containsAny(lower, fetchKw)
	hasCalc := containsAny(lower, calcKw)
	if hasFetch {
		if hasCalc {
			return "calculation"
		}
		return "fetch"
	}
	if containsAny(lower, compositeKw) {
		return "composite"
	}
	return "calculation"
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func buildPrompt(req GenerationRequest) (systemPrompt, userPrompt, category string) {
	category = req.Category
	if category == "" {
		category = inferCategory(req.Task)
	}
	systemPrompt, ok := PromptByCategory[category]
	if !ok {
		systemPrompt = SystemPrompt
	}

	userPrompt = "Task: " + req.Task
	if req.Contract != nil {
		if constraint := FormatOutputConstraint(*req.Contract); constraint != "" {
			userPrompt += "\n\nOUTPUT: " + constraint
		}
	}
	if req.ErrorContext != "" {
		userPrompt += "\n\nPrevious Error:\n" + req.ErrorContext + "\n\nFix the issue."
	}
	return systemPrompt, userPrompt, category
}

// GenerateToolCode sends the task (plus optional contract/error context)
// to the model and parses its response into a ParsedResponse.
func (a *GenAIAdapter) GenerateToolCode(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	systemPrompt, userPrompt, category := buildPrompt(req)

	contents := []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}
	temp := a.temperature
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       &temp,
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("llm: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("llm: empty response from model")
	}

	var raw strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		raw.WriteString(part.Text)
	}

	parsed := CleanProtocol(raw.String())
	return &GenerationResult{
		ThoughtTrace: parsed.ThoughtTrace,
		CodePayload:  parsed.CodePayload,
		TextResponse: parsed.TextResponse,
		RawResponse:  raw.String(),
		Category:     category,
	}, nil
}
