package llm

import "context"

const mockCode = `package main

func Run(args map[string]interface{}) (interface{}, error) {
	return 0.0, nil
}
`

// MockAdapter returns canned or templated code without calling any model,
// for tests and offline evolution runs. Grounded on dataprovider.MockProvider's
// canned-override pattern applied to this package's interface.
type MockAdapter struct {
	canned map[string]*GenerationResult
	calls  []GenerationRequest
}

// NewMockAdapter creates a MockAdapter with optional canned responses keyed
// by task text.
func NewMockAdapter(canned map[string]*GenerationResult) *MockAdapter {
	if canned == nil {
		canned = map[string]*GenerationResult{}
	}
	return &MockAdapter{canned: canned}
}

// Calls returns every request this adapter has seen, in order.
func (m *MockAdapter) Calls() []GenerationRequest {
	out := make([]GenerationRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockAdapter) GenerateToolCode(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	m.calls = append(m.calls, req)

	if canned, ok := m.canned[req.Task]; ok {
		return canned, nil
	}

	_, _, category := buildPrompt(req)
	return &GenerationResult{
		ThoughtTrace: "mock: no reasoning performed",
		CodePayload:  mockCode,
		TextResponse: "```go\n" + mockCode + "```",
		RawResponse:  mockCode,
		Category:     category,
	}, nil
}
