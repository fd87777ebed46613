package llm

import (
	"regexp"
	"strings"
)

var (
	thinkRe = regexp.MustCompile(`(?s)<think>(.*?)</think>`)
	codeRe  = regexp.MustCompile("(?s)```go(.*?)```")
)

// ParsedResponse is a model response split into its reasoning trace and
// code payload. Adapted from llm_adapter_local.py's _clean_protocol, which
// strips a <think>...</think> block and extracts a fenced code block; here
// the fence language is go rather than python since synthesized tools are
// Go source.
type ParsedResponse struct {
	ThoughtTrace string
	CodePayload  string
	TextResponse string
}

// CleanProtocol splits a raw model response into thought trace, code
// payload, and the remaining text.
func CleanProtocol(raw string) ParsedResponse {
	thought := ""
	if m := thinkRe.FindStringSubmatch(raw); m != nil {
		thought = strings.TrimSpace(m[1])
	}
	text := strings.TrimSpace(thinkRe.ReplaceAllString(raw, ""))

	code := ""
	if m := codeRe.FindStringSubmatch(text); m != nil {
		code = strings.TrimSpace(m[1])
	}

	return ParsedResponse{ThoughtTrace: thought, CodePayload: code, TextResponse: text}
}
