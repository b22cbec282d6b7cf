package provider

import (
	"context"
	"fmt"
	"strings"
)

var _ TextProvider = new(EchoTextProvider)

// EchoTextProvider answers with the prompt itself. Token usage is counted in
// whitespace separated words.
type EchoTextProvider struct {
	Responses map[string]string
}

func NewEchoTextProvider() *EchoTextProvider {
	return &EchoTextProvider{Responses: map[string]string{}}
}

// WithResponse makes prompts containing marker answer with content.
func (p *EchoTextProvider) WithResponse(marker string, content string) *EchoTextProvider {
	p.Responses[marker] = content
	return p
}

func (p *EchoTextProvider) Complete(ctx context.Context, req TextRequest) (*TextResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("empty prompt")
	}
	content := req.Prompt
	for marker, canned := range p.Responses {
		if strings.Contains(req.Prompt, marker) {
			content = canned
			break
		}
	}
	resp := &TextResponse{Content: content}
	resp.Usage.InputTokens = len(strings.Fields(req.SystemPrompt)) + len(strings.Fields(req.Prompt))
	resp.Usage.OutputTokens = len(strings.Fields(content))
	return resp, nil
}
