package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"charforge/internal/domain"
)

// AgentInput is the structured context handed to the prompt agent.
type AgentInput struct {
	GenerationType    domain.GenerationType
	View              domain.ViewKind
	CharacterName     string
	Description       string
	UserInput         string
	ConditioningCount int
}

// Agent converts structured character context into tag-based prompt text.
type Agent interface {
	Generate(ctx context.Context, in AgentInput) (string, error)
}

// OpenAIAgentOptions configures the chat-completions backed agent.
type OpenAIAgentOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAIAgent implements Agent over the OpenAI chat completions API.
type OpenAIAgent struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

const (
	agentDefaultTimeout = 20 * time.Second
	agentDefaultModel   = "gpt-4o-mini"
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAIAgent constructs the agent; the API key is required.
func NewOpenAIAgent(opts OpenAIAgentOptions) (*OpenAIAgent, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("prompt: openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = agentDefaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: agentDefaultTimeout}
	}
	return &OpenAIAgent{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   model,
		baseURL: baseURL,
		client:  client,
	}, nil
}

// Generate asks the model for a POSITIVE/NEGATIVE tag prompt pair.
func (a *OpenAIAgent) Generate(ctx context.Context, in AgentInput) (string, error) {
	payload := chatRequest{
		Model:       a.model,
		Temperature: 0.7,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(in)},
			{Role: "user", Content: userPrompt(in)},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("prompt: encode request: %w", err)
	}
	endpoint := a.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("prompt: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("prompt: http request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("prompt: openai status %d", resp.StatusCode)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("prompt: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("prompt: no choices")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("prompt: empty response")
	}
	return text, nil
}

var _ Agent = (*OpenAIAgent)(nil)

func systemPrompt(in AgentInput) string {
	var b strings.Builder
	b.WriteString("You are a prompt engineer for a booru-tag based image model. ")
	b.WriteString("Answer with exactly two labeled sections:\n")
	b.WriteString("POSITIVE: <comma-separated tags>\nNEGATIVE: <comma-separated tags>\n")
	b.WriteString("Emphasis may only use nested parentheses like ((tag)) or repeated periods like tag...; ")
	b.WriteString("never use numeric weight suffixes such as (tag:1.2).\n")
	switch in.GenerationType {
	case domain.GenerationAvatar:
		b.WriteString("This is a face-focused avatar: use strictly face and head vocabulary, no body, attire-below-shoulders or scenery tags.\n")
	case domain.GenerationSticker:
		b.WriteString("This is a sticker: expressive face, simple background, no scenery tags.\n")
	case domain.GenerationView, domain.GenerationMultiRef:
		if in.View == domain.ViewFace {
			b.WriteString("This is a face reference view: use strictly face and head vocabulary.\n")
		} else {
			b.WriteString(fmt.Sprintf("This is a full-body %s reference view: describe the whole figure from that camera angle only.\n", in.View))
		}
	}
	if in.ConditioningCount > 0 {
		b.WriteString(fmt.Sprintf("%d reference images of the same character are supplied as conditioning; keep identity tags consistent with them.\n", in.ConditioningCount))
	}
	return b.String()
}

func userPrompt(in AgentInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Character: %s\n", strings.TrimSpace(in.CharacterName))
	if d := strings.TrimSpace(in.Description); d != "" {
		fmt.Fprintf(&b, "Description: %s\n", d)
	}
	if u := strings.TrimSpace(in.UserInput); u != "" {
		fmt.Fprintf(&b, "Additional instructions: %s\n", u)
	}
	return b.String()
}
