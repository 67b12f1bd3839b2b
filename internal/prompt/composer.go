package prompt

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"charforge/internal/domain"
)

// ComposeRequest captures everything needed to compose one stage's prompt.
type ComposeRequest struct {
	Character         *domain.Character
	View              domain.ViewKind
	GenerationType    domain.GenerationType
	Style             *domain.StyleConfiguration
	UserInput         string
	ConditioningCount int
}

// Composer builds positive/negative prompt pairs. When an agent is
// configured and the request carries free-form context it delegates to the
// agent; every failure on that path degrades to deterministic composition,
// so Compose itself never fails.
type Composer struct {
	agent      Agent
	onFallback func(reason string, err error)
}

// ComposerOptions configures a Composer.
type ComposerOptions struct {
	Agent      Agent
	OnFallback func(reason string, err error)
}

const qualityBoosters = "masterpiece, best quality, highres, absurdres"

// NewComposer constructs a Composer. A nil agent disables the agentic path.
func NewComposer(opts ComposerOptions) *Composer {
	return &Composer{agent: opts.Agent, onFallback: opts.OnFallback}
}

var sectionRe = regexp.MustCompile(`(?is)positive:\s*(.*?)\s*negative:\s*(.*)`)

// Compose returns the prompt triple for the request.
func (c *Composer) Compose(ctx context.Context, req ComposeRequest) domain.Prompt {
	if c.agent != nil && c.wantsAgent(req) {
		if p, ok := c.composeAgentic(ctx, req); ok {
			return p
		}
	}
	return c.composeDeterministic(req)
}

func (c *Composer) wantsAgent(req ComposeRequest) bool {
	if strings.TrimSpace(req.UserInput) != "" {
		return true
	}
	return req.Character != nil && strings.TrimSpace(req.Character.Description) != ""
}

func (c *Composer) composeAgentic(ctx context.Context, req ComposeRequest) (domain.Prompt, bool) {
	in := AgentInput{
		GenerationType:    req.GenerationType,
		View:              req.View,
		CharacterName:     req.Character.Name,
		Description:       req.Character.Description,
		UserInput:         req.UserInput,
		ConditioningCount: req.ConditioningCount,
	}
	text, err := c.agent.Generate(ctx, in)
	if err != nil {
		c.fallback("agent_call", err)
		return domain.Prompt{}, false
	}
	m := sectionRe.FindStringSubmatch(text)
	if m == nil {
		c.fallback("agent_parse", nil)
		return domain.Prompt{}, false
	}
	positive := strings.TrimSpace(m[1])
	negative := strings.TrimSpace(m[2])
	if positive == "" {
		c.fallback("agent_empty_positive", nil)
		return domain.Prompt{}, false
	}
	if len(negative) < minNegativeLength {
		negative = synthesizeNegative(positive, req.GenerationType, req.View)
	}
	return c.finalize(positive, negative, req), true
}

func (c *Composer) composeDeterministic(req ComposeRequest) domain.Prompt {
	char := req.Character
	parts := []string{qualityBoosters}
	if char != nil {
		parts = append(parts, char.SubjectTag())
		if name := displayName(char.Name); name != "" {
			parts = append(parts, name)
		}
		if tag := strings.TrimSpace(char.AdapterTag); tag != "" {
			parts = append(parts, tag)
		}
		for _, tags := range []string{char.HairTags, char.EyeTags, char.BodyTags, char.AttireTags, char.ExtraTags} {
			if t := strings.TrimSpace(tags); t != "" {
				parts = append(parts, t)
			}
		}
	}
	if desc, ok := domain.DescriptorFor(req.View); ok {
		parts = append(parts, desc.PositivePrefix)
	}
	positive := strings.Join(parts, ", ")

	negative := baseNegative
	if desc, ok := domain.DescriptorFor(req.View); ok && len(desc.NegativeTags) > 0 {
		negative = negative + ", " + strings.Join(desc.NegativeTags, ", ")
	}
	return c.finalize(positive, negative, req)
}

// finalize applies style suffixes and adapter trigger words, and guarantees
// the baseline quality exclusions are present in the negative prompt.
func (c *Composer) finalize(positive, negative string, req ComposeRequest) domain.Prompt {
	var adapters []domain.AdapterRef
	if req.Style != nil {
		adapters = req.Style.Adapters
		if s := strings.TrimSpace(req.Style.PositiveSuffix); s != "" {
			positive = positive + ", " + s
		}
		if s := strings.TrimSpace(req.Style.NegativeSuffix); s != "" {
			negative = negative + ", " + s
		}
		for _, a := range adapters {
			if t := strings.TrimSpace(a.Trigger); t != "" && !containsTag(positive, t) {
				positive = positive + ", " + t
			}
		}
	}
	return domain.Prompt{
		Positive: positive,
		Negative: ensureBaseline(negative),
		Adapters: adapters,
	}
}

func (c *Composer) fallback(reason string, err error) {
	if c.onFallback != nil {
		c.onFallback(reason, err)
	}
}

var titleCaser = cases.Title(language.Und)

func displayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return titleCaser.String(name)
}

func containsTag(prompt, tag string) bool {
	for _, part := range strings.Split(prompt, ",") {
		if strings.EqualFold(strings.TrimSpace(part), tag) {
			return true
		}
	}
	return false
}
