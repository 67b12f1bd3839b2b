package styles

import (
	"strings"

	"charforge/internal/domain"
)

// preset is one configured visual style. Theme overrides refine the base
// preset for a thematic content category.
type preset struct {
	checkpoint string
	adapters   []domain.AdapterRef
	positive   string
	negative   string
	themes     map[string]themeOverride
}

type themeOverride struct {
	adapters []domain.AdapterRef
	positive string
}

// Resolver maps (style, theme) pairs to concrete model configuration.
// Resolution is a pure read; unknown styles resolve to nil and callers must
// leave the workflow unstyled rather than fail.
type Resolver struct {
	presets map[string]preset
}

// NewResolver builds a resolver over the built-in style table.
func NewResolver() *Resolver {
	return &Resolver{presets: defaultPresets}
}

// Resolve returns the style configuration for the pair, or nil when the
// style is invalid or unconfigured.
func (r *Resolver) Resolve(style, theme string) *domain.StyleConfiguration {
	if r == nil {
		return nil
	}
	key := normalizeKey(style)
	if key == "" {
		return nil
	}
	p, ok := r.presets[key]
	if !ok {
		return nil
	}
	cfg := &domain.StyleConfiguration{
		Checkpoint:     p.checkpoint,
		Adapters:       append([]domain.AdapterRef(nil), p.adapters...),
		PositiveSuffix: p.positive,
		NegativeSuffix: p.negative,
	}
	if override, ok := p.themes[normalizeKey(theme)]; ok {
		if len(override.adapters) > 0 {
			cfg.Adapters = append(cfg.Adapters, override.adapters...)
		}
		if override.positive != "" {
			cfg.PositiveSuffix = joinSuffix(cfg.PositiveSuffix, override.positive)
		}
	}
	return cfg
}

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

func joinSuffix(base, extra string) string {
	if base == "" {
		return extra
	}
	return base + ", " + extra
}

var defaultPresets = map[string]preset{
	"anime": {
		checkpoint: "animagineXL_v31.safetensors",
		adapters: []domain.AdapterRef{
			{Name: "anime_lineart_xl.safetensors", Weight: 0.6},
		},
		positive: "anime style, clean lineart, cel shading, vibrant colors",
		negative: "photorealistic, 3d render",
		themes: map[string]themeOverride{
			"fantasy": {
				adapters: []domain.AdapterRef{{Name: "fantasy_detail_xl.safetensors", Weight: 0.5}},
				positive: "fantasy, ornate costume, dramatic lighting",
			},
			"scifi": {
				adapters: []domain.AdapterRef{{Name: "scifi_neon_xl.safetensors", Weight: 0.5}},
				positive: "science fiction, futuristic, neon accents",
			},
		},
	},
	"semi_realistic": {
		checkpoint: "dreamshaperXL_turbo.safetensors",
		adapters: []domain.AdapterRef{
			{Name: "soft_shading_xl.safetensors", Weight: 0.55},
			{Name: "detail_tweaker_xl.safetensors", Weight: 0.4},
		},
		positive: "semi-realistic, detailed skin texture, soft lighting",
		negative: "flat color, sketch",
	},
	"realistic": {
		checkpoint: "juggernautXL_v9.safetensors",
		adapters: []domain.AdapterRef{
			{Name: "photo_detail_xl.safetensors", Weight: 0.5},
		},
		positive: "photorealistic, natural lighting, depth of field",
		negative: "anime, cartoon, illustration",
		themes: map[string]themeOverride{
			"noir": {
				positive: "film noir, high contrast, monochrome tones",
			},
		},
	},
	"chibi": {
		checkpoint: "animagineXL_v31.safetensors",
		adapters: []domain.AdapterRef{
			{Name: "chibi_style_xl.safetensors", Weight: 0.8, Trigger: "chibi"},
		},
		positive: "chibi, deformed, big head, simple background",
		negative: "realistic proportions",
	},
}
