package workflow

import (
	"embed"
	"encoding/json"
	"fmt"

	"charforge/internal/domain"
)

//go:embed templates/*.json
var templateFS embed.FS

// Store holds the parsed workflow templates, one family per generation type,
// with conditioning-aware variants where the type supports them.
type Store struct {
	templates map[string]Workflow
}

// conditioned suffixes the template names of the variants that accept a
// reference-image folder as conditioning context.
const conditionedSuffix = "_ref"

var templateNames = []string{
	"avatar",
	"avatar_ref",
	"cover",
	"cover_ref",
	"sticker",
	"view",
	"multiref",
}

// NewStore parses the embedded templates and validates each one carries a
// terminal save node.
func NewStore() (*Store, error) {
	templates := make(map[string]Workflow, len(templateNames))
	for _, name := range templateNames {
		raw, err := templateFS.ReadFile("templates/" + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("workflow: read template %s: %w", name, err)
		}
		var wf Workflow
		if err := json.Unmarshal(raw, &wf); err != nil {
			return nil, fmt.Errorf("workflow: parse template %s: %w", name, err)
		}
		if _, err := wf.OutputNode(); err != nil {
			return nil, fmt.Errorf("workflow: template %s: %w", name, err)
		}
		templates[name] = wf
	}
	return &Store{templates: templates}, nil
}

// Instantiate returns a deep copy of the template for the generation type.
// When prior images are available and the type has a conditioning-aware
// variant, that variant is selected automatically.
func (s *Store) Instantiate(genType domain.GenerationType, hasConditioning bool) (Workflow, error) {
	name := ""
	switch genType {
	case domain.GenerationAvatar, domain.GenerationCover:
		name = string(genType)
		if hasConditioning {
			name += conditionedSuffix
		}
	case domain.GenerationSticker, domain.GenerationView, domain.GenerationMultiRef:
		name = string(genType)
	default:
		return nil, fmt.Errorf("workflow: %q: %w", genType, domain.ErrUnsupportedGenerationType)
	}
	tpl, ok := s.templates[name]
	if !ok {
		return nil, fmt.Errorf("workflow: %q: %w", genType, domain.ErrUnsupportedGenerationType)
	}
	return tpl.Clone(), nil
}
