package domain

import "time"

// Gender enumerates subject tags used when composing prompts.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
	GenderOther  Gender = "other"
)

// Character is the subject whose reference set the pipeline produces.
// Appearance fields hold comma-separated booru-style tags.
type Character struct {
	ID          string
	Name        string
	Gender      Gender
	AdapterTag  string
	HairTags    string
	EyeTags     string
	BodyTags    string
	AttireTags  string
	ExtraTags   string
	Style       string
	Theme       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SubjectTag maps the character's gender to the single-subject prompt tag.
func (c *Character) SubjectTag() string {
	switch c.Gender {
	case GenderMale:
		return "1boy, solo"
	case GenderFemale:
		return "1girl, solo"
	default:
		return "solo"
	}
}

// ReferenceImage is one persisted entry of a character's reference set.
type ReferenceImage struct {
	ID          string
	CharacterID string
	View        ViewKind
	StorageKey  string
	URL         string
	Width       int
	Height      int
	CreatedAt   time.Time
}

// ReferenceSet is the ordered collection of a character's persisted views.
type ReferenceSet []ReferenceImage

// Avatar returns the avatar entry, or nil when none has been generated yet.
func (s ReferenceSet) Avatar() *ReferenceImage {
	return s.Find(ViewAvatar)
}

// Find returns the first entry tagged with the given view, or nil.
func (s ReferenceSet) Find(view ViewKind) *ReferenceImage {
	for i := range s {
		if s[i].View == view {
			return &s[i]
		}
	}
	return nil
}
