package domain

// ViewKind enumerates the canonical reference views of a character. Avatar is
// included because persisted reference images are tagged with it, even though
// the multi-view pipeline only ever regenerates the four body views.
type ViewKind string

const (
	ViewAvatar ViewKind = "avatar"
	ViewFace   ViewKind = "face"
	ViewFront  ViewKind = "front"
	ViewSide   ViewKind = "side"
	ViewBack   ViewKind = "back"
)

// ViewDescriptor carries the static generation parameters of one view.
type ViewDescriptor struct {
	Kind           ViewKind
	Width          int
	Height         int
	PositivePrefix string
	NegativeTags   []string
}

// CanonicalViewOrder fixes the sequence in which views are generated; later
// views condition on the output of earlier ones.
var CanonicalViewOrder = []ViewKind{ViewFace, ViewFront, ViewSide, ViewBack}

var viewDescriptors = map[ViewKind]ViewDescriptor{
	ViewAvatar: {
		Kind:           ViewAvatar,
		Width:          1024,
		Height:         1024,
		PositivePrefix: "portrait, face focus, looking at viewer, upper body",
		NegativeTags:   []string{"full body", "from behind", "multiple views"},
	},
	ViewFace: {
		Kind:           ViewFace,
		Width:          1024,
		Height:         1024,
		PositivePrefix: "close-up, face focus, front view, looking at viewer",
		NegativeTags:   []string{"full body", "shoulders", "chest", "upper body", "from side", "from behind"},
	},
	ViewFront: {
		Kind:           ViewFront,
		Width:          832,
		Height:         1216,
		PositivePrefix: "full body, front view, standing, arms at sides, looking at viewer",
		NegativeTags:   []string{"from side", "from behind", "profile", "close-up"},
	},
	ViewSide: {
		Kind:           ViewSide,
		Width:          832,
		Height:         1216,
		PositivePrefix: "full body, side view, profile, standing",
		NegativeTags:   []string{"front view", "from behind", "looking at viewer", "close-up"},
	},
	ViewBack: {
		Kind:           ViewBack,
		Width:          832,
		Height:         1216,
		PositivePrefix: "full body, back view, from behind, standing",
		NegativeTags:   []string{"front view", "from side", "face", "looking at viewer", "close-up"},
	},
}

// DescriptorFor returns the static descriptor for a view kind.
func DescriptorFor(kind ViewKind) (ViewDescriptor, bool) {
	d, ok := viewDescriptors[kind]
	return d, ok
}

// ParseViewKind sanitizes free-form input into a supported view kind.
func ParseViewKind(s string) (ViewKind, bool) {
	switch ViewKind(s) {
	case ViewAvatar, ViewFace, ViewFront, ViewSide, ViewBack:
		return ViewKind(s), true
	}
	return "", false
}
