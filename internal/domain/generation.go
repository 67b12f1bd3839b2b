package domain

// GenerationType enumerates the workflow template families the engine knows.
type GenerationType string

const (
	GenerationAvatar   GenerationType = "avatar"
	GenerationCover    GenerationType = "cover"
	GenerationSticker  GenerationType = "sticker"
	GenerationView     GenerationType = "view"
	GenerationMultiRef GenerationType = "multiref"
)

// AdapterRef names one LoRA adapter together with its application weight and
// optional trigger words to splice into the positive prompt.
type AdapterRef struct {
	Name    string
	Weight  float64
	Trigger string
}

// StyleConfiguration is the resolved model setup for one style/theme pair.
// It is read-only once resolved; the adapter list is bounded by the slot
// count of the target workflow's loader node.
type StyleConfiguration struct {
	Checkpoint     string
	Adapters       []AdapterRef
	PositiveSuffix string
	NegativeSuffix string
}

// Prompt is the composed prompt triple handed to workflow instantiation.
type Prompt struct {
	Positive string
	Negative string
	Adapters []AdapterRef
}
