package workflow

import (
	"fmt"
	"sort"
	"strings"

	"charforge/internal/domain"
)

// Node is one typed node of an engine workflow graph. Inputs reference other
// nodes' outputs as two-element [nodeID, outputIndex] arrays.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
	Meta      map[string]any `json:"_meta,omitempty"`
}

// Workflow is a graph of nodes keyed by template-specific node id. All
// mutators resolve their targets by node class, never by fixed id, so
// template edits do not silently break injection.
type Workflow map[string]*Node

// Node classes recognized by the mutators.
const (
	classSaveImage       = "SaveImage"
	classKSampler        = "KSampler"
	classKSamplerAdv     = "KSamplerAdvanced"
	classTextEncode      = "CLIPTextEncode"
	classCheckpoint      = "CheckpointLoaderSimple"
	classEmptyLatent     = "EmptyLatentImage"
	classImageFolderLoad = "LoadImageSetFromFolder"
)

const loraSlotPrefix = "lora_name_"

// Clone returns a deep copy sharing no mutable state with the receiver.
func (w Workflow) Clone() Workflow {
	out := make(Workflow, len(w))
	for id, node := range w {
		copied := &Node{ClassType: node.ClassType}
		copied.Inputs = cloneValue(node.Inputs).(map[string]any)
		if node.Meta != nil {
			copied.Meta = cloneValue(node.Meta).(map[string]any)
		}
		out[id] = copied
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	default:
		return v
	}
}

// OutputNode locates the single terminal save node. Templates must contain
// exactly one; anything else is a template defect.
func (w Workflow) OutputNode() (string, error) {
	var found []string
	for id, node := range w {
		if node.ClassType == classSaveImage {
			found = append(found, id)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return "", fmt.Errorf("workflow: no save node present")
	default:
		sort.Strings(found)
		return "", fmt.Errorf("workflow: ambiguous save nodes %v", found)
	}
}

// SetSeed applies the seed to every seed-bearing sampler node, including a
// secondary detail-refinement sampler when the template has one.
func (w Workflow) SetSeed(seed uint32) {
	for _, node := range w {
		switch node.ClassType {
		case classKSampler:
			node.Inputs["seed"] = seed
		case classKSamplerAdv:
			node.Inputs["noise_seed"] = seed
		}
	}
}

// SetPrompts writes the positive and negative text into the encode nodes
// wired to each sampler's conditioning inputs.
func (w Workflow) SetPrompts(positive, negative string) error {
	set := 0
	for _, node := range w {
		if node.ClassType != classKSampler && node.ClassType != classKSamplerAdv {
			continue
		}
		if enc := w.encodeTarget(node, "positive"); enc != nil {
			enc.Inputs["text"] = positive
			set++
		}
		if enc := w.encodeTarget(node, "negative"); enc != nil {
			enc.Inputs["text"] = negative
			set++
		}
	}
	if set == 0 {
		return fmt.Errorf("workflow: no prompt encode nodes reachable from samplers")
	}
	return nil
}

// encodeTarget follows a sampler's named conditioning input to its text
// encode node, if the reference resolves to one.
func (w Workflow) encodeTarget(sampler *Node, input string) *Node {
	id, ok := refTarget(sampler.Inputs[input])
	if !ok {
		return nil
	}
	node, ok := w[id]
	if !ok || node.ClassType != classTextEncode {
		return nil
	}
	return node
}

func refTarget(v any) (string, bool) {
	ref, ok := v.([]any)
	if !ok || len(ref) != 2 {
		return "", false
	}
	id, ok := ref[0].(string)
	return id, ok
}

// SetCheckpoint swaps the base model on every checkpoint loader node.
func (w Workflow) SetCheckpoint(name string) {
	if strings.TrimSpace(name) == "" {
		return
	}
	for _, node := range w {
		if node.ClassType == classCheckpoint {
			node.Inputs["ckpt_name"] = name
		}
	}
}

// AdapterSlots reports how many adapter slots the workflow's loader node
// exposes (0 when the template carries no loader).
func (w Workflow) AdapterSlots() int {
	node := w.adapterLoader()
	if node == nil {
		return 0
	}
	return countSlots(node)
}

// SetAdapters rewrites the adapter loader's slots in order. Adapters beyond
// the slot count are dropped; remaining slots are blanked.
func (w Workflow) SetAdapters(adapters []domain.AdapterRef) {
	node := w.adapterLoader()
	if node == nil {
		return
	}
	slots := countSlots(node)
	for i := 1; i <= slots; i++ {
		nameKey := fmt.Sprintf("%s%d", loraSlotPrefix, i)
		strengthKey := fmt.Sprintf("strength_%d", i)
		if i <= len(adapters) {
			node.Inputs[nameKey] = adapters[i-1].Name
			node.Inputs[strengthKey] = adapters[i-1].Weight
		} else {
			node.Inputs[nameKey] = "None"
			node.Inputs[strengthKey] = 0.0
		}
	}
}

func (w Workflow) adapterLoader() *Node {
	for _, node := range w {
		if strings.HasPrefix(node.ClassType, "LoraLoaderStack") {
			return node
		}
	}
	return nil
}

func countSlots(node *Node) int {
	count := 0
	for key := range node.Inputs {
		if strings.HasPrefix(key, loraSlotPrefix) {
			count++
		}
	}
	return count
}

// SetConditioningDir points every folder-based image loader at the prepared
// reference directory on the engine host.
func (w Workflow) SetConditioningDir(dir string) {
	for _, node := range w {
		if node.ClassType == classImageFolderLoad {
			node.Inputs["directory"] = dir
		}
	}
}

// SetDimensions resizes the latent canvas.
func (w Workflow) SetDimensions(width, height int) {
	for _, node := range w {
		if node.ClassType == classEmptyLatent {
			node.Inputs["width"] = width
			node.Inputs["height"] = height
		}
	}
}

// SetFilenamePrefix names the engine-side output files of the save node.
func (w Workflow) SetFilenamePrefix(prefix string) {
	for _, node := range w {
		if node.ClassType == classSaveImage {
			node.Inputs["filename_prefix"] = prefix
		}
	}
}
