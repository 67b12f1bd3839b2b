package workflow

import (
	"errors"
	"reflect"
	"testing"

	"charforge/internal/domain"
)

func TestInstantiateAllTypesHaveSaveNode(t *testing.T) {
	store, err := NewStore()
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	types := []domain.GenerationType{
		domain.GenerationAvatar,
		domain.GenerationCover,
		domain.GenerationSticker,
		domain.GenerationView,
		domain.GenerationMultiRef,
	}
	for _, genType := range types {
		for _, conditioned := range []bool{false, true} {
			wf, err := store.Instantiate(genType, conditioned)
			if err != nil {
				t.Fatalf("instantiate %s (conditioned=%v): %v", genType, conditioned, err)
			}
			if _, err := wf.OutputNode(); err != nil {
				t.Fatalf("%s (conditioned=%v) missing save node: %v", genType, conditioned, err)
			}
		}
	}
}

func TestInstantiateSelectsConditionedVariant(t *testing.T) {
	store, err := NewStore()
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	plain, err := store.Instantiate(domain.GenerationAvatar, false)
	if err != nil {
		t.Fatalf("plain avatar: %v", err)
	}
	conditioned, err := store.Instantiate(domain.GenerationAvatar, true)
	if err != nil {
		t.Fatalf("conditioned avatar: %v", err)
	}
	if hasFolderLoader(plain) {
		t.Fatalf("plain avatar template must not carry a folder loader")
	}
	if !hasFolderLoader(conditioned) {
		t.Fatalf("conditioned avatar template must carry a folder loader")
	}
}

func hasFolderLoader(wf Workflow) bool {
	for _, node := range wf {
		if node.ClassType == "LoadImageSetFromFolder" {
			return true
		}
	}
	return false
}

func TestInstantiateUnsupportedType(t *testing.T) {
	store, err := NewStore()
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Instantiate(domain.GenerationType("poster"), false); !errors.Is(err, domain.ErrUnsupportedGenerationType) {
		t.Fatalf("err = %v, want ErrUnsupportedGenerationType", err)
	}
}

func TestInstantiateReturnsIndependentCopies(t *testing.T) {
	store, err := NewStore()
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	first, err := store.Instantiate(domain.GenerationView, true)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := store.Instantiate(domain.GenerationView, true)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("fresh instantiations must be identical")
	}
	first.SetSeed(999)
	if err := first.SetPrompts("mutated", "mutated"); err != nil {
		t.Fatalf("set prompts: %v", err)
	}
	third, err := store.Instantiate(domain.GenerationView, true)
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if !reflect.DeepEqual(second, third) {
		t.Fatalf("mutating an instantiation leaked into the template")
	}
}

func TestAdapterSlotCounts(t *testing.T) {
	store, err := NewStore()
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	view, _ := store.Instantiate(domain.GenerationView, true)
	if got := view.AdapterSlots(); got != 4 {
		t.Fatalf("view slots = %d, want 4", got)
	}
	multi, _ := store.Instantiate(domain.GenerationMultiRef, true)
	if got := multi.AdapterSlots(); got != 10 {
		t.Fatalf("multiref slots = %d, want 10", got)
	}
	sticker, _ := store.Instantiate(domain.GenerationSticker, false)
	if got := sticker.AdapterSlots(); got != 0 {
		t.Fatalf("sticker slots = %d, want 0", got)
	}
}
