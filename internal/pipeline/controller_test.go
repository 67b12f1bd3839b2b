package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"charforge/internal/domain"
	"charforge/internal/engine"
	"charforge/internal/generation"
	"charforge/internal/prompt"
	"charforge/internal/styles"
	"charforge/internal/workflow"
)

type prepareCall struct {
	folder    string
	filenames []string
}

type fakeFolders struct {
	prepares   []prepareCall
	prepareErr error
	cleanups   []string
	cleanupErr error
}

func (f *fakeFolders) PrepareFolder(ctx context.Context, folder string, images []engine.FolderImage) error {
	if f.prepareErr != nil {
		return f.prepareErr
	}
	names := make([]string, len(images))
	for i, img := range images {
		names[i] = img.Filename
	}
	f.prepares = append(f.prepares, prepareCall{folder: folder, filenames: names})
	return nil
}

func (f *fakeFolders) CleanupFolder(ctx context.Context, folder string) error {
	f.cleanups = append(f.cleanups, folder)
	return f.cleanupErr
}

type fakeRunner struct {
	workflows []workflow.Workflow
	failAt    int
	err       error
}

func (f *fakeRunner) Run(ctx context.Context, wf workflow.Workflow) (*generation.Result, error) {
	f.workflows = append(f.workflows, wf)
	if f.err != nil && len(f.workflows) == f.failAt {
		return nil, f.err
	}
	n := len(f.workflows)
	return &generation.Result{
		Bytes:    []byte(fmt.Sprintf("image-%d", n)),
		Filename: fmt.Sprintf("out_%05d_.png", n),
		JobID:    fmt.Sprintf("job-%d", n),
	}, nil
}

type memObjects struct {
	data    map[string][]byte
	deleted []string
}

func newMemObjects() *memObjects {
	return &memObjects{data: make(map[string][]byte)}
}

func (m *memObjects) Upload(ctx context.Context, key string, data []byte, contentType, cacheControl string) (string, error) {
	m.data[key] = data
	return "https://cdn.test/" + key, nil
}

func (m *memObjects) Fetch(ctx context.Context, key string) ([]byte, error) {
	data, ok := m.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (m *memObjects) Delete(ctx context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	delete(m.data, key)
	return nil
}

type memImages struct {
	set     domain.ReferenceSet
	created []*domain.ReferenceImage
}

func (m *memImages) Create(ctx context.Context, img *domain.ReferenceImage) error {
	m.created = append(m.created, img)
	m.set = append(m.set, *img)
	return nil
}

func (m *memImages) ListByCharacter(ctx context.Context, characterID string) (domain.ReferenceSet, error) {
	return append(domain.ReferenceSet(nil), m.set...), nil
}

func (m *memImages) DeleteByView(ctx context.Context, characterID string, view domain.ViewKind) error {
	out := m.set[:0]
	for _, img := range m.set {
		if img.View != view {
			out = append(out, img)
		}
	}
	m.set = out
	return nil
}

type memCharacters struct {
	chars map[string]*domain.Character
}

func (m *memCharacters) GetByID(ctx context.Context, id string) (*domain.Character, error) {
	char, ok := m.chars[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return char, nil
}

type fixture struct {
	controller *Controller
	folders    *fakeFolders
	runner     *fakeRunner
	objects    *memObjects
	images     *memImages
}

func newFixture(t *testing.T, char *domain.Character) *fixture {
	t.Helper()
	store, err := workflow.NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	folders := &fakeFolders{}
	runner := &fakeRunner{}
	objects := newMemObjects()
	images := &memImages{}
	chars := &memCharacters{chars: map[string]*domain.Character{char.ID: char}}
	controller := NewController(Options{
		Engine:     folders,
		Templates:  store,
		Styles:     styles.NewResolver(),
		Composer:   prompt.NewComposer(prompt.ComposerOptions{}),
		Runner:     runner,
		Objects:    objects,
		Images:     images,
		Characters: chars,
		Now:        func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	return &fixture{controller: controller, folders: folders, runner: runner, objects: objects, images: images}
}

func seedAvatar(f *fixture, charID string) {
	key := "characters/" + charID + "/references/20250101000000_avatar.jpg"
	f.objects.data[key] = []byte("avatar-bytes")
	f.images.set = append(f.images.set, domain.ReferenceImage{
		ID: "img-avatar", CharacterID: charID, View: domain.ViewAvatar, StorageKey: key,
	})
}

func seedView(f *fixture, charID string, view domain.ViewKind) string {
	key := fmt.Sprintf("characters/%s/references/20250101000000_%s.jpg", charID, view)
	f.objects.data[key] = []byte(string(view) + "-bytes")
	f.images.set = append(f.images.set, domain.ReferenceImage{
		ID: "img-" + string(view), CharacterID: charID, View: view, StorageKey: key,
	})
	return key
}

func nodeByClass(t *testing.T, wf workflow.Workflow, class string) *workflow.Node {
	t.Helper()
	for _, node := range wf {
		if node.ClassType == class {
			return node
		}
	}
	t.Fatalf("workflow has no %s node", class)
	return nil
}

func testChar() *domain.Character {
	return &domain.Character{
		ID:       "char-1",
		Name:     "mira",
		Gender:   domain.GenderFemale,
		HairTags: "long silver hair",
	}
}

func TestGenerateViewsRequiresAvatar(t *testing.T) {
	f := newFixture(t, testChar())
	_, err := f.controller.GenerateViews(context.Background(), GenerateViewsRequest{
		CharacterID: "char-1",
		Views:       []domain.ViewKind{domain.ViewFace},
	})
	if !errors.Is(err, domain.ErrAvatarRequired) {
		t.Fatalf("err = %v, want ErrAvatarRequired", err)
	}
	if len(f.folders.prepares) != 0 {
		t.Fatal("folder must not be prepared without an avatar")
	}
}

func TestGenerateViewsSequencesStages(t *testing.T) {
	f := newFixture(t, testChar())
	seedAvatar(f, "char-1")
	f.objects.data["samples/a.png"] = []byte("sample-a")
	f.objects.data["samples/b.png"] = []byte("sample-b")

	var progress []domain.Progress
	results, err := f.controller.GenerateViews(context.Background(), GenerateViewsRequest{
		CharacterID: "char-1",
		Views:       []domain.ViewKind{domain.ViewFront, domain.ViewFace},
		SampleKeys:  []string{"samples/a.png", "samples/b.png"},
		OnProgress:  func(p domain.Progress) { progress = append(progress, p) },
	})
	if err != nil {
		t.Fatalf("GenerateViews: %v", err)
	}

	if len(results) != 2 || results[0].View != domain.ViewFace || results[1].View != domain.ViewFront {
		t.Fatalf("results out of canonical order: %+v", results)
	}
	if len(f.runner.workflows) != 2 {
		t.Fatalf("runner invocations = %d, want 2", len(f.runner.workflows))
	}

	if len(f.folders.prepares) != 2 {
		t.Fatalf("prepare calls = %d, want 2", len(f.folders.prepares))
	}
	first := f.folders.prepares[0]
	wantFirst := []string{"avatar.png", "sample_1.png", "sample_2.png"}
	if fmt.Sprint(first.filenames) != fmt.Sprint(wantFirst) {
		t.Fatalf("first folder context = %v, want %v", first.filenames, wantFirst)
	}
	second := f.folders.prepares[1]
	wantSecond := []string{"avatar.png", "sample_1.png", "sample_2.png", "face.png"}
	if fmt.Sprint(second.filenames) != fmt.Sprint(wantSecond) {
		t.Fatalf("second folder context = %v, want %v", second.filenames, wantSecond)
	}
	if first.folder != second.folder || !strings.HasPrefix(first.folder, "ref_char-1_") {
		t.Fatalf("folder naming: first %q second %q", first.folder, second.folder)
	}

	if len(f.folders.cleanups) != 1 {
		t.Fatalf("cleanup calls = %d, want exactly 1", len(f.folders.cleanups))
	}
	if len(progress) != 2 || progress[0].Stage != 1 || progress[0].Total != 2 || progress[1].Stage != 2 {
		t.Fatalf("progress = %+v", progress)
	}
	if len(progress[1].Completed) != 2 {
		t.Fatalf("final progress completed = %+v", progress[1].Completed)
	}

	if len(f.images.created) != 2 {
		t.Fatalf("records created = %d, want 2", len(f.images.created))
	}
	rec := f.images.created[0]
	wantKey := "characters/char-1/references/20250601120000_face.jpg"
	if rec.StorageKey != wantKey {
		t.Fatalf("storage key = %q, want %q", rec.StorageKey, wantKey)
	}
	if results[0].URL != "https://cdn.test/"+wantKey {
		t.Fatalf("result url = %q", results[0].URL)
	}
	if _, ok := f.objects.data[wantKey]; !ok {
		t.Fatalf("object %q not stored", wantKey)
	}
}

func TestGenerateViewsDeletesStaleBeforeRegenerating(t *testing.T) {
	f := newFixture(t, testChar())
	seedAvatar(f, "char-1")
	staleKey := seedView(f, "char-1", domain.ViewFront)

	_, err := f.controller.GenerateViews(context.Background(), GenerateViewsRequest{
		CharacterID: "char-1",
		Views:       []domain.ViewKind{domain.ViewFront},
	})
	if err != nil {
		t.Fatalf("GenerateViews: %v", err)
	}
	if len(f.objects.deleted) != 1 || f.objects.deleted[0] != staleKey {
		t.Fatalf("deleted = %v, want [%s]", f.objects.deleted, staleKey)
	}
	if f.images.set.Find(domain.ViewFront) == nil {
		t.Fatal("regenerated front view missing from set")
	}
	if f.images.set.Find(domain.ViewFront).StorageKey == staleKey {
		t.Fatal("stale record survived regeneration")
	}
}

func TestGenerateViewsKeepsPersistedViewsInLaterContext(t *testing.T) {
	f := newFixture(t, testChar())
	seedAvatar(f, "char-1")
	seedView(f, "char-1", domain.ViewSide)

	_, err := f.controller.GenerateViews(context.Background(), GenerateViewsRequest{
		CharacterID: "char-1",
		Views:       []domain.ViewKind{domain.ViewFace, domain.ViewFront},
	})
	if err != nil {
		t.Fatalf("GenerateViews: %v", err)
	}
	second := f.folders.prepares[1]
	var hasSide, hasFace bool
	for _, name := range second.filenames {
		switch name {
		case "side.png":
			hasSide = true
		case "face.png":
			hasFace = true
		}
	}
	if !hasSide || !hasFace {
		t.Fatalf("second context must include persisted side and fresh face: %v", second.filenames)
	}
}

func TestGenerateViewsCleansUpOnceOnFailure(t *testing.T) {
	f := newFixture(t, testChar())
	seedAvatar(f, "char-1")
	stageErr := errors.New("engine exploded")
	f.runner.err = stageErr
	f.runner.failAt = 2

	results, err := f.controller.GenerateViews(context.Background(), GenerateViewsRequest{
		CharacterID: "char-1",
		Views:       []domain.ViewKind{domain.ViewFace, domain.ViewFront},
	})
	if !errors.Is(err, stageErr) {
		t.Fatalf("err = %v, want wrapped stage error", err)
	}
	if len(results) != 1 || results[0].View != domain.ViewFace {
		t.Fatalf("partial results = %+v", results)
	}
	if len(f.folders.cleanups) != 1 {
		t.Fatalf("cleanup calls = %d, want exactly 1", len(f.folders.cleanups))
	}
}

func TestGenerateViewsStyleConfiguresWorkflow(t *testing.T) {
	char := testChar()
	char.Style = "chibi"
	f := newFixture(t, char)
	seedAvatar(f, "char-1")

	_, err := f.controller.GenerateViews(context.Background(), GenerateViewsRequest{
		CharacterID: "char-1",
		Views:       []domain.ViewKind{domain.ViewFace},
	})
	if err != nil {
		t.Fatalf("GenerateViews: %v", err)
	}
	wf := f.runner.workflows[0]
	ckpt := nodeByClass(t, wf, "CheckpointLoaderSimple")
	if got := ckpt.Inputs["ckpt_name"]; got != "animagineXL_v31.safetensors" {
		t.Fatalf("ckpt_name = %v", got)
	}
	var stack *workflow.Node
	for _, node := range wf {
		if strings.HasPrefix(node.ClassType, "LoraLoaderStack") {
			stack = node
			break
		}
	}
	if stack == nil {
		t.Fatal("workflow has no lora stack node")
	}
	if got := stack.Inputs["lora_name_1"]; got != "chibi_style_xl.safetensors" {
		t.Fatalf("lora_name_1 = %v", got)
	}
}

func TestGenerateViewsWithoutStyleLeavesModelNodesUntouched(t *testing.T) {
	f := newFixture(t, testChar())
	seedAvatar(f, "char-1")
	store, err := workflow.NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	pristine, err := store.Instantiate(domain.GenerationView, true)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	wantCkpt := nodeByClass(t, pristine, "CheckpointLoaderSimple").Inputs["ckpt_name"]

	_, err = f.controller.GenerateViews(context.Background(), GenerateViewsRequest{
		CharacterID: "char-1",
		Views:       []domain.ViewKind{domain.ViewFace},
	})
	if err != nil {
		t.Fatalf("GenerateViews: %v", err)
	}
	wf := f.runner.workflows[0]
	if got := nodeByClass(t, wf, "CheckpointLoaderSimple").Inputs["ckpt_name"]; got != wantCkpt {
		t.Fatalf("ckpt_name = %v, want template default %v", got, wantCkpt)
	}
	if got := nodeByClass(t, wf, "LoadImageSetFromFolder").Inputs["directory"]; !strings.HasPrefix(got.(string), "ref_char-1_") {
		t.Fatalf("conditioning directory = %v", got)
	}
	desc, _ := domain.DescriptorFor(domain.ViewFace)
	latent := nodeByClass(t, wf, "EmptyLatentImage")
	if latent.Inputs["width"] != desc.Width || latent.Inputs["height"] != desc.Height {
		t.Fatalf("dimensions = %vx%v", latent.Inputs["width"], latent.Inputs["height"])
	}
}

func TestGenerateAvatar(t *testing.T) {
	f := newFixture(t, testChar())
	f.objects.data["samples/a.png"] = []byte("sample-a")

	res, err := f.controller.GenerateAvatar(context.Background(), GenerateAvatarRequest{
		CharacterID: "char-1",
		SampleKeys:  []string{"samples/a.png"},
	})
	if err != nil {
		t.Fatalf("GenerateAvatar: %v", err)
	}
	if res.View != domain.ViewAvatar {
		t.Fatalf("view = %s", res.View)
	}
	if len(f.folders.prepares) != 1 || len(f.folders.cleanups) != 1 {
		t.Fatalf("folder lifecycle: prepares %d cleanups %d", len(f.folders.prepares), len(f.folders.cleanups))
	}
	if f.images.set.Avatar() == nil {
		t.Fatal("avatar record missing")
	}
}

func TestGenerateAvatarWithoutSamplesSkipsFolder(t *testing.T) {
	f := newFixture(t, testChar())

	_, err := f.controller.GenerateAvatar(context.Background(), GenerateAvatarRequest{CharacterID: "char-1"})
	if err != nil {
		t.Fatalf("GenerateAvatar: %v", err)
	}
	if len(f.folders.prepares) != 0 || len(f.folders.cleanups) != 0 {
		t.Fatalf("folder lifecycle must be skipped: prepares %d cleanups %d", len(f.folders.prepares), len(f.folders.cleanups))
	}
	wf := f.runner.workflows[0]
	for _, node := range wf {
		if node.ClassType == "LoadImageSetFromFolder" {
			t.Fatal("unconditioned avatar template must not load a reference folder")
		}
	}
}

func TestGenerateAvatarReplacesPrevious(t *testing.T) {
	f := newFixture(t, testChar())
	seedAvatar(f, "char-1")
	staleKey := f.images.set.Avatar().StorageKey

	if _, err := f.controller.GenerateAvatar(context.Background(), GenerateAvatarRequest{CharacterID: "char-1"}); err != nil {
		t.Fatalf("GenerateAvatar: %v", err)
	}
	if len(f.objects.deleted) != 1 || f.objects.deleted[0] != staleKey {
		t.Fatalf("deleted = %v, want [%s]", f.objects.deleted, staleKey)
	}
	avatar := f.images.set.Avatar()
	if avatar == nil || avatar.StorageKey == staleKey {
		t.Fatalf("avatar not replaced: %+v", avatar)
	}
}

func TestOrderViewsDedupesAndOrders(t *testing.T) {
	got := orderViews([]domain.ViewKind{domain.ViewBack, domain.ViewFace, domain.ViewBack})
	if len(got) != 2 || got[0] != domain.ViewFace || got[1] != domain.ViewBack {
		t.Fatalf("orderViews = %v", got)
	}
	if out := orderViews([]domain.ViewKind{domain.ViewAvatar}); len(out) != 0 {
		t.Fatalf("avatar must never enter a multi-view run: %v", out)
	}
}
