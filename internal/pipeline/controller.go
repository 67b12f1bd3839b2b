package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"charforge/internal/domain"
	"charforge/internal/engine"
	"charforge/internal/generation"
	"charforge/internal/infra"
	"charforge/internal/prompt"
	"charforge/internal/styles"
	"charforge/internal/workflow"
	"charforge/pkg/imaging"
)

// EngineFolders is the subset of the engine API the controller uses for the
// ephemeral reference-folder lifecycle.
type EngineFolders interface {
	PrepareFolder(ctx context.Context, folder string, images []engine.FolderImage) error
	CleanupFolder(ctx context.Context, folder string) error
}

// Runner executes one filled-in workflow to completion.
type Runner interface {
	Run(ctx context.Context, wf workflow.Workflow) (*generation.Result, error)
}

// Options wires the controller's collaborators.
type Options struct {
	Engine     EngineFolders
	Templates  *workflow.Store
	Styles     *styles.Resolver
	Composer   *prompt.Composer
	Runner     Runner
	Objects    domain.ObjectStore
	Images     domain.ReferenceImageRepository
	Characters domain.CharacterRepository
	Logger     *infra.Logger
	Now        func() time.Time
}

// Controller sequences the view-by-view generation of a character's
// reference set. It exclusively owns the reference set's lifecycle and the
// ephemeral reference folder on the engine host.
type Controller struct {
	engine     EngineFolders
	templates  *workflow.Store
	styles     *styles.Resolver
	composer   *prompt.Composer
	runner     Runner
	objects    domain.ObjectStore
	images     domain.ReferenceImageRepository
	characters domain.CharacterRepository
	logger     *infra.Logger
	now        func() time.Time
}

// GenerateViewsRequest describes one multi-view run.
type GenerateViewsRequest struct {
	CharacterID string
	Views       []domain.ViewKind
	UserInput   string
	SampleKeys  []string
	OnProgress  func(domain.Progress)
}

// GenerateAvatarRequest describes one avatar run.
type GenerateAvatarRequest struct {
	CharacterID string
	UserInput   string
	SampleKeys  []string
}

const jpegQuality = 88

// NewController constructs a pipeline controller.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		engine:     opts.Engine,
		templates:  opts.Templates,
		styles:     opts.Styles,
		composer:   opts.Composer,
		runner:     opts.Runner,
		objects:    opts.Objects,
		images:     opts.Images,
		characters: opts.Characters,
		logger:     logger,
		now:        now,
	}
}

// GenerateViews produces or refreshes the requested subset of the
// character's reference views. The character must already own an avatar.
// Stages run strictly sequentially; each stage after the first conditions on
// every image available at that point, including views produced earlier in
// the same run.
func (c *Controller) GenerateViews(ctx context.Context, req GenerateViewsRequest) ([]domain.StageResult, error) {
	char, err := c.characters.GetByID(ctx, req.CharacterID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load character: %w", err)
	}
	set, err := c.images.ListByCharacter(ctx, char.ID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load reference set: %w", err)
	}
	avatar := set.Avatar()
	if avatar == nil {
		return nil, domain.ErrAvatarRequired
	}
	requested := orderViews(req.Views)
	if len(requested) == 0 {
		return nil, fmt.Errorf("pipeline: no views requested")
	}

	// Regenerated views lose their previous artifact first, storage before
	// database, so a failed run never leaves orphaned duplicates.
	for _, view := range requested {
		prev := set.Find(view)
		if prev == nil {
			continue
		}
		if err := c.objects.Delete(ctx, prev.StorageKey); err != nil {
			return nil, fmt.Errorf("pipeline: delete stale object %s: %w", prev.StorageKey, err)
		}
		if err := c.images.DeleteByView(ctx, char.ID, view); err != nil {
			return nil, fmt.Errorf("pipeline: delete stale record %s: %w", view, err)
		}
	}

	avatarBytes, err := c.objects.Fetch(ctx, avatar.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch avatar: %w", err)
	}
	samples, err := c.fetchSamples(ctx, req.SampleKeys)
	if err != nil {
		return nil, err
	}

	folder := "ref_" + char.ID + "_" + uuid.NewString()[:8]
	cleaned := false
	cleanup := func() {
		if cleaned {
			return
		}
		cleaned = true
		if err := c.engine.CleanupFolder(context.WithoutCancel(ctx), folder); err != nil {
			c.logger.Warn().Err(err).Str("folder", folder).Msg("pipeline: reference folder cleanup failed")
		}
	}
	defer cleanup()

	base := []engine.FolderImage{{Filename: "avatar.png", Data: avatarBytes}}
	base = append(base, samples...)
	if err := c.engine.PrepareFolder(ctx, folder, base); err != nil {
		return nil, fmt.Errorf("pipeline: prepare reference folder: %w", err)
	}

	batch := c.now().UTC().Format("20060102150405")
	requestedSet := make(map[domain.ViewKind]bool, len(requested))
	for _, v := range requested {
		requestedSet[v] = true
	}

	var completed []domain.StageResult
	produced := make([]engine.FolderImage, 0, len(requested))
	conditioningCount := len(base)

	for i, view := range requested {
		if i > 0 {
			// The engine's conditioning is folder-based: rebuild from scratch so
			// the context reflects cumulative progress, not the initial state.
			images := make([]engine.FolderImage, 0, len(base)+len(set)+len(produced))
			images = append(images, base...)
			for _, kept := range set {
				if kept.View == domain.ViewAvatar || requestedSet[kept.View] {
					continue
				}
				data, err := c.objects.Fetch(ctx, kept.StorageKey)
				if err != nil {
					return completed, fmt.Errorf("pipeline: fetch persisted %s view: %w", kept.View, err)
				}
				images = append(images, engine.FolderImage{Filename: string(kept.View) + ".png", Data: data})
			}
			images = append(images, produced...)
			if err := c.engine.PrepareFolder(ctx, folder, images); err != nil {
				return completed, fmt.Errorf("pipeline: refresh reference folder: %w", err)
			}
			conditioningCount = len(images)
		}

		result, err := c.runStage(ctx, char, view, folder, batch, req.UserInput, conditioningCount)
		if err != nil {
			return completed, err
		}
		completed = append(completed, domain.StageResult{View: view, URL: result.url})
		produced = append(produced, engine.FolderImage{Filename: string(view) + ".png", Data: result.data})
		if req.OnProgress != nil {
			req.OnProgress(domain.Progress{
				Stage:     i + 1,
				Total:     len(requested),
				Message:   fmt.Sprintf("Generated %s view", view),
				Completed: append([]domain.StageResult(nil), completed...),
			})
		}
	}
	cleanup()
	return completed, nil
}

type stageOutput struct {
	url  string
	data []byte
}

// runStage resolves style and prompt, instantiates and fills the view
// template, runs it, and persists the compressed result. The database record
// is only written after the storage object is confirmed.
func (c *Controller) runStage(ctx context.Context, char *domain.Character, view domain.ViewKind, folder, batch, userInput string, conditioningCount int) (*stageOutput, error) {
	desc, ok := domain.DescriptorFor(view)
	if !ok {
		return nil, fmt.Errorf("pipeline: unknown view %q", view)
	}
	styleCfg := c.styles.Resolve(char.Style, char.Theme)
	composed := c.composer.Compose(ctx, prompt.ComposeRequest{
		Character:         char,
		View:              view,
		GenerationType:    domain.GenerationView,
		Style:             styleCfg,
		UserInput:         userInput,
		ConditioningCount: conditioningCount,
	})

	wf, err := c.templates.Instantiate(domain.GenerationView, true)
	if err != nil {
		return nil, fmt.Errorf("pipeline: instantiate %s template: %w", view, err)
	}
	if err := wf.SetPrompts(composed.Positive, composed.Negative); err != nil {
		return nil, fmt.Errorf("pipeline: inject prompts: %w", err)
	}
	wf.SetSeed(c.stageSeed())
	wf.SetDimensions(desc.Width, desc.Height)
	wf.SetConditioningDir(folder)
	wf.SetFilenamePrefix(fmt.Sprintf("charforge_%s_%s", char.ID, view))
	if styleCfg != nil {
		wf.SetCheckpoint(styleCfg.Checkpoint)
		wf.SetAdapters(composed.Adapters)
	}

	result, err := c.runner.Run(ctx, wf)
	if err != nil {
		return nil, fmt.Errorf("pipeline: stage %s: %w", view, err)
	}

	data := result.Bytes
	if compressed, err := imaging.CompressJPEG(data, jpegQuality); err == nil {
		data = compressed
	} else {
		c.logger.Warn().Err(err).Str("view", string(view)).Msg("pipeline: compression failed, storing original bytes")
	}

	key := fmt.Sprintf("characters/%s/references/%s_%s.jpg", char.ID, batch, view)
	url, err := c.objects.Upload(ctx, key, data, "image/jpeg", "public, max-age=31536000")
	if err != nil {
		return nil, fmt.Errorf("pipeline: persist %s view: %w", view, err)
	}
	rec := &domain.ReferenceImage{
		ID:          uuid.NewString(),
		CharacterID: char.ID,
		View:        view,
		StorageKey:  key,
		URL:         url,
		Width:       desc.Width,
		Height:      desc.Height,
		CreatedAt:   c.now().UTC(),
	}
	if err := c.images.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("pipeline: record %s view: %w", view, err)
	}
	c.logger.Info().Str("character_id", char.ID).Str("view", string(view)).Str("key", key).Msg("pipeline: stage persisted")
	return &stageOutput{url: url, data: data}, nil
}

// GenerateAvatar produces the character's avatar, replacing any previous
// one. User samples, when present, select the conditioning-aware template.
func (c *Controller) GenerateAvatar(ctx context.Context, req GenerateAvatarRequest) (*domain.StageResult, error) {
	char, err := c.characters.GetByID(ctx, req.CharacterID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load character: %w", err)
	}
	set, err := c.images.ListByCharacter(ctx, char.ID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load reference set: %w", err)
	}
	if prev := set.Avatar(); prev != nil {
		if err := c.objects.Delete(ctx, prev.StorageKey); err != nil {
			return nil, fmt.Errorf("pipeline: delete stale avatar object: %w", err)
		}
		if err := c.images.DeleteByView(ctx, char.ID, domain.ViewAvatar); err != nil {
			return nil, fmt.Errorf("pipeline: delete stale avatar record: %w", err)
		}
	}
	samples, err := c.fetchSamples(ctx, req.SampleKeys)
	if err != nil {
		return nil, err
	}

	folder := ""
	cleaned := false
	cleanup := func() {}
	if len(samples) > 0 {
		folder = "ref_" + char.ID + "_" + uuid.NewString()[:8]
		if err := c.engine.PrepareFolder(ctx, folder, samples); err != nil {
			return nil, fmt.Errorf("pipeline: prepare reference folder: %w", err)
		}
		cleanup = func() {
			if cleaned {
				return
			}
			cleaned = true
			if err := c.engine.CleanupFolder(context.WithoutCancel(ctx), folder); err != nil {
				c.logger.Warn().Err(err).Str("folder", folder).Msg("pipeline: reference folder cleanup failed")
			}
		}
		defer cleanup()
	}

	desc, _ := domain.DescriptorFor(domain.ViewAvatar)
	styleCfg := c.styles.Resolve(char.Style, char.Theme)
	composed := c.composer.Compose(ctx, prompt.ComposeRequest{
		Character:         char,
		View:              domain.ViewAvatar,
		GenerationType:    domain.GenerationAvatar,
		Style:             styleCfg,
		UserInput:         req.UserInput,
		ConditioningCount: len(samples),
	})
	wf, err := c.templates.Instantiate(domain.GenerationAvatar, len(samples) > 0)
	if err != nil {
		return nil, fmt.Errorf("pipeline: instantiate avatar template: %w", err)
	}
	if err := wf.SetPrompts(composed.Positive, composed.Negative); err != nil {
		return nil, fmt.Errorf("pipeline: inject prompts: %w", err)
	}
	wf.SetSeed(c.stageSeed())
	wf.SetDimensions(desc.Width, desc.Height)
	if folder != "" {
		wf.SetConditioningDir(folder)
	}
	wf.SetFilenamePrefix("charforge_" + char.ID + "_avatar")
	if styleCfg != nil {
		wf.SetCheckpoint(styleCfg.Checkpoint)
		wf.SetAdapters(composed.Adapters)
	}

	result, err := c.runner.Run(ctx, wf)
	if err != nil {
		return nil, fmt.Errorf("pipeline: avatar stage: %w", err)
	}
	data := result.Bytes
	if compressed, err := imaging.CompressJPEG(data, jpegQuality); err == nil {
		data = compressed
	}
	batch := c.now().UTC().Format("20060102150405")
	key := fmt.Sprintf("characters/%s/references/%s_avatar.jpg", char.ID, batch)
	url, err := c.objects.Upload(ctx, key, data, "image/jpeg", "public, max-age=31536000")
	if err != nil {
		return nil, fmt.Errorf("pipeline: persist avatar: %w", err)
	}
	rec := &domain.ReferenceImage{
		ID:          uuid.NewString(),
		CharacterID: char.ID,
		View:        domain.ViewAvatar,
		StorageKey:  key,
		URL:         url,
		Width:       desc.Width,
		Height:      desc.Height,
		CreatedAt:   c.now().UTC(),
	}
	if err := c.images.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("pipeline: record avatar: %w", err)
	}
	cleanup()
	return &domain.StageResult{View: domain.ViewAvatar, URL: url}, nil
}

func (c *Controller) fetchSamples(ctx context.Context, keys []string) ([]engine.FolderImage, error) {
	var out []engine.FolderImage
	for i, key := range keys {
		data, err := c.objects.Fetch(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("pipeline: fetch sample %s: %w", key, err)
		}
		out = append(out, engine.FolderImage{Filename: fmt.Sprintf("sample_%d.png", i+1), Data: data})
	}
	return out, nil
}

// stageSeed derives a fresh per-stage seed from wall-clock time, scaled and
// reduced modulo 2^32 so consecutive stages never share one.
func (c *Controller) stageSeed() uint32 {
	ns := c.now().UnixNano()
	return uint32((ns * 1000003) % (1 << 32))
}

// orderViews dedupes the requested views and fixes them into canonical
// generation order. The avatar is never part of a multi-view run.
func orderViews(views []domain.ViewKind) []domain.ViewKind {
	requested := make(map[domain.ViewKind]bool, len(views))
	for _, v := range views {
		requested[v] = true
	}
	var out []domain.ViewKind
	for _, v := range domain.CanonicalViewOrder {
		if requested[v] {
			out = append(out, v)
		}
	}
	return out
}
