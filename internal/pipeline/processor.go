package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"editserver/internal/cache"
	"editserver/internal/domain"
	"editserver/internal/infra"
	"editserver/internal/providers/prompt"
	"editserver/internal/storage"
)

// EditStore is the persistence surface the processor needs. Every write is a
// single-row statement so a crash between stages leaves a consistent,
// resumable record.
type EditStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Edit, error)
	UpdateStatus(ctx context.Context, id int64, status domain.EditStatus) error
	UpdateStage(ctx context.Context, id int64, stage string) error
	UpdateStatusAndStage(ctx context.Context, id int64, status domain.EditStatus, stage string) error
	SetEnhancedPrompt(ctx context.Context, id int64, enhanced string) error
	CompleteWithResult(ctx context.Context, id int64, editedURL string) error
}

// Invalidator drops cached projections after a state write so pollers never
// see a stage older than what the database holds.
type Invalidator interface {
	Invalidate(ctx context.Context, ns cache.Namespace, id string)
}

// Editor produces the edited image from the source image and prompt.
type Editor interface {
	Edit(ctx context.Context, image []byte, promptText string) ([]byte, error)
}

// Processor drives a single edit through the stage sequence. Process is safe
// to call more than once for the same edit: terminal records are left alone.
type Processor struct {
	store    EditStore
	cache    Invalidator
	fetcher  storage.Fetcher
	uploads  storage.Store
	editor   Editor
	enhancer prompt.Enhancer

	fetchRetry  RetryPolicy
	uploadRetry RetryPolicy
	sleep       func(ctx context.Context, d time.Duration) error
	log         infra.Logger
}

// Options configures a Processor. Enhancer may be nil, in which case the
// enhancement stage records the stage transition and moves on.
type Options struct {
	Store    EditStore
	Cache    Invalidator
	Fetcher  storage.Fetcher
	Uploads  storage.Store
	Editor   Editor
	Enhancer prompt.Enhancer

	FetchRetry  RetryPolicy
	UploadRetry RetryPolicy
	Logger      infra.Logger
}

func NewProcessor(opts Options) (*Processor, error) {
	if opts.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("pipeline: fetcher is required")
	}
	if opts.Uploads == nil {
		return nil, errors.New("pipeline: upload store is required")
	}
	if opts.Editor == nil {
		return nil, errors.New("pipeline: editor is required")
	}
	if opts.FetchRetry.MaxAttempts <= 0 {
		opts.FetchRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Second, MaxDelay: time.Minute}
	}
	if opts.UploadRetry.MaxAttempts <= 0 {
		opts.UploadRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Second, MaxDelay: time.Minute}
	}
	return &Processor{
		store:       opts.Store,
		cache:       opts.Cache,
		fetcher:     opts.Fetcher,
		uploads:     opts.Uploads,
		editor:      opts.Editor,
		enhancer:    opts.Enhancer,
		fetchRetry:  opts.FetchRetry,
		uploadRetry: opts.UploadRetry,
		sleep:       sleepCtx,
		log:         opts.Logger,
	}, nil
}

// Process runs the stage sequence for one edit. A missing edit fails fast
// and a terminal edit is a no-op, so redelivered jobs cannot clobber a
// finished record.
func (p *Processor) Process(ctx context.Context, editID int64) error {
	edit, err := p.store.GetByID(ctx, editID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			p.log.Error().Int64("edit_id", editID).Msg("job references unknown edit")
		}
		return fmt.Errorf("load edit %d: %w", editID, err)
	}
	if edit.Status.Terminal() {
		p.log.Info().
			Int64("edit_id", edit.ID).
			Str("edit_uuid", edit.UUID).
			Str("status", string(edit.Status)).
			Msg("edit already terminal, skipping")
		return nil
	}

	timer := NewStageTimer(p.log, edit.ID, edit.UUID)

	if err := p.store.UpdateStatus(ctx, edit.ID, domain.EditStatusProcessing); err != nil {
		return fmt.Errorf("mark edit %d processing: %w", edit.ID, err)
	}
	p.invalidateStatus(ctx, edit.UUID)

	if err := p.run(ctx, edit, timer); err != nil {
		timer.Finish("failed")
		p.markFailed(ctx, edit)
		return err
	}
	timer.Finish("completed")
	return nil
}

func (p *Processor) run(ctx context.Context, edit *domain.Edit, timer *StageTimer) error {
	timer.StartStage("enhance_prompt")
	if err := p.setStage(ctx, edit, domain.StageEnhancingPrompt); err != nil {
		return err
	}
	p.enhancePrompt(ctx, edit)

	timer.StartStage("fetch_source_image")
	if err := p.setStage(ctx, edit, domain.StageFetchingOriginal); err != nil {
		return err
	}
	var source []byte
	err := p.withRetry(ctx, domain.StageFetchingOriginal, p.fetchRetry, func() error {
		var ferr error
		source, ferr = p.fetcher.Fetch(ctx, edit.OriginalImageURL)
		return ferr
	})
	if err != nil {
		return fmt.Errorf("fetch source image for edit %d: %w", edit.ID, err)
	}

	timer.StartStage("invoke_ai_edit")
	if err := p.setStage(ctx, edit, domain.StageProcessingWithAI); err != nil {
		return err
	}
	edited, err := p.editor.Edit(ctx, source, edit.PromptForEditing())
	if err != nil {
		return fmt.Errorf("ai edit for edit %d: %w", edit.ID, err)
	}

	timer.StartStage("upload_result")
	if err := p.setStage(ctx, edit, domain.StageUploadingResult); err != nil {
		return err
	}
	key := fmt.Sprintf("edited-%s.png", edit.UUID)
	var editedURL string
	err = p.withRetry(ctx, domain.StageUploadingResult, p.uploadRetry, func() error {
		var uerr error
		editedURL, uerr = p.uploads.Put(ctx, key, edited)
		return uerr
	})
	if err != nil {
		return fmt.Errorf("upload result for edit %d: %w", edit.ID, err)
	}

	timer.StartStage("finalize")
	if err := p.store.CompleteWithResult(ctx, edit.ID, editedURL); err != nil {
		return fmt.Errorf("finalize edit %d: %w", edit.ID, err)
	}
	p.invalidateStatus(ctx, edit.UUID)
	return nil
}

// enhancePrompt is best effort. Any failure, including fetching the source
// image for visual context, falls back to the user's original prompt without
// failing the run. An already-enhanced prompt from an earlier delivery is
// reused as is.
func (p *Processor) enhancePrompt(ctx context.Context, edit *domain.Edit) {
	if p.enhancer == nil || edit.EnhancedPrompt != "" {
		return
	}
	image, err := p.fetcher.Fetch(ctx, edit.OriginalImageURL)
	if err != nil {
		p.log.Warn().Err(err).Int64("edit_id", edit.ID).Msg("could not fetch image for prompt enhancement, using original prompt")
		return
	}
	enhanced, err := p.enhancer.Enhance(ctx, edit.Prompt, image)
	if err != nil {
		p.log.Warn().
			Err(err).
			Int64("edit_id", edit.ID).
			Str("provider", p.enhancer.Name()).
			Msg("prompt enhancement failed, using original prompt")
		return
	}
	if enhanced == "" || enhanced == edit.Prompt {
		return
	}
	if err := p.store.SetEnhancedPrompt(ctx, edit.ID, enhanced); err != nil {
		p.log.Warn().Err(err).Int64("edit_id", edit.ID).Msg("could not persist enhanced prompt, using original prompt")
		return
	}
	edit.EnhancedPrompt = enhanced
	p.log.Info().
		Int64("edit_id", edit.ID).
		Str("provider", p.enhancer.Name()).
		Msg("prompt enhanced")
}

func (p *Processor) setStage(ctx context.Context, edit *domain.Edit, stage string) error {
	if err := p.store.UpdateStage(ctx, edit.ID, stage); err != nil {
		return fmt.Errorf("record stage %s for edit %d: %w", stage, edit.ID, err)
	}
	edit.Stage = stage
	p.invalidateStatus(ctx, edit.UUID)
	return nil
}

// markFailed persists the terminal failed state. The job context may
// already be cancelled, typically by the hard time limit, so the write runs
// detached from it with its own short deadline. If even that write fails the
// edit is left stuck in processing, which is the one state operators must go
// looking for, so it is logged at error level.
func (p *Processor) markFailed(ctx context.Context, edit *domain.Edit) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.UpdateStatusAndStage(ctx, edit.ID, domain.EditStatusFailed, domain.StageFailed); err != nil {
		p.log.Error().
			Err(err).
			Int64("edit_id", edit.ID).
			Str("edit_uuid", edit.UUID).
			Msg("CRITICAL: could not persist failed state, edit is stuck in processing")
		return
	}
	p.invalidateStatus(ctx, edit.UUID)
}

func (p *Processor) invalidateStatus(ctx context.Context, editUUID string) {
	if p.cache == nil {
		return
	}
	p.cache.Invalidate(ctx, cache.NamespaceStatus, editUUID)
}
