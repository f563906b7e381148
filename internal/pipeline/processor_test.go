package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"editserver/internal/cache"
	"editserver/internal/domain"
	"editserver/internal/providers/flux"

	"github.com/rs/zerolog"
)

type fakeStore struct {
	edit *domain.Edit

	getErr        error
	stageErr      map[string]error
	completeErr   error
	markFailedErr error

	statuses    []domain.EditStatus
	stages      []string
	failWrites  []string
	enhanced    string
	completedAt string
}

func (s *fakeStore) GetByID(ctx context.Context, id int64) (*domain.Edit, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	copied := *s.edit
	return &copied, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, id int64, status domain.EditStatus) error {
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) UpdateStage(ctx context.Context, id int64, stage string) error {
	if err := s.stageErr[stage]; err != nil {
		return err
	}
	s.stages = append(s.stages, stage)
	return nil
}

func (s *fakeStore) UpdateStatusAndStage(ctx context.Context, id int64, status domain.EditStatus, stage string) error {
	if s.markFailedErr != nil {
		return s.markFailedErr
	}
	s.failWrites = append(s.failWrites, string(status)+"/"+stage)
	return nil
}

func (s *fakeStore) SetEnhancedPrompt(ctx context.Context, id int64, enhanced string) error {
	s.enhanced = enhanced
	return nil
}

func (s *fakeStore) CompleteWithResult(ctx context.Context, id int64, editedURL string) error {
	if s.completeErr != nil {
		return s.completeErr
	}
	s.completedAt = editedURL
	return nil
}

type fakeInvalidator struct {
	keys []string
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, ns cache.Namespace, id string) {
	f.keys = append(f.keys, string(ns)+":"+id)
}

type fakeFetcher struct {
	data  []byte
	errs  []error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.data, nil
}

type fakeUploads struct {
	url   string
	err   error
	calls int
	key   string
	data  []byte
}

func (u *fakeUploads) Put(ctx context.Context, key string, data []byte) (string, error) {
	u.calls++
	u.key = key
	u.data = data
	if u.err != nil {
		return "", u.err
	}
	return u.url, nil
}

type fakeEditor struct {
	out    []byte
	err    error
	prompt string
	image  []byte
}

func (e *fakeEditor) Edit(ctx context.Context, image []byte, promptText string) ([]byte, error) {
	e.image = image
	e.prompt = promptText
	if e.err != nil {
		return nil, e.err
	}
	return e.out, nil
}

type fakeEnhancer struct {
	out string
	err error
}

func (e *fakeEnhancer) Enhance(ctx context.Context, promptText string, image []byte) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return e.out, nil
}

func (e *fakeEnhancer) Name() string { return "fake" }

func pendingEdit() *domain.Edit {
	return &domain.Edit{
		ID:               7,
		UUID:             "11111111-2222-3333-4444-555555555555",
		Prompt:           "make the sky dramatic",
		OriginalImageURL: "http://localhost/media/original-x.png",
		Status:           domain.EditStatusPending,
		Stage:            domain.StagePending,
	}
}

type procDeps struct {
	store   *fakeStore
	inval   *fakeInvalidator
	fetcher *fakeFetcher
	uploads *fakeUploads
	editor  *fakeEditor
	sleeps  int
}

func newTestProcessor(t *testing.T, deps *procDeps, opts Options) *Processor {
	t.Helper()
	if deps.store == nil {
		deps.store = &fakeStore{edit: pendingEdit()}
	}
	if deps.inval == nil {
		deps.inval = &fakeInvalidator{}
	}
	if deps.fetcher == nil {
		deps.fetcher = &fakeFetcher{data: []byte("source")}
	}
	if deps.uploads == nil {
		deps.uploads = &fakeUploads{url: "http://localhost/media/edited-x.png"}
	}
	if deps.editor == nil {
		deps.editor = &fakeEditor{out: []byte("edited")}
	}
	opts.Store = deps.store
	opts.Cache = deps.inval
	opts.Fetcher = deps.fetcher
	opts.Uploads = deps.uploads
	opts.Editor = deps.editor
	opts.Logger = zerolog.Nop()
	if opts.FetchRetry.MaxAttempts == 0 {
		opts.FetchRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	}
	if opts.UploadRetry.MaxAttempts == 0 {
		opts.UploadRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	}
	p, err := NewProcessor(opts)
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	p.sleep = func(ctx context.Context, d time.Duration) error {
		deps.sleeps++
		return nil
	}
	return p
}

func TestProcessHappyPath(t *testing.T) {
	deps := &procDeps{}
	p := newTestProcessor(t, deps, Options{})

	if err := p.Process(context.Background(), 7); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	wantStages := []string{
		domain.StageEnhancingPrompt,
		domain.StageFetchingOriginal,
		domain.StageProcessingWithAI,
		domain.StageUploadingResult,
	}
	if len(deps.store.stages) != len(wantStages) {
		t.Fatalf("stages = %v, want %v", deps.store.stages, wantStages)
	}
	for i, s := range wantStages {
		if deps.store.stages[i] != s {
			t.Fatalf("stage[%d] = %q, want %q", i, deps.store.stages[i], s)
		}
	}
	if len(deps.store.statuses) != 1 || deps.store.statuses[0] != domain.EditStatusProcessing {
		t.Fatalf("statuses = %v, want [processing]", deps.store.statuses)
	}
	if deps.store.completedAt != "http://localhost/media/edited-x.png" {
		t.Fatalf("completed url = %q", deps.store.completedAt)
	}
	if deps.editor.prompt != "make the sky dramatic" {
		t.Fatalf("editor prompt = %q", deps.editor.prompt)
	}
	if string(deps.editor.image) != "source" {
		t.Fatalf("editor image = %q", deps.editor.image)
	}
	if deps.uploads.key != "edited-11111111-2222-3333-4444-555555555555.png" {
		t.Fatalf("upload key = %q", deps.uploads.key)
	}

	// One invalidation per state write: processing, four stages, finalize.
	if len(deps.inval.keys) != 6 {
		t.Fatalf("invalidations = %d (%v), want 6", len(deps.inval.keys), deps.inval.keys)
	}
	for _, k := range deps.inval.keys {
		if k != string(cache.NamespaceStatus)+":11111111-2222-3333-4444-555555555555" {
			t.Fatalf("unexpected invalidation key %q", k)
		}
	}
}

func TestProcessTerminalEditIsNoOp(t *testing.T) {
	for _, status := range []domain.EditStatus{domain.EditStatusCompleted, domain.EditStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			edit := pendingEdit()
			edit.Status = status
			deps := &procDeps{store: &fakeStore{edit: edit}}
			p := newTestProcessor(t, deps, Options{})

			if err := p.Process(context.Background(), edit.ID); err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if len(deps.store.stages) != 0 || len(deps.store.statuses) != 0 {
				t.Fatalf("terminal edit was written to: stages=%v statuses=%v", deps.store.stages, deps.store.statuses)
			}
			if deps.fetcher.calls != 0 || deps.uploads.calls != 0 {
				t.Fatal("terminal edit reached external services")
			}
		})
	}
}

func TestProcessUnknownEdit(t *testing.T) {
	deps := &procDeps{store: &fakeStore{getErr: domain.ErrNotFound}}
	p := newTestProcessor(t, deps, Options{})

	err := p.Process(context.Background(), 404)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Process() error = %v, want ErrNotFound", err)
	}
}

func TestProcessFetchRetriesThenSucceeds(t *testing.T) {
	deps := &procDeps{
		fetcher: &fakeFetcher{
			data: []byte("source"),
			errs: []error{errors.New("connection reset"), errors.New("timeout"), nil},
		},
	}
	p := newTestProcessor(t, deps, Options{})

	if err := p.Process(context.Background(), 7); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if deps.fetcher.calls != 3 {
		t.Fatalf("fetch calls = %d, want 3", deps.fetcher.calls)
	}
	if deps.sleeps != 2 {
		t.Fatalf("backoff sleeps = %d, want 2", deps.sleeps)
	}
	if deps.store.completedAt == "" {
		t.Fatal("edit was not completed")
	}
}

func TestProcessFetchExhaustionFails(t *testing.T) {
	boom := errors.New("unreachable host")
	deps := &procDeps{
		fetcher: &fakeFetcher{errs: []error{boom, boom, boom}},
	}
	p := newTestProcessor(t, deps, Options{FetchRetry: RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}})

	err := p.Process(context.Background(), 7)
	if !errors.Is(err, boom) {
		t.Fatalf("Process() error = %v, want %v", err, boom)
	}
	if deps.fetcher.calls != 3 {
		t.Fatalf("fetch calls = %d, want 3", deps.fetcher.calls)
	}
	if len(deps.store.failWrites) != 1 || deps.store.failWrites[0] != "failed/failed" {
		t.Fatalf("fail writes = %v, want [failed/failed]", deps.store.failWrites)
	}
}

// ctxBoundStore refuses calls once the passed context is done, matching how
// a pgx pool behaves when the job context is cancelled mid-flight.
type ctxBoundStore struct {
	*fakeStore
}

func (s *ctxBoundStore) GetByID(ctx context.Context, id int64) (*domain.Edit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.fakeStore.GetByID(ctx, id)
}

func (s *ctxBoundStore) UpdateStatus(ctx context.Context, id int64, status domain.EditStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.fakeStore.UpdateStatus(ctx, id, status)
}

func (s *ctxBoundStore) UpdateStage(ctx context.Context, id int64, stage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.fakeStore.UpdateStage(ctx, id, stage)
}

func (s *ctxBoundStore) UpdateStatusAndStage(ctx context.Context, id int64, status domain.EditStatus, stage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.fakeStore.UpdateStatusAndStage(ctx, id, status, stage)
}

func (s *ctxBoundStore) SetEnhancedPrompt(ctx context.Context, id int64, enhanced string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.fakeStore.SetEnhancedPrompt(ctx, id, enhanced)
}

func (s *ctxBoundStore) CompleteWithResult(ctx context.Context, id int64, editedURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.fakeStore.CompleteWithResult(ctx, id, editedURL)
}

// cancellingFetcher simulates a fetch interrupted by the job's hard time
// limit: the context dies while the call is in flight.
type cancellingFetcher struct {
	cancel context.CancelFunc
}

func (f *cancellingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.cancel()
	return nil, ctx.Err()
}

func TestProcessFailedStateSurvivesJobCancellation(t *testing.T) {
	deps := &procDeps{}
	p := newTestProcessor(t, deps, Options{})
	p.store = &ctxBoundStore{fakeStore: deps.store}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.fetcher = &cancellingFetcher{cancel: cancel}

	err := p.Process(ctx, 7)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Process() error = %v, want context.Canceled", err)
	}
	if len(deps.store.failWrites) != 1 || deps.store.failWrites[0] != "failed/failed" {
		t.Fatalf("fail writes = %v, want [failed/failed]", deps.store.failWrites)
	}
}

func TestProcessAIEditFailureIsNotRetried(t *testing.T) {
	serr := &flux.ServiceError{Message: "model rejected the prompt", StatusCode: 422}
	editor := &fakeEditor{err: serr}
	deps := &procDeps{editor: editor}
	p := newTestProcessor(t, deps, Options{})

	err := p.Process(context.Background(), 7)
	var got *flux.ServiceError
	if !errors.As(err, &got) {
		t.Fatalf("Process() error = %v, want ServiceError", err)
	}
	if deps.sleeps != 0 {
		t.Fatalf("ai edit failure slept %d times, want 0", deps.sleeps)
	}
	if len(deps.store.failWrites) != 1 || deps.store.failWrites[0] != "failed/failed" {
		t.Fatalf("fail writes = %v, want [failed/failed]", deps.store.failWrites)
	}
	if deps.uploads.calls != 0 {
		t.Fatal("upload ran after ai edit failure")
	}
}

func TestProcessUploadExhaustionFails(t *testing.T) {
	deps := &procDeps{uploads: &fakeUploads{err: errors.New("disk full")}}
	p := newTestProcessor(t, deps, Options{UploadRetry: RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}})

	if err := p.Process(context.Background(), 7); err == nil {
		t.Fatal("Process() error = nil, want upload failure")
	}
	if deps.uploads.calls != 2 {
		t.Fatalf("upload calls = %d, want 2", deps.uploads.calls)
	}
	if len(deps.store.failWrites) != 1 {
		t.Fatalf("fail writes = %v, want one", deps.store.failWrites)
	}
}

func TestProcessEnhancementIsBestEffort(t *testing.T) {
	deps := &procDeps{}
	p := newTestProcessor(t, deps, Options{Enhancer: &fakeEnhancer{err: errors.New("provider down")}})

	if err := p.Process(context.Background(), 7); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if deps.store.enhanced != "" {
		t.Fatalf("enhanced prompt persisted despite failure: %q", deps.store.enhanced)
	}
	if deps.editor.prompt != "make the sky dramatic" {
		t.Fatalf("editor prompt = %q, want original", deps.editor.prompt)
	}
	if deps.store.completedAt == "" {
		t.Fatal("edit was not completed")
	}
}

func TestProcessEnhancedPromptIsPersistedAndUsed(t *testing.T) {
	deps := &procDeps{}
	p := newTestProcessor(t, deps, Options{Enhancer: &fakeEnhancer{out: "high-fidelity dramatic sky"}})

	if err := p.Process(context.Background(), 7); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if deps.store.enhanced != "high-fidelity dramatic sky" {
		t.Fatalf("persisted enhancement = %q", deps.store.enhanced)
	}
	if deps.editor.prompt != "high-fidelity dramatic sky" {
		t.Fatalf("editor prompt = %q, want enhanced", deps.editor.prompt)
	}
}

func TestProcessAlreadyEnhancedPromptIsReused(t *testing.T) {
	edit := pendingEdit()
	edit.EnhancedPrompt = "previously enhanced"
	deps := &procDeps{store: &fakeStore{edit: edit}}
	enh := &fakeEnhancer{out: "should not be called"}
	p := newTestProcessor(t, deps, Options{Enhancer: enh})

	if err := p.Process(context.Background(), edit.ID); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if deps.store.enhanced != "" {
		t.Fatalf("re-enhanced a prompt that was already set: %q", deps.store.enhanced)
	}
	if deps.editor.prompt != "previously enhanced" {
		t.Fatalf("editor prompt = %q, want previously enhanced", deps.editor.prompt)
	}
}
