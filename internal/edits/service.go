package edits

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"editserver/internal/cache"
	"editserver/internal/chain"
	"editserver/internal/domain"
	"editserver/internal/infra"
	"editserver/internal/infra/geoip"
	"editserver/internal/pipeline"
	"editserver/internal/storage"
)

const (
	maxPromptLength = 2000
	maxImageBytes   = 10 << 20
)

// EditStore is the subset of the edit repository the service reads and
// writes directly. Stage-level writes belong to the pipeline, not here.
type EditStore interface {
	Create(ctx context.Context, edit *domain.Edit) error
	GetByUUID(ctx context.Context, uuid string) (*domain.Edit, error)
}

type FeedbackStore interface {
	Create(ctx context.Context, fb *domain.Feedback) error
	GetByEditUUID(ctx context.Context, editUUID string) (*domain.Feedback, error)
}

// Enqueuer hands an accepted edit to the worker fleet. Enqueue is called
// exactly once per submission, after the row exists.
type Enqueuer interface {
	Enqueue(ctx context.Context, editID int64) error
}

// ReadCache is the read-through cache in front of status, chain and feedback
// lookups. A nil implementation is valid and means every read hits Postgres.
type ReadCache interface {
	Get(ctx context.Context, ns cache.Namespace, id string, dest any) bool
	Put(ctx context.Context, ns cache.Namespace, id string, value any)
	Invalidate(ctx context.Context, ns cache.Namespace, id string)
}

// Service implements the public operations of the edit API: submission,
// status polling, chain history and feedback.
type Service struct {
	edits    EditStore
	feedback FeedbackStore
	chains   *chain.Resolver
	queue    Enqueuer
	cache    ReadCache
	uploads  storage.Store
	geo      geoip.CountryResolver
	log      infra.Logger
}

func NewService(edits EditStore, feedback FeedbackStore, chains *chain.Resolver, queue Enqueuer, cache ReadCache, uploads storage.Store, geo geoip.CountryResolver, log infra.Logger) *Service {
	return &Service{
		edits:    edits,
		feedback: feedback,
		chains:   chains,
		queue:    queue,
		cache:    cache,
		uploads:  uploads,
		geo:      geo,
		log:      log,
	}
}

// SubmitRequest carries a new edit. Image is a data URL or bare base64
// payload; ParentEditUUID is set only for follow-up edits.
type SubmitRequest struct {
	Prompt         string `json:"prompt"`
	Image          string `json:"image"`
	ParentEditUUID string `json:"parent_edit_uuid,omitempty"`
}

// SubmitResult acknowledges an accepted edit before any processing happens.
type SubmitResult struct {
	EditUUID         string              `json:"edit_uuid"`
	Status           string              `json:"status"`
	OriginalImageURL string              `json:"original_image_url"`
	ChainPosition    int                 `json:"chain_position"`
	Progress         pipeline.Projection `json:"progress"`
}

// Submit validates the request, stores the source image, records the edit
// and its chain link, and enqueues the processing job. The response is
// returned before the pipeline touches the edit.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	promptText := strings.TrimSpace(req.Prompt)
	if promptText == "" || len(promptText) > maxPromptLength {
		return nil, domain.ErrInvalidPrompt
	}
	image, err := decodeImage(req.Image)
	if err != nil {
		return nil, err
	}

	position := 1
	if req.ParentEditUUID != "" {
		parentPos, err := s.chains.ValidateFollowUp(ctx, req.ParentEditUUID)
		if err != nil {
			return nil, err
		}
		position = parentPos + 1
	}

	editUUID := uuid.NewString()
	originalURL, err := s.uploads.Put(ctx, fmt.Sprintf("original-%s.png", editUUID), image)
	if err != nil {
		return nil, fmt.Errorf("store source image: %w", err)
	}

	edit := &domain.Edit{
		UUID:             editUUID,
		Prompt:           promptText,
		OriginalImageURL: originalURL,
	}
	if err := s.edits.Create(ctx, edit); err != nil {
		return nil, fmt.Errorf("create edit: %w", err)
	}

	if req.ParentEditUUID != "" {
		// The edit row already exists and is valid on its own. If the link
		// write fails it simply continues as a root instead of a follow-up.
		if err := s.chains.AttachChild(ctx, editUUID, req.ParentEditUUID); err != nil {
			s.log.Warn().
				Err(err).
				Str("edit_uuid", editUUID).
				Str("parent_edit_uuid", req.ParentEditUUID).
				Msg("chain link write failed, edit proceeds unlinked")
			position = 1
		}
	}

	if err := s.queue.Enqueue(ctx, edit.ID); err != nil {
		return nil, fmt.Errorf("enqueue edit %s: %w", editUUID, err)
	}

	s.log.Info().
		Str("edit_uuid", editUUID).
		Int("chain_position", position).
		Bool("follow_up", req.ParentEditUUID != "").
		Msg("edit accepted")

	return &SubmitResult{
		EditUUID:         editUUID,
		Status:           string(domain.EditStatusPending),
		OriginalImageURL: originalURL,
		ChainPosition:    position,
		Progress:         pipeline.Project(domain.EditStatusPending, domain.StagePending),
	}, nil
}

// Status is the polled view of an edit. Image URLs appear as soon as they
// exist; the projection fields come from the progress table.
type Status struct {
	EditUUID         string `json:"edit_uuid"`
	Status           string `json:"status"`
	OriginalImageURL string `json:"original_image_url"`
	EditedImageURL   string `json:"edited_image_url,omitempty"`
	pipeline.Projection
}

// GetStatus returns the projected state of an edit, served from cache when a
// fresh entry exists.
func (s *Service) GetStatus(ctx context.Context, editUUID string) (*Status, error) {
	var cached Status
	if s.cache != nil && s.cache.Get(ctx, cache.NamespaceStatus, editUUID, &cached) {
		return &cached, nil
	}

	edit, err := s.edits.GetByUUID(ctx, editUUID)
	if err != nil {
		return nil, err
	}
	st := &Status{
		EditUUID:         edit.UUID,
		Status:           string(edit.Status),
		OriginalImageURL: edit.OriginalImageURL,
		EditedImageURL:   edit.EditedImageURL,
		Projection:       pipeline.Project(edit.Status, edit.Stage),
	}
	if s.cache != nil {
		s.cache.Put(ctx, cache.NamespaceStatus, editUUID, st)
	}
	return st, nil
}

// ChainEntry is one lineage element in API form, oldest first.
type ChainEntry struct {
	EditUUID       string    `json:"edit_uuid"`
	Prompt         string    `json:"prompt"`
	Status         string    `json:"status"`
	EditedImageURL string    `json:"edited_image_url,omitempty"`
	Position       int       `json:"position"`
	CreatedAt      time.Time `json:"created_at"`
}

type Chain struct {
	EditUUID  string       `json:"edit_uuid"`
	Length    int          `json:"length"`
	MaxLength int          `json:"max_length"`
	Entries   []ChainEntry `json:"entries"`
}

// GetChain resolves the lineage ending at the given edit.
func (s *Service) GetChain(ctx context.Context, editUUID string) (*Chain, error) {
	var cached Chain
	if s.cache != nil && s.cache.Get(ctx, cache.NamespaceChain, editUUID, &cached) {
		return &cached, nil
	}

	entries, err := s.chains.History(ctx, editUUID)
	if err != nil {
		return nil, err
	}
	ch := &Chain{
		EditUUID:  editUUID,
		Length:    len(entries),
		MaxLength: s.chains.MaxLength(),
		Entries:   make([]ChainEntry, 0, len(entries)),
	}
	for _, e := range entries {
		ch.Entries = append(ch.Entries, ChainEntry{
			EditUUID:       e.Edit.UUID,
			Prompt:         e.Edit.Prompt,
			Status:         string(e.Edit.Status),
			EditedImageURL: e.Edit.EditedImageURL,
			Position:       e.Position,
			CreatedAt:      e.Edit.CreatedAt,
		})
	}
	if s.cache != nil {
		s.cache.Put(ctx, cache.NamespaceChain, editUUID, ch)
	}
	return ch, nil
}

// FeedbackRequest carries one rating for a completed edit. Rating is 1 for
// thumbs up and 0 for thumbs down; thumbs down requires text.
type FeedbackRequest struct {
	EditUUID string `json:"edit_uuid"`
	Rating   int    `json:"rating"`
	Text     string `json:"text,omitempty"`
	UserIP   string `json:"-"`
}

// CreateFeedback records feedback for a completed edit. Each edit accepts at
// most one feedback row; duplicates surface as ErrFeedbackExists.
func (s *Service) CreateFeedback(ctx context.Context, req FeedbackRequest) (*domain.Feedback, error) {
	if req.Rating != 0 && req.Rating != 1 {
		return nil, domain.ErrInvalidRating
	}
	text := strings.TrimSpace(req.Text)
	if req.Rating == 0 && text == "" {
		return nil, fmt.Errorf("%w: thumbs down requires text", domain.ErrInvalidRating)
	}

	edit, err := s.edits.GetByUUID(ctx, req.EditUUID)
	if err != nil {
		return nil, err
	}
	if edit.Status != domain.EditStatusCompleted {
		return nil, domain.ErrEditNotDone
	}

	fb := &domain.Feedback{
		EditUUID: req.EditUUID,
		Rating:   req.Rating,
		Text:     text,
		UserIP:   req.UserIP,
		Country:  s.resolveCountry(req.UserIP),
	}
	if err := s.feedback.Create(ctx, fb); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, cache.NamespaceFeedback, req.EditUUID)
	}
	s.log.Info().
		Str("edit_uuid", req.EditUUID).
		Int("rating", req.Rating).
		Str("country", fb.Country).
		Msg("feedback recorded")
	return fb, nil
}

// GetFeedback returns the feedback for an edit, if any.
func (s *Service) GetFeedback(ctx context.Context, editUUID string) (*domain.Feedback, error) {
	var cached domain.Feedback
	if s.cache != nil && s.cache.Get(ctx, cache.NamespaceFeedback, editUUID, &cached) {
		return &cached, nil
	}
	fb, err := s.feedback.GetByEditUUID(ctx, editUUID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Put(ctx, cache.NamespaceFeedback, editUUID, fb)
	}
	return fb, nil
}

// resolveCountry is best effort. Feedback is stored even when the lookup
// database is absent or the address is unparseable.
func (s *Service) resolveCountry(ip string) string {
	if s.geo == nil || ip == "" {
		return ""
	}
	country, err := s.geo.CountryCode(ip)
	if err != nil {
		s.log.Warn().Err(err).Str("ip", ip).Msg("country lookup failed")
		return ""
	}
	return country
}

// decodeImage accepts a data URL or a bare base64 string and returns the
// raw bytes, rejecting empty and oversized payloads.
func decodeImage(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, domain.ErrInvalidImage
	}
	if strings.HasPrefix(payload, "data:") {
		_, rest, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, fmt.Errorf("%w: malformed data url", domain.ErrInvalidImage)
		}
		payload = rest
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	if len(data) == 0 || len(data) > maxImageBytes {
		return nil, domain.ErrInvalidImage
	}
	return data, nil
}
