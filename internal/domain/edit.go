package domain

import "time"

// EditStatus enumerates the coarse lifecycle states of an edit.
type EditStatus string

const (
	EditStatusPending    EditStatus = "pending"
	EditStatusProcessing EditStatus = "processing"
	EditStatusCompleted  EditStatus = "completed"
	EditStatusFailed     EditStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s EditStatus) Terminal() bool {
	return s == EditStatusCompleted || s == EditStatusFailed
}

// Stage names the fine-grained processing step an edit last entered. The
// stage axis evolves independently from status: status stays "processing"
// while stage walks through the pipeline.
const (
	StagePending          = "pending"
	StageEnhancingPrompt  = "enhancing_prompt"
	StageFetchingOriginal = "fetching_original_image"
	StageProcessingWithAI = "processing_with_ai"
	StageUploadingResult  = "uploading_result"
	StageCompleted        = "completed"
	StageFailed           = "failed"
)

// Edit is one image-editing request tracked from submission to its terminal
// outcome. EditedImageURL is set exactly when Status is completed.
type Edit struct {
	ID               int64
	UUID             string
	Prompt           string
	EnhancedPrompt   string
	OriginalImageURL string
	EditedImageURL   string
	Status           EditStatus
	Stage            string
	CreatedAt        time.Time
}

// PromptForEditing returns the prompt the AI edit call should use: the
// enhanced prompt when one was produced, the original otherwise.
func (e *Edit) PromptForEditing() string {
	if e.EnhancedPrompt != "" {
		return e.EnhancedPrompt
	}
	return e.Prompt
}
