package pipeline

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"editserver/internal/domain"
)

// Projection is the user-facing view of an edit's progress derived from the
// (status, stage) pair. It is what the polling endpoint returns; raw error
// detail never crosses this boundary.
type Projection struct {
	Message         string `json:"message"`
	Stage           string `json:"stage"`
	PercentComplete int    `json:"progress_percent"`
	IsComplete      bool   `json:"is_complete"`
	IsError         bool   `json:"is_error"`
}

type stageInfo struct {
	message string
	percent int
}

var stageTable = map[string]stageInfo{
	domain.StagePending:          {message: "Your edit is queued...", percent: 10},
	domain.StageEnhancingPrompt:  {message: "Enhancing your prompt with AI...", percent: 25},
	domain.StageFetchingOriginal: {message: "Preparing your image...", percent: 40},
	domain.StageProcessingWithAI: {message: "Processing your edit...", percent: 60},
	domain.StageUploadingResult:  {message: "Finalizing your edit...", percent: 90},
}

var titleCaser = cases.Title(language.Und)

// Project maps status and stage to a progress projection. It is total: a
// failed or completed status wins regardless of stage, and an unrecognized
// stage degrades to a generic mid-progress message instead of erroring.
func Project(status domain.EditStatus, stage string) Projection {
	switch status {
	case domain.EditStatusFailed:
		return Projection{
			Message:    "Edit failed. Please try again.",
			Stage:      domain.StageFailed,
			IsComplete: true,
			IsError:    true,
		}
	case domain.EditStatusCompleted:
		return Projection{
			Message:         "Edit completed successfully!",
			Stage:           domain.StageCompleted,
			PercentComplete: 100,
			IsComplete:      true,
		}
	}

	key := stage
	if key == "" {
		key = string(status)
	}
	if info, ok := stageTable[key]; ok {
		return Projection{
			Message:         info.message,
			Stage:           key,
			PercentComplete: info.percent,
		}
	}

	message := "Processing your edit..."
	if stage != "" {
		message = titleCaser.String(strings.ReplaceAll(stage, "_", " ")) + "..."
	}
	return Projection{
		Message:         message,
		Stage:           key,
		PercentComplete: 50,
	}
}
