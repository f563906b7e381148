package pipeline

import (
	"time"

	"editserver/internal/infra"
)

type stageTiming struct {
	name     string
	duration time.Duration
}

// StageTimer records per-stage wall-clock timings for a single pipeline run
// and writes them to the structured log. It is write-only instrumentation:
// nothing reads the timings back and a timer failure never affects the run.
type StageTimer struct {
	log      infra.Logger
	editID   int64
	started  time.Time
	current  string
	stageAt  time.Time
	timings  []stageTiming
	finished bool
}

func NewStageTimer(log infra.Logger, editID int64, editUUID string) *StageTimer {
	now := time.Now()
	t := &StageTimer{
		log:     log.With().Int64("edit_id", editID).Str("edit_uuid", editUUID).Logger(),
		editID:  editID,
		started: now,
	}
	t.log.Debug().Msg("pipeline run started")
	return t
}

// StartStage closes the previous stage, if any, and opens a new one.
func (t *StageTimer) StartStage(name string) {
	now := time.Now()
	t.closeCurrent(now)
	t.current = name
	t.stageAt = now
	t.log.Debug().Str("stage", name).Msg("stage started")
}

// Finish closes the open stage and emits a summary line with every stage
// duration plus the total. Calling it twice is a no-op.
func (t *StageTimer) Finish(outcome string) {
	if t.finished {
		return
	}
	t.finished = true
	now := time.Now()
	t.closeCurrent(now)

	ev := t.log.Info().
		Str("outcome", outcome).
		Dur("total", now.Sub(t.started))
	for _, s := range t.timings {
		ev = ev.Dur("stage_"+s.name, s.duration)
	}
	ev.Msg("pipeline run finished")
}

func (t *StageTimer) closeCurrent(now time.Time) {
	if t.current == "" {
		return
	}
	d := now.Sub(t.stageAt)
	t.timings = append(t.timings, stageTiming{name: t.current, duration: d})
	t.log.Debug().Str("stage", t.current).Dur("duration", d).Msg("stage finished")
	t.current = ""
}
