package usecase

import (
	"context"
	"encoding/json"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// unknownTotalEvery is the publish interval, in decoded frames, for sources
// that do not report a frame count.
const unknownTotalEvery = 250

// progressReporter turns per-frame sampler callbacks into throttled progress
// messages. It runs on the sampler's goroutine.
type progressReporter struct {
	ctx       context.Context
	publisher port.StatusPublisher
	jobID     uuid.UUID
	throttle  entity.ProgressThrottle
	logger    *zap.Logger
}

func newProgressReporter(ctx context.Context, publisher port.StatusPublisher, jobID uuid.UUID, step float64, logger *zap.Logger) *progressReporter {
	return &progressReporter{
		ctx:       ctx,
		publisher: publisher,
		jobID:     jobID,
		throttle:  entity.ProgressThrottle{Step: step, UnknownTotalEvery: unknownTotalEvery},
		logger:    logger,
	}
}

func (p *progressReporter) Progress(processed, total int) {
	ev := entity.ProgressEvent{Processed: processed, Total: total}
	if !p.throttle.Due(ev) {
		return
	}

	data, _ := json.Marshal(entity.SamplingProgressMessage{
		JobID:     p.jobID,
		Processed: processed,
		Total:     total,
		Percent:   ev.Percent(),
	})
	if err := p.publisher.PublishProgress(p.ctx, data); err != nil {
		p.logger.Debug("progress update dropped", zap.Error(err))
	}
}
