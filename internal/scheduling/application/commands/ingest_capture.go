package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/diaguru/diaguru/internal/ingest"
	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

// IngestCaptureCommand turns a raw note into a pending capture.
type IngestCaptureCommand struct {
	UserID           uuid.UUID
	Content          string
	Timezone         string
	UTCOffsetMinutes int
}

// IngestCaptureHandler runs extraction and routine normalization, then
// persists the capture. Extraction failures degrade to defaults; ingestion
// itself never depends on the extractor being up.
type IngestCaptureHandler struct {
	captures   domain.CaptureRepository
	extractor  ingest.Extractor
	normalizer *ingest.Normalizer
	logger     *slog.Logger
	now        func() time.Time
}

// NewIngestCaptureHandler wires the ingest use case.
func NewIngestCaptureHandler(
	captures domain.CaptureRepository,
	extractor ingest.Extractor,
	logger *slog.Logger,
) *IngestCaptureHandler {
	if extractor == nil {
		extractor = ingest.NoopExtractor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestCaptureHandler{
		captures:   captures,
		extractor:  extractor,
		normalizer: ingest.NewNormalizer(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock, for tests.
func (h *IngestCaptureHandler) WithClock(now func() time.Time) *IngestCaptureHandler {
	h.now = now
	return h
}

// Handle creates the capture.
func (h *IngestCaptureHandler) Handle(ctx context.Context, cmd IngestCaptureCommand) (*domain.Capture, error) {
	if cmd.UserID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		return nil, domain.ErrInvalidInput
	}

	now := h.now()
	offset := time.Duration(cmd.UTCOffsetMinutes) * time.Minute
	capture := domain.NewCapture(cmd.UserID, content)

	extraction, err := h.extractor.Extract(ctx, content, cmd.Timezone, now)
	if err != nil {
		h.logger.Warn("extraction failed, ingesting with defaults", "error", err)
	}
	ingest.ApplyExtraction(capture, extraction)
	h.normalizer.Normalize(capture, now, offset)

	if err := h.captures.Save(ctx, capture); err != nil {
		return nil, err
	}
	h.logger.Info("capture ingested",
		"capture_id", capture.ID(),
		"kind", capture.Kind,
		"constraint", capture.ConstraintType)
	return capture, nil
}
