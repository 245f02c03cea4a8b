package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/docufield/docufield/constants"
	"github.com/docufield/docufield/internal/common"
)

// ProgressInfo is the derived progress view for one document. It is computed
// from the latest log entry on every read, never stored, so two reads without
// an intervening log write are always identical.
type ProgressInfo struct {
	Status   constants.DocumentStatus `json:"status"`
	Progress int                      `json:"progress"`
	Stage    string                   `json:"stage"`
}

// Progress maps the document's latest log stage to its fixed percentage. A
// document with no log entries yet reports 0.
func (p *Pipeline) Progress(ctx context.Context, documentID uuid.UUID) (*ProgressInfo, error) {
	doc, err := p.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	entry, err := p.logs.Latest(ctx, documentID)
	if errors.Is(err, common.ErrNotFound) {
		return &ProgressInfo{Status: doc.Status, Progress: 0, Stage: ""}, nil
	}
	if err != nil {
		return nil, err
	}
	return &ProgressInfo{
		Status:   doc.Status,
		Progress: constants.StageProgress(entry.Stage),
		Stage:    entry.Stage,
	}, nil
}
