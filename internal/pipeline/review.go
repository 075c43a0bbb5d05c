package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-triage/internal/config"
	"github.com/sells-group/claims-triage/internal/model"
)

// ReviewVerdict is a reviewer's judgment on a drafted appeal.
type ReviewVerdict struct {
	Approved   bool   `json:"approved"`
	Reviewer   string `json:"reviewer"`
	Notes      string `json:"notes,omitempty"`
	EditedText string `json:"edited_text,omitempty"` // optional replacement for the draft text
}

// Reviewer decides whether a drafted appeal may be submitted.
type Reviewer interface {
	Review(ctx context.Context, draft *model.AppealDraft, verified []model.VerifiedCitation) (*ReviewVerdict, error)
}

// ReviewerFunc adapts a function to the Reviewer interface.
type ReviewerFunc func(ctx context.Context, draft *model.AppealDraft, verified []model.VerifiedCitation) (*ReviewVerdict, error)

// Review implements Reviewer.
func (f ReviewerFunc) Review(ctx context.Context, draft *model.AppealDraft, verified []model.VerifiedCitation) (*ReviewVerdict, error) {
	return f(ctx, draft, verified)
}

// ErrAwaitingReview signals that the run suspended at the review gate and
// must be resumed with a verdict.
var ErrAwaitingReview = eris.New("pipeline: awaiting human review")

// AutoApprovable reports whether a draft qualifies for approval without a
// human: negligible hallucination risk and zero failed citations.
func AutoApprovable(draft *model.AppealDraft, outcome *VerifyOutcome, cfg config.ReviewConfig) bool {
	return draft.HallucinationRisk < cfg.AutoApproveRisk && outcome.HallucinationCount == 0
}

// ReviewPhase gates a drafted appeal on review. Low-risk drafts are approved
// automatically. Otherwise the configured reviewer decides; with no reviewer
// available the run suspends with ErrAwaitingReview so it can be resumed
// once a verdict exists.
func ReviewPhase(
	ctx context.Context,
	draft *model.AppealDraft,
	outcome *VerifyOutcome,
	reviewer Reviewer,
	cfg config.ReviewConfig,
) (*model.Appeal, error) {
	appeal := &model.Appeal{
		AppealID:       uuid.New(),
		DraftID:        draft.DraftID,
		ClaimID:        draft.ClaimID,
		Status:         model.AppealDrafted,
		FinalText:      draft.AppealText,
		FinalCitations: outcome.Citations,
	}

	if AutoApprovable(draft, outcome, cfg) {
		appeal.Status = model.AppealApproved
		appeal.ReviewedBy = "auto"
		appeal.ReviewedAt = time.Now().UTC()
		zap.L().Info("pipeline: auto-approved draft",
			zap.String("draft_id", draft.DraftID.String()),
			zap.Float64("hallucination_risk", draft.HallucinationRisk),
		)
		return appeal, nil
	}

	if reviewer == nil {
		return appeal, ErrAwaitingReview
	}

	verdict, err := reviewer.Review(ctx, draft, outcome.Citations)
	if err != nil {
		return appeal, eris.Wrap(err, "pipeline: review")
	}

	appeal.ReviewedBy = verdict.Reviewer
	appeal.ReviewedAt = time.Now().UTC()
	appeal.ReviewNotes = verdict.Notes
	if verdict.EditedText != "" {
		appeal.FinalText = verdict.EditedText
	}
	if verdict.Approved {
		appeal.Status = model.AppealApproved
	} else {
		appeal.Status = model.AppealRejected
	}

	zap.L().Info("pipeline: review complete",
		zap.String("draft_id", draft.DraftID.String()),
		zap.String("status", string(appeal.Status)),
		zap.String("reviewer", verdict.Reviewer),
	)
	return appeal, nil
}
