// Package pipeline implements the claim triage workflow: extract the denial,
// retrieve policy context, decide, draft, verify citations, review, execute.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-triage/internal/audit"
	"github.com/sells-group/claims-triage/internal/config"
	"github.com/sells-group/claims-triage/internal/docstore"
	"github.com/sells-group/claims-triage/internal/ingest"
	"github.com/sells-group/claims-triage/internal/model"
	"github.com/sells-group/claims-triage/internal/store"
	"github.com/sells-group/claims-triage/pkg/anthropic"
	"github.com/sells-group/claims-triage/pkg/openai"
)

// Pipeline orchestrates the triage workflow for a single denied claim.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	anthropic anthropic.Client
	embedder  openai.Client
	index     *docstore.Index
	extractor ingest.Extractor
	reviewer  Reviewer
	submitter Submitter
}

// New creates a Pipeline with all dependencies. A nil reviewer means drafts
// that miss the auto-approve bar suspend for later resume; a nil submitter
// falls back to local reference submission.
func New(
	cfg *config.Config,
	st store.Store,
	aiClient anthropic.Client,
	embedder openai.Client,
	index *docstore.Index,
	extractor ingest.Extractor,
	reviewer Reviewer,
	submitter Submitter,
) *Pipeline {
	if submitter == nil {
		submitter = ReferenceSubmitter{}
	}
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		anthropic: aiClient,
		embedder:  embedder,
		index:     index,
		extractor: extractor,
		reviewer:  reviewer,
		submitter: submitter,
	}
}

// Run triages the denial letter at path end to end. If the run suspends at
// the review gate, the partial result is returned with ErrAwaitingReview;
// resume it later with Resume.
func (p *Pipeline) Run(ctx context.Context, path string) (*model.RunResult, error) {
	run, err := p.store.CreateRun(ctx, path)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	state := &RunState{
		RunID:  run.ID,
		Source: path,
		State:  StateExtract,
	}
	return p.drive(ctx, state, p.reviewer)
}

// Resume continues a run suspended at the review gate, applying the given
// verdict. A nil verdict re-enters review with the pipeline's configured
// reviewer (which may suspend again).
func (p *Pipeline) Resume(ctx context.Context, runID string, verdict *ReviewVerdict) (*model.RunResult, error) {
	raw, err := p.store.GetRunState(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load state for run %s", runID)
	}

	state := &RunState{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, eris.Wrapf(err, "pipeline: decode state for run %s", runID)
	}
	if state.State != StateReview {
		return nil, eris.Errorf("pipeline: run %s is in state %s, not awaiting review", runID, state.State)
	}

	reviewer := p.reviewer
	if verdict != nil {
		v := *verdict
		reviewer = ReviewerFunc(func(context.Context, *model.AppealDraft, []model.VerifiedCitation) (*ReviewVerdict, error) {
			return &v, nil
		})
	}
	return p.drive(ctx, state, reviewer)
}

// drive executes stages from the current state until the run terminates or
// suspends, persisting the state snapshot and audit trail after every stage.
func (p *Pipeline) drive(ctx context.Context, state *RunState, reviewer Reviewer) (*model.RunResult, error) {
	log := zap.L().With(zap.String("run_id", state.RunID), zap.String("source", state.Source))
	builder := audit.NewBuilder(state.RunID)

	// A resumed run rebuilds its trail from the store so the final audit log
	// covers the whole run, not just the stages after the suspension.
	if state.State != StateExtract {
		prior, err := p.store.ListAuditEvents(ctx, state.RunID)
		if err != nil {
			log.Warn("pipeline: failed to reload audit trail", zap.Error(err))
		}
		for _, ev := range prior {
			builder.Append(ev)
		}
	}

	p.setStatus(ctx, state.RunID, model.RunStatusRunning)

	for !state.State.Terminal() {
		stageStart := time.Now()
		events, err := p.step(ctx, state, reviewer)

		if eris.Is(err, ErrAwaitingReview) {
			p.persistState(ctx, state)
			p.setStatus(ctx, state.RunID, model.RunStatusAwaitingReview)
			log.Info("pipeline: suspended for review", zap.String("state", string(state.State)))
			result := state.Result()
			trail := builder.Snapshot()
			result.AuditLog = &trail
			return result, ErrAwaitingReview
		}

		if err != nil {
			state.Err = err.Error()
			for _, ev := range events {
				p.record(ctx, builder, state, ev)
			}
			p.record(ctx, builder, state, audit.ErrorEvent(string(state.State), model.EventSystemError, "stage failed", err))
			log.Error("pipeline: stage failed",
				zap.String("state", string(state.State)),
				zap.Duration("duration", time.Since(stageStart)),
				zap.Error(err),
			)
		} else {
			for _, ev := range events {
				p.record(ctx, builder, state, ev)
			}
			log.Info("pipeline: stage complete",
				zap.String("state", string(state.State)),
				zap.Duration("duration", time.Since(stageStart)),
			)
		}

		state.State = NextState(state)
		p.persistState(ctx, state)
	}

	builder.Finalize()
	result := state.Result()
	trail := builder.Snapshot()
	result.AuditLog = &trail

	status := model.RunStatusComplete
	if state.State == StateFailed {
		status = model.RunStatusFailed
	}
	p.setStatus(ctx, state.RunID, status)
	if err := p.store.UpdateRunResult(ctx, state.RunID, result); err != nil {
		log.Warn("pipeline: failed to persist result", zap.Error(err))
	}

	log.Info("pipeline: run finished",
		zap.String("final_step", result.FinalStep),
		zap.Bool("success", result.Success),
		zap.String("decision", string(result.DecisionType)),
	)
	return result, nil
}

// step runs the stage named by state.State and stores its output on the
// state. It returns the audit events describing what happened.
func (p *Pipeline) step(ctx context.Context, state *RunState, reviewer Reviewer) ([]model.AuditEvent, error) {
	stageCtx := ctx
	if secs := p.cfg.Triage.StageTimeoutSecs; secs > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	switch state.State {
	case StateExtract:
		text, err := p.extractor.ExtractText(stageCtx, state.Source)
		if err != nil {
			return nil, err
		}
		doc := ingest.Parse(state.Source, text)
		ingested := audit.Event(string(StateExtract), model.EventIngestion, "ingested denial letter", map[string]any{
			"path":         doc.Path,
			"content_hash": doc.ContentHash,
			"paragraphs":   len(doc.Spans),
		})

		denial, conf, _, err := ExtractPhase(stageCtx, doc, p.anthropic, p.cfg.Anthropic, p.cfg.Triage.MaxExtractChars)
		if err != nil {
			return []model.AuditEvent{ingested}, err
		}
		state.Denial = denial
		state.FieldConfidence = conf

		ev := audit.Event(string(StateExtract), model.EventExtraction, "extracted denial "+model.Redact(denial.ClaimNumber), map[string]any{
			"denial_reason": string(denial.DenialReason),
			"confidence":    denial.Confidence,
		})
		ev.ClaimID = denial.ClaimID
		return []model.AuditEvent{ingested, ev}, nil

	case StateRetrieve:
		started := audit.Event(string(StateRetrieve), model.EventRetrieval, "retrieval started", map[string]any{
			"denial_reason": string(state.Denial.DenialReason),
		})
		started.ClaimID = state.Denial.ClaimID

		retrieval, err := RetrievePhase(stageCtx, state.Denial, p.embedder, p.index, p.cfg.Retrieval)
		if err != nil {
			return []model.AuditEvent{started}, err
		}
		state.Retrieval = retrieval

		ev := audit.Event(string(StateRetrieve), model.EventRetrieval, "retrieved policy context", map[string]any{
			"matches": len(retrieval.Documents),
		})
		ev.ClaimID = state.Denial.ClaimID
		return []model.AuditEvent{started, ev}, nil

	case StateDecide:
		decision, _, err := DecidePhase(stageCtx, state.Denial, state.Retrieval, p.anthropic, p.cfg.Anthropic, p.cfg.Triage)
		if err != nil {
			return nil, err
		}
		state.Decision = decision

		ev := audit.Event(string(StateDecide), model.EventDecision, "decision: "+string(decision.Type), map[string]any{
			"confidence":         decision.Rationale.Confidence,
			"policies_consulted": decision.PoliciesConsulted,
		})
		ev.ClaimID = decision.ClaimID
		return []model.AuditEvent{ev}, nil

	case StateDraft:
		draft, _, err := DraftPhase(stageCtx, state.Denial, state.Decision, state.Retrieval, p.anthropic, p.cfg.Anthropic)
		if err != nil {
			return nil, err
		}
		state.Draft = draft

		ev := audit.Event(string(StateDraft), model.EventDraftCreated, "drafted appeal", map[string]any{
			"citations":          len(draft.Citations),
			"coverage":           draft.CitationCoverage,
			"hallucination_risk": draft.HallucinationRisk,
		})
		ev.ClaimID = draft.ClaimID
		return []model.AuditEvent{ev}, nil

	case StateVerify:
		outcome, err := VerifyPhase(stageCtx, state.Draft.Citations, state.Retrieval, p.embedder, p.cfg.Verify)
		if outcome != nil {
			state.Verify = outcome
		}
		if err != nil {
			return nil, err
		}

		// One event per attempt plus one per detected hallucination, so the
		// trail shows which claim/source pairs failed and at what similarity.
		events := make([]model.AuditEvent, 0, 2*len(outcome.Citations)+1)
		for _, vc := range outcome.Citations {
			ev := audit.Event(string(StateVerify), model.EventCitationVerification, "verified citation against source", map[string]any{
				"citation_id": vc.Citation.CitationID.String(),
				"score":       vc.Score,
				"valid":       vc.Valid,
				"claim_text":  truncateText(vc.Citation.ClaimText, sourceExcerptLen),
				"source_text": vc.SourceExcerpt,
			})
			ev.Success = vc.Valid
			ev.ClaimID = state.Draft.ClaimID
			events = append(events, ev)

			if vc.Valid {
				continue
			}
			hev := audit.Event(string(StateVerify), model.EventHallucinationDetected, "citation not supported by cited source", map[string]any{
				"citation_id": vc.Citation.CitationID.String(),
				"score":       vc.Score,
				"severity":    string(vc.Severity()),
				"claim_text":  truncateText(vc.Citation.ClaimText, sourceExcerptLen),
				"source_text": vc.SourceExcerpt,
			})
			hev.Success = false
			hev.ClaimID = state.Draft.ClaimID
			events = append(events, hev)
		}

		summary := audit.Event(string(StateVerify), model.EventCitationVerification, "citation verification complete", map[string]any{
			"total":          len(outcome.Citations),
			"hallucinations": outcome.HallucinationCount,
			"score":          outcome.Score,
			"avg_similarity": outcome.AvgSimilarity,
		})
		summary.Success = outcome.HallucinationCount == 0
		summary.ClaimID = state.Draft.ClaimID
		return append(events, summary), nil

	case StateReview:
		appeal, err := ReviewPhase(stageCtx, state.Draft, state.Verify, reviewer, p.cfg.Review)
		if err != nil {
			return nil, err
		}
		state.Appeal = appeal

		typ := model.EventHumanApproved
		if appeal.Status == model.AppealRejected {
			typ = model.EventHumanRejected
		}
		ev := audit.Event(string(StateReview), typ, "review: "+string(appeal.Status), map[string]any{
			"reviewer": appeal.ReviewedBy,
		})
		ev.Success = appeal.Status != model.AppealRejected
		ev.ClaimID = appeal.ClaimID
		return []model.AuditEvent{ev}, nil

	case StateExecute:
		outcome, err := ExecutePhase(stageCtx, state.Decision, state.Appeal, p.submitter, p.cfg.Execute)
		if err != nil {
			return nil, err
		}
		state.Execution = outcome

		ev := audit.Event(string(StateExecute), model.EventSubmission, outcome.Note, map[string]any{
			"submitted": outcome.Submitted,
			"reference": outcome.Reference,
		})
		ev.ClaimID = state.Decision.ClaimID
		return []model.AuditEvent{ev}, nil
	}

	return nil, eris.Errorf("pipeline: no stage for state %q", state.State)
}

// record appends an event to the in-memory trail and persists it.
func (p *Pipeline) record(ctx context.Context, builder *audit.Builder, state *RunState, ev model.AuditEvent) {
	builder.Append(ev)
	if err := p.store.AppendAuditEvent(ctx, state.RunID, ev); err != nil {
		zap.L().Warn("pipeline: failed to persist audit event",
			zap.String("run_id", state.RunID),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) persistState(ctx context.Context, state *RunState) {
	raw, err := json.Marshal(state)
	if err != nil {
		zap.L().Warn("pipeline: failed to encode state", zap.String("run_id", state.RunID), zap.Error(err))
		return
	}
	if err := p.store.SaveRunState(ctx, state.RunID, raw); err != nil {
		zap.L().Warn("pipeline: failed to persist state", zap.String("run_id", state.RunID), zap.Error(err))
	}
}

func (p *Pipeline) setStatus(ctx context.Context, runID string, status model.RunStatus) {
	if err := p.store.UpdateRunStatus(ctx, runID, status); err != nil {
		zap.L().Warn("pipeline: failed to update status",
			zap.String("run_id", runID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}
