package pipeline

import (
	"github.com/sells-group/claims-triage/internal/model"
)

// State names a stage of the triage workflow. Transitions are computed by
// NextState alone, so the reachable graph is auditable in one place.
type State string

const (
	StateExtract  State = "extract"
	StateRetrieve State = "retrieve"
	StateDecide   State = "decide"
	StateDraft    State = "draft"
	StateVerify   State = "verify"
	StateReview   State = "review"
	StateExecute  State = "execute"
	StateDone     State = "done"
	StateFailed   State = "failed"
)

// Terminal reports whether no further transitions exist from s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// RunState is the complete snapshot of a workflow run between stages. It is
// serialized to the store after every transition, which is what makes
// suspend and resume at the review gate possible.
type RunState struct {
	RunID  string `json:"run_id"`
	Source string `json:"source"`
	State  State  `json:"state"`
	Err    string `json:"error,omitempty"`

	Denial          *model.ClaimDenial     `json:"denial,omitempty"`
	FieldConfidence *model.FieldConfidence `json:"field_confidence,omitempty"`
	Retrieval       *model.RetrievalResult `json:"retrieval,omitempty"`
	Decision        *model.Decision        `json:"decision,omitempty"`
	Draft           *model.AppealDraft     `json:"draft,omitempty"`
	Verify          *VerifyOutcome         `json:"verify,omitempty"`
	Appeal          *model.Appeal          `json:"appeal,omitempty"`
	Execution       *ExecuteOutcome        `json:"execution,omitempty"`
}

// NextState computes the transition out of the current state given the data
// accumulated so far. It is pure: persisting and clock concerns live in the
// driver. A recorded error is terminal from any state.
func NextState(s *RunState) State {
	if s.Err != "" {
		return StateFailed
	}

	switch s.State {
	case StateExtract:
		return StateRetrieve
	case StateRetrieve:
		return StateDecide
	case StateDecide:
		// Only appeals need drafting; everything else goes straight to
		// disposition.
		if s.Decision != nil && s.Decision.Type == model.DecisionAppeal {
			return StateDraft
		}
		return StateExecute
	case StateDraft:
		return StateVerify
	case StateVerify:
		return StateReview
	case StateReview:
		return StateExecute
	case StateExecute:
		return StateDone
	}
	return StateFailed
}

// Result summarizes a terminated run. An appeal decision succeeds only when
// the appeal was actually submitted with no residual error; no-appeal and
// escalate decisions succeed on any clean path to termination; a run that
// never produced a decision is always a failure.
func (s *RunState) Result() *model.RunResult {
	result := &model.RunResult{
		RunID:        s.RunID,
		FinalStep:    string(s.State),
		ErrorMessage: s.Err,
	}
	if s.Draft != nil {
		result.CitationCoverage = s.Draft.CitationCoverage
	}
	if s.Verify != nil {
		result.HallucinationCount = s.Verify.HallucinationCount
		result.VerificationScore = s.Verify.Score
	}
	if s.Execution != nil {
		result.Submitted = s.Execution.Submitted
		result.ExecutionReference = s.Execution.Reference
	}

	if s.Decision == nil {
		return result
	}
	result.DecisionType = s.Decision.Type

	switch s.Decision.Type {
	case model.DecisionAppeal:
		result.Success = result.Submitted && s.Err == ""
	case model.DecisionNoAppeal, model.DecisionEscalate:
		result.Success = s.Err == ""
	}
	return result
}
