package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/claims-triage/internal/model"
)

func TestNextState_HappyPathAppeal(t *testing.T) {
	s := &RunState{State: StateExtract}
	order := []State{StateExtract}
	s.Decision = &model.Decision{Type: model.DecisionAppeal}
	for !s.State.Terminal() {
		s.State = NextState(s)
		order = append(order, s.State)
	}
	assert.Equal(t, []State{
		StateExtract, StateRetrieve, StateDecide, StateDraft,
		StateVerify, StateReview, StateExecute, StateDone,
	}, order)
}

func TestNextState_NonAppealSkipsDrafting(t *testing.T) {
	for _, typ := range []model.DecisionType{model.DecisionNoAppeal, model.DecisionEscalate} {
		s := &RunState{State: StateDecide, Decision: &model.Decision{Type: typ}}
		assert.Equal(t, StateExecute, NextState(s), string(typ))
	}
}

func TestNextState_ErrorIsTerminalFromAnyState(t *testing.T) {
	for _, st := range []State{StateExtract, StateRetrieve, StateDecide, StateDraft, StateVerify, StateReview, StateExecute} {
		s := &RunState{State: st, Err: "boom"}
		assert.Equal(t, StateFailed, NextState(s), string(st))
	}
}

func TestNextState_MissingDecisionRoutesToExecute(t *testing.T) {
	// A decide state with no decision recorded cannot branch to drafting.
	s := &RunState{State: StateDecide}
	assert.Equal(t, StateExecute, NextState(s))
}

func TestResult_AppealRequiresSubmission(t *testing.T) {
	s := &RunState{
		State:     StateDone,
		Decision:  &model.Decision{Type: model.DecisionAppeal},
		Execution: &ExecuteOutcome{Submitted: true, Reference: "APL-deadbeef-20260901"},
	}
	result := s.Result()
	assert.True(t, result.Success)
	assert.Equal(t, "APL-deadbeef-20260901", result.ExecutionReference)

	s.Execution = &ExecuteOutcome{Submitted: false}
	assert.False(t, s.Result().Success, "unsubmitted appeal is not a success")
}

func TestResult_NoAppealSucceedsWithoutSubmission(t *testing.T) {
	for _, typ := range []model.DecisionType{model.DecisionNoAppeal, model.DecisionEscalate} {
		s := &RunState{
			State:     StateDone,
			Decision:  &model.Decision{Type: typ},
			Execution: &ExecuteOutcome{},
		}
		result := s.Result()
		assert.True(t, result.Success, string(typ))
		assert.False(t, result.Submitted)
	}
}

func TestResult_NoDecisionIsFailure(t *testing.T) {
	s := &RunState{State: StateFailed, Err: "extract blew up"}
	result := s.Result()
	assert.False(t, result.Success)
	assert.Equal(t, "failed", result.FinalStep)
	assert.Equal(t, "extract blew up", result.ErrorMessage)
	assert.Empty(t, result.DecisionType)
}

func TestResult_ErrorBlocksSuccessEvenWithDecision(t *testing.T) {
	s := &RunState{
		State:    StateFailed,
		Err:      "submit failed",
		Decision: &model.Decision{Type: model.DecisionEscalate},
	}
	assert.False(t, s.Result().Success)
}

func TestResult_CarriesVerificationMetrics(t *testing.T) {
	s := &RunState{
		State:    StateDone,
		Decision: &model.Decision{Type: model.DecisionAppeal},
		Draft:    &model.AppealDraft{CitationCoverage: 0.8},
		Verify:   &VerifyOutcome{HallucinationCount: 2, Score: 0.5, AvgSimilarity: 0.55},
	}
	result := s.Result()
	assert.InDelta(t, 0.8, result.CitationCoverage, 0.001)
	assert.Equal(t, 2, result.HallucinationCount)
	assert.InDelta(t, 0.5, result.VerificationScore, 0.001)
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateReview.Terminal())
}
