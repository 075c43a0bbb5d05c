package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-triage/internal/config"
	"github.com/sells-group/claims-triage/internal/model"
)

// PermissionLevel bounds what the executor may do on behalf of the provider.
type PermissionLevel string

const (
	PermissionReadOnly     PermissionLevel = "read_only"
	PermissionWriteAppeals PermissionLevel = "write_appeals"
	PermissionAdmin        PermissionLevel = "admin"
)

// ParsePermission validates a configured permission level.
func ParsePermission(s string) (PermissionLevel, error) {
	switch PermissionLevel(s) {
	case PermissionReadOnly, PermissionWriteAppeals, PermissionAdmin:
		return PermissionLevel(s), nil
	}
	return "", eris.Errorf("pipeline: unknown permission level %q", s)
}

// Submitter sends an approved appeal to the payor and returns a submission
// reference.
type Submitter interface {
	Submit(ctx context.Context, appeal *model.Appeal) (string, error)
}

// ReferenceSubmitter records the submission locally and mints a reference.
// Real payor portal integration slots in behind the same interface.
type ReferenceSubmitter struct{}

// Submit returns a fresh submission reference of the form APL-<hex>-<date>.
func (ReferenceSubmitter) Submit(_ context.Context, _ *model.Appeal) (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", eris.Wrap(err, "pipeline: submission reference")
	}
	return fmt.Sprintf("APL-%s-%s", hex.EncodeToString(b[:]), time.Now().UTC().Format("20060102")), nil
}

// ExecuteOutcome is what the execute stage did with the decision.
type ExecuteOutcome struct {
	Submitted bool   `json:"submitted"`
	Reference string `json:"reference,omitempty"`
	Note      string `json:"note"`
}

// ExecutePhase carries out the decision. Appeals require an approved review
// and write permission; no-appeal and escalate decisions close the run with
// a recorded disposition and never touch the payor.
func ExecutePhase(
	ctx context.Context,
	decision *model.Decision,
	appeal *model.Appeal,
	submitter Submitter,
	cfg config.ExecuteConfig,
) (*ExecuteOutcome, error) {
	perm, err := ParsePermission(cfg.PermissionLevel)
	if err != nil {
		return nil, err
	}

	switch decision.Type {
	case model.DecisionNoAppeal:
		return &ExecuteOutcome{Note: "no appeal warranted; claim closed"}, nil

	case model.DecisionEscalate:
		note := "escalated for human handling"
		if decision.EscalationReason != "" {
			note = "escalated: " + decision.EscalationReason
		}
		return &ExecuteOutcome{Note: note}, nil

	case model.DecisionAppeal:
		if appeal == nil {
			return nil, eris.New("pipeline: appeal decision reached execute without a reviewed appeal")
		}
		if appeal.Status == model.AppealRejected {
			return &ExecuteOutcome{Note: "appeal rejected in review; not submitted"}, nil
		}
		if appeal.Status != model.AppealApproved {
			return nil, eris.Errorf("pipeline: cannot submit appeal in status %s", appeal.Status)
		}
		if perm == PermissionReadOnly {
			return nil, eris.New("pipeline: permission level read_only cannot submit appeals")
		}

		ref, err := submitter.Submit(ctx, appeal)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: submit appeal")
		}
		appeal.Status = model.AppealSubmitted
		appeal.SubmittedAt = time.Now().UTC()
		appeal.SubmissionReference = ref

		zap.L().Info("pipeline: appeal submitted",
			zap.String("appeal_id", appeal.AppealID.String()),
			zap.String("reference", ref),
		)
		return &ExecuteOutcome{Submitted: true, Reference: ref, Note: "appeal submitted"}, nil
	}

	return nil, eris.Errorf("pipeline: no executable decision (type %q)", decision.Type)
}
