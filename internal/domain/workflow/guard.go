// Package workflow centralizes the binding and transaction state-transition
// guards. Services route every state-mutating operation through these checks
// before doing side-effectful work.
package workflow

import (
	"sort"
	"strings"

	"github.com/okedigitalmedia/voucherd/internal/domain"
)

// Binding actions.
const (
	ActionRequestLogin         = "request_login"
	ActionVerifyLogin          = "verify_login"
	ActionRefreshTokenLocation = "refresh_token_location"
	ActionVerifyReseller       = "verify_reseller"
	ActionCheckBalance         = "check_balance"
	ActionLogout               = "logout"
	ActionStartTransaction     = "start_transaction"
)

// Transaction actions.
const (
	ActionSubmitOTP           = "submit_otp"
	ActionContinueTransaction = "continue_transaction"
	ActionPauseTransaction    = "pause_transaction"
	ActionResumeTransaction   = "resume_transaction"
	ActionStopTransaction     = "stop_transaction"
	ActionCheckAndDecide      = "check_balance_and_continue_or_stop"
)

var bindingTransitions = map[string][]domain.BindingStep{
	ActionRequestLogin: {domain.StepBound, domain.StepOTPRequested},
	ActionVerifyLogin:  {domain.StepOTPRequested},
	ActionRefreshTokenLocation: {
		domain.StepOTPVerified, domain.StepTokenLoginFetched,
	},
	ActionVerifyReseller: {
		domain.StepOTPVerified, domain.StepTokenLoginFetched,
	},
	ActionCheckBalance: {
		domain.StepBound, domain.StepOTPRequested, domain.StepOTPVerification,
		domain.StepOTPVerified, domain.StepTokenLoginFetched,
	},
	ActionLogout: {
		domain.StepBound, domain.StepOTPRequested, domain.StepOTPVerification,
		domain.StepOTPVerified, domain.StepTokenLoginFetched,
	},
	ActionStartTransaction: {domain.StepTokenLoginFetched},
}

var transactionTransitions = map[string][]domain.TransactionStatus{
	ActionSubmitOTP:           {domain.TrxProcessing, domain.TrxResumed},
	ActionContinueTransaction: {domain.TrxProcessing, domain.TrxResumed},
	ActionPauseTransaction:    {domain.TrxProcessing, domain.TrxResumed},
	ActionResumeTransaction:   {domain.TrxPaused},
	ActionStopTransaction: {
		domain.TrxProcessing, domain.TrxResumed, domain.TrxPaused, domain.TrxSuspect,
	},
	ActionCheckAndDecide: {
		domain.TrxProcessing, domain.TrxResumed, domain.TrxPaused,
	},
}

// EnsureBindingStep validates that a binding action is allowed from the
// current step, returning a Validation error listing the allowed steps.
func EnsureBindingStep(action string, current domain.BindingStep) error {
	allowed, ok := bindingTransitions[action]
	if ok && contains(allowed, current) {
		return nil
	}
	names := stepNames(allowed)
	return domain.ValidationError(
		"binding_invalid_step_transition",
		"action %q is not valid for step %q; allowed: [%s]",
		action, current, strings.Join(names, ", "),
	).WithContext(map[string]any{
		"action":        action,
		"current_step":  string(current),
		"allowed_steps": names,
	})
}

// EnsureTransactionStatus validates that a transaction action is allowed from
// the current status, returning a Validation error listing allowed statuses.
func EnsureTransactionStatus(action string, current domain.TransactionStatus) error {
	allowed, ok := transactionTransitions[action]
	if ok && contains(allowed, current) {
		return nil
	}
	names := statusNames(allowed)
	return domain.ValidationError(
		"transaction_invalid_status_transition",
		"action %q is not valid for status %q; allowed: [%s]",
		action, current, strings.Join(names, ", "),
	).WithContext(map[string]any{
		"action":           action,
		"current_status":   string(current),
		"allowed_statuses": names,
	})
}

func contains[T comparable](set []T, v T) bool {
	for _, item := range set {
		if item == v {
			return true
		}
	}
	return false
}

func stepNames(steps []domain.BindingStep) []string {
	names := make([]string, 0, len(steps))
	for _, s := range steps {
		names = append(names, string(s))
	}
	sort.Strings(names)
	return names
}

func statusNames(statuses []domain.TransactionStatus) []string {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	sort.Strings(names)
	return names
}
