package session

type State string

const (
	StateStart            State = "start"
	StateEditionSelect    State = "edition_select"
	StateIdentityInput    State = "identity_input"
	StateNationalityInput State = "nationality_input"
	StatePeriodInput      State = "period_input"
	StateCompanionsInput  State = "companions_input"
	StateSponsorInput     State = "sponsor_input"
	StateConfirmPending   State = "confirm_pending"
	// StateInspecting guards against a second confirm while the pipeline runs.
	StateInspecting  State = "inspecting"
	StateSponsorWait State = "sponsor_wait"

	StateApproved  State = "approved"
	StateRejected  State = "rejected"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
)

func (s State) Terminal() bool {
	switch s {
	case StateApproved, StateRejected, StateTimedOut, StateCancelled:
		return true
	default:
		return false
	}
}

// Cancellable reports whether the applicant may still withdraw.
func (s State) Cancellable() bool {
	switch s {
	case StateStart, StateEditionSelect, StateIdentityInput, StateNationalityInput,
		StatePeriodInput, StateCompanionsInput, StateSponsorInput, StateConfirmPending:
		return true
	default:
		return false
	}
}

// textInputs maps each free-text state to the state that follows it.
var textInputs = map[State]State{
	StateIdentityInput:    StateNationalityInput,
	StateNationalityInput: StatePeriodInput,
	StatePeriodInput:      StateCompanionsInput,
	StateCompanionsInput:  StateSponsorInput,
	StateSponsorInput:     StateConfirmPending,
}

// outcomeLabel is the wording used in the audit trail for a terminal state.
func outcomeLabel(s State) string {
	switch s {
	case StateApproved:
		return "承認"
	case StateRejected:
		return "却下"
	case StateTimedOut:
		return "タイムアウト"
	case StateCancelled:
		return "キャンセル"
	default:
		return string(s)
	}
}
