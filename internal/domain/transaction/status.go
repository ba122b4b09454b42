package transaction

// ===============================
// Transaction State
// ===============================

type State string

const (
	StateInitiated      State = "initiated"
	StateAuthorized     State = "authorized"
	StateAccepted       State = "accepted"
	StateDenied         State = "denied"
	StateCapturePending State = "capture_pending"
	StateCompleted      State = "completed"
	StateCaptureFailed  State = "capture_failed"
	StateFreeCompleted  State = "free_completed"
	StateErrored        State = "errored"
)

// transitions lists every allowed move. capture_pending -> accepted only
// happens when a postpay charge fails and the requester may pay again.
var transitions = map[State][]State{
	StateInitiated:      {StateAuthorized, StateErrored, StateFreeCompleted, StateAccepted, StateDenied},
	StateAuthorized:     {StateCapturePending, StateDenied},
	StateAccepted:       {StateCapturePending},
	StateCapturePending: {StateCompleted, StateCaptureFailed, StateAccepted},
	StateCaptureFailed:  {StateCapturePending},
}

func (s State) Valid() bool {
	switch s {
	case StateInitiated, StateAuthorized, StateAccepted, StateDenied,
		StateCapturePending, StateCompleted, StateCaptureFailed,
		StateFreeCompleted, StateErrored:
		return true
	}
	return false
}

func (s State) Terminal() bool {
	switch s {
	case StateDenied, StateCompleted, StateFreeCompleted, StateErrored:
		return true
	}
	return false
}

// Blocking states hold their booking's time span against other requests.
func (s State) Blocking() bool {
	switch s {
	case StateAccepted, StateCapturePending, StateCompleted, StateCaptureFailed, StateFreeCompleted:
		return true
	}
	return false
}

func BlockingStates() []State {
	return []State{StateAccepted, StateCapturePending, StateCompleted, StateCaptureFailed, StateFreeCompleted}
}

func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ===============================
// Validations
// ===============================

func ValidateTransition(from, to State) error {
	if from.Terminal() {
		return ErrInvalidState("transaction_closed", "transaction is already "+string(from))
	}
	if !CanTransition(from, to) {
		return ErrInvalidState("invalid_transition", "cannot move from "+string(from)+" to "+string(to))
	}
	return nil
}

// ===============================
// Decisions
// ===============================

type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionDeny   Decision = "deny"
)

func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionAccept, DecisionDeny:
		return Decision(s), nil
	}
	return "", ErrValidation("invalid_decision", "decision must be accept or deny")
}

// AppointmentDecision records the provider's answer on the booking.
type AppointmentDecision string

const (
	AppointmentUndecided AppointmentDecision = "undecided"
	AppointmentAccepted  AppointmentDecision = "accepted"
	AppointmentDenied    AppointmentDecision = "denied"
)
