package transaction

import "github.com/BruksfildServices01/marketplace-exchange/internal/httperr"

func ErrValidation(code, msg string) error {
	return httperr.New(httperr.KindValidation, code, msg)
}

func ErrConflict(msg string) error {
	return httperr.New(httperr.KindConflict, "time_conflict", msg)
}

func ErrOutsideAvailability(msg string) error {
	return httperr.New(httperr.KindOutsideAvailability, "outside_availability", msg)
}

func ErrInvalidState(code, msg string) error {
	return httperr.New(httperr.KindInvalidState, code, msg)
}

func ErrUnauthorized(msg string) error {
	return httperr.New(httperr.KindUnauthorized, "not_a_party", msg)
}

func ErrNotFound(code, msg string) error {
	return httperr.New(httperr.KindNotFound, code, msg)
}
