package pipeline

import "github.com/nightwatch-dev/nightwatch/pkg/model"

// MsgErrorsReady is broadcast once ingestion has fetched, filtered, and
// ranked the run's errors.
const MsgErrorsReady = "ERRORS_READY"

// errorsReadyPayload carries the ranked error set on the ERRORS_READY
// broadcast.
type errorsReadyPayload struct {
	Errors []model.ErrorGroup
}

func (p errorsReadyPayload) Clone() model.Payload {
	clone := make([]model.ErrorGroup, len(p.Errors))
	copy(clone, p.Errors)
	return errorsReadyPayload{Errors: clone}
}
