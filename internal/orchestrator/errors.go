package orchestrator

import (
	"errors"
	"fmt"

	"github.com/plume-ai/backend/internal/backend"
)

// Error codes surfaced to callers. Backend transport failures never leave
// this package as-is; they are converted to this taxonomy.
const (
	CodeInputInvalid      = "input_invalid"
	CodeModelNotAvailable = "model_not_available"
	CodeServiceDegraded   = "service_degraded"
	CodeTimeout           = "timeout"
)

// TaskError carries a machine-readable code, an HTTP-ish status class, and
// a French user message free of internal identifiers.
type TaskError struct {
	Code    string `json:"code"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func errInputInvalid(message string) *TaskError {
	return &TaskError{Code: CodeInputInvalid, Status: 400, Message: message}
}

func errInputEmpty() *TaskError {
	return errInputInvalid("Le texte fourni est vide.")
}

func errInputTooShort(min int) *TaskError {
	return errInputInvalid(fmt.Sprintf("Le texte fourni est trop court (minimum %d caractères).", min))
}

func errModelNotAvailable() *TaskError {
	return &TaskError{
		Code:    CodeModelNotAvailable,
		Status:  503,
		Message: "Le modèle demandé n'est pas disponible. Vérifiez qu'il est installé ou choisissez un autre modèle.",
	}
}

func errServiceDegraded() *TaskError {
	return &TaskError{
		Code:    CodeServiceDegraded,
		Status:  503,
		Message: "Aucun moteur de génération n'est disponible pour le moment. Veuillez réessayer plus tard.",
	}
}

func errTimeout() *TaskError {
	return &TaskError{
		Code:    CodeTimeout,
		Status:  504,
		Message: "Le traitement a dépassé le délai imparti. Veuillez réessayer.",
	}
}

// convert maps a backend error to the public taxonomy. Unavailability means
// the fallback chain was exhausted, so it surfaces as service degraded.
func convert(err error) *TaskError {
	switch {
	case errors.Is(err, backend.ErrModelNotAvailable):
		return errModelNotAvailable()
	case errors.Is(err, backend.ErrUnavailable), errors.Is(err, backend.ErrUnknownBackend):
		return errServiceDegraded()
	default:
		return errServiceDegraded()
	}
}
