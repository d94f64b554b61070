package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"go.mongodb.org/mongo-driver/mongo"

	"deadstock/utils"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrForbidden    = errors.New("forbidden")
)

// notFound wraps ErrNotFound with the missing entity name so the message reads
// "asset not found".
func notFound(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}

func conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func invalidState(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func forbidden(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// respondServiceError maps sentinel errors to their HTTP status. Anything else
// is logged and reported as a 500 with the generic message.
func respondServiceError(w http.ResponseWriter, err error, generic string) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, mongo.ErrNoDocuments):
		msg := err.Error()
		if errors.Is(err, mongo.ErrNoDocuments) {
			msg = "not found"
		}
		utils.RespondWithError(w, http.StatusNotFound, msg)
	case errors.Is(err, ErrConflict), mongo.IsDuplicateKeyError(err):
		msg := err.Error()
		if mongo.IsDuplicateKeyError(err) {
			msg = "a record with the same unique value already exists"
		}
		utils.RespondWithError(w, http.StatusConflict, msg)
	case errors.Is(err, ErrInvalidState):
		utils.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrForbidden):
		utils.RespondWithError(w, http.StatusForbidden, err.Error())
	default:
		log.Printf("%s: %v", generic, err)
		utils.RespondWithError(w, http.StatusInternalServerError, generic)
	}
}
