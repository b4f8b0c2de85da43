package services

import (
	"net/http"

	errs "github.com/yungbote/karibu-backend/internal/pkg/errors"
	"github.com/yungbote/karibu-backend/internal/platform/apierr"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

// userError carries a client-safe message and a sentinel kind for errors.Is.
type userError struct {
	msg  string
	kind error
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Unwrap() error { return e.kind }

func userErr(status int, code string, kind error, msg string) error {
	return apierr.New(status, code, &userError{msg: msg, kind: kind})
}

func notFound(code, msg string) error {
	return userErr(http.StatusNotFound, code, errs.ErrNotFound, msg)
}

func invalidArgument(code, msg string) error {
	return userErr(http.StatusBadRequest, code, errs.ErrInvalidArgument, msg)
}

func conflict(code, msg string) error {
	return userErr(http.StatusConflict, code, errs.ErrConflict, msg)
}

// internalError logs cause and returns a generic 500.
func internalError(log *logger.Logger, code string, cause error, kv ...interface{}) error {
	log.Error("Request failed", append([]interface{}{"code", code, "error", cause}, kv...)...)
	return userErr(http.StatusInternalServerError, code, cause, "Internal server error")
}
