package handler

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/library-lending/internal/core/domain"
	"github.com/rl1809/library-lending/internal/core/service"
)

// errorCode maps an error to its HTTP status and public message. Internal errors
// never leak their text.
func errorCode(err error) (int, string, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, domain.KindValidation, verrs.Error()
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate_request", "duplicate request"
	}

	kind := domain.KindOf(err)
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound, kind, err.Error()
	case domain.KindInvalidState:
		return http.StatusConflict, kind, err.Error()
	case domain.KindPolicyViolation:
		return http.StatusUnprocessableEntity, kind, err.Error()
	case domain.KindValidation:
		return http.StatusBadRequest, kind, err.Error()
	default:
		return http.StatusInternalServerError, domain.KindInternal, "internal error"
	}
}

func grpcError(err error) error {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return status.Error(codes.InvalidArgument, verrs.Error())
	case errors.Is(err, service.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, "duplicate request")
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrTitleExists):
		return status.Error(codes.AlreadyExists, err.Error())
	}

	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case domain.KindInvalidState, domain.KindPolicyViolation:
		return status.Error(codes.FailedPrecondition, err.Error())
	case domain.KindValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
