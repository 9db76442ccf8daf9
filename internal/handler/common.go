package handler // HTTP handlers for the settlement API

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-settlement/internal/middleware"
	"github.com/iliyamo/room-settlement/internal/repository"
	"github.com/iliyamo/room-settlement/internal/service"
)

// RequestValidator plugs validator/v10 into echo's c.Validate.
type RequestValidator struct {
	v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{v: validator.New()}
}

func (rv *RequestValidator) Validate(i any) error {
	return rv.v.Struct(i)
}

// bind decodes and validates the request body into dst.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return fmt.Errorf("%w: invalid body", service.ErrInvalidInput)
	}
	if c.Echo().Validator == nil {
		return nil
	}
	if err := c.Validate(dst); err != nil {
		return fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	return nil
}

// getUserID returns the caller id stored by JWTAuth.
func getUserID(c echo.Context) (string, error) {
	if id, ok := middleware.UserID(c); ok {
		return id, nil
	}
	return "", errors.New("missing user_id in context")
}

type httpError struct {
	status int
	code   string
}

// errorTable maps domain and persistence sentinels to a status and a
// stable machine-readable code.  Order matters only for wrapped chains
// that match several entries.
var errorTable = []struct {
	err error
	out httpError
}{
	{service.ErrPermissionDenied, httpError{http.StatusForbidden, "PERMISSION_DENIED"}},
	{service.ErrOwnerCannotLeave, httpError{http.StatusForbidden, "OWNER_CANNOT_LEAVE"}},
	{service.ErrRoomClosed, httpError{http.StatusConflict, "ROOM_CLOSED"}},
	{service.ErrSettlementLocked, httpError{http.StatusConflict, "SETTLEMENT_LOCKED"}},
	{service.ErrAlreadyReady, httpError{http.StatusConflict, "ALREADY_READY"}},
	{service.ErrNotReady, httpError{http.StatusConflict, "NOT_READY"}},
	{service.ErrAlreadySettled, httpError{http.StatusConflict, "ALREADY_SETTLED"}},
	{service.ErrNotAllPaid, httpError{http.StatusConflict, "NOT_ALL_PAID"}},
	{service.ErrOwnerWalletNotFound, httpError{http.StatusConflict, "OWNER_WALLET_NOT_FOUND"}},
	{service.ErrAlreadyPaid, httpError{http.StatusConflict, "ALREADY_PAID"}},
	{service.ErrAlreadyParticipant, httpError{http.StatusConflict, "ALREADY_PARTICIPANT"}},
	{repository.ErrDuplicateParticipant, httpError{http.StatusConflict, "ALREADY_PARTICIPANT"}},
	{repository.ErrEmailExists, httpError{http.StatusConflict, "EMAIL_EXISTS"}},
	{service.ErrInvalidWeight, httpError{http.StatusBadRequest, "INVALID_WEIGHT"}},
	{service.ErrInvalidPayload, httpError{http.StatusBadRequest, "INVALID_PAYLOAD"}},
	{service.ErrNotSigned, httpError{http.StatusBadRequest, "NOT_SIGNED"}},
	{service.ErrInvalidInput, httpError{http.StatusBadRequest, "INVALID_INPUT"}},
	{service.ErrWebhookEventNotFound, httpError{http.StatusNotFound, "WEBHOOK_EVENT_NOT_FOUND"}},
	{service.ErrMissingReference, httpError{http.StatusNotFound, "MISSING_REFERENCE"}},
	{service.ErrRoomNotFound, httpError{http.StatusNotFound, "ROOM_NOT_FOUND"}},
	{service.ErrParticipantNotFound, httpError{http.StatusNotFound, "PARTICIPANT_NOT_FOUND"}},
	{service.ErrProfileNotFound, httpError{http.StatusNotFound, "PROFILE_NOT_FOUND"}},
	{service.ErrPaymentNotFound, httpError{http.StatusNotFound, "PAYMENT_NOT_FOUND"}},
	{repository.ErrSignatureRequestNotFound, httpError{http.StatusNotFound, "SIGNATURE_REQUEST_NOT_FOUND"}},
	{repository.ErrUserNotFound, httpError{http.StatusNotFound, "USER_NOT_FOUND"}},
}

// respondError writes err as {"error","code"}.  Provider and unexpected
// failures get a generic message; the detail only goes to the log.
func respondError(c echo.Context, err error) error {
	if errors.Is(err, service.ErrProviderError) {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "payment provider unavailable, please retry",
			"code":  "PROVIDER_ERROR",
		})
	}
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return c.JSON(e.out.status, echo.Map{"error": err.Error(), "code": e.out.code})
		}
	}
	c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error", "code": "INTERNAL"})
}
