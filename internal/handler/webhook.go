package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-settlement/internal/service"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives provider callbacks.  It is unauthenticated:
// the callback is only trusted after the reconciler re-fetches the
// payload from the provider.
type WebhookHandler struct {
	Reconciler *service.Reconciler
}

func NewWebhookHandler(r *service.Reconciler) *WebhookHandler {
	if r == nil {
		panic("nil reconciler passed to NewWebhookHandler")
	}
	return &WebhookHandler{Reconciler: r}
}

// Handle answers every method so that anything but POST gets a JSON 405
// the provider can log.  The status code drives the provider's retries.
func (h *WebhookHandler) Handle(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		c.Response().Header().Set(echo.HeaderAllow, http.MethodPost)
		return c.JSON(http.StatusMethodNotAllowed, echo.Map{"error": "method not allowed", "code": "METHOD_NOT_ALLOWED"})
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body", "code": "INVALID_PAYLOAD"})
	}
	res, err := h.Reconciler.Handle(c.Request().Context(), body)
	if err != nil {
		c.Logger().Warnf("webhook: %v", err)
		return respondError(c, err)
	}
	out := echo.Map{"status": "success", "action": res.Action}
	if res.Payment != nil {
		out["payment"] = res.Payment
	}
	if res.SignatureRequest != nil {
		out["signature_request"] = res.SignatureRequest
	}
	return c.JSON(http.StatusOK, out)
}
