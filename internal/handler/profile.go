package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-settlement/internal/service"
)

// ProfileHandler serves the caller's profile and wallet linking.
type ProfileHandler struct {
	Profiles *service.ProfileService
	Payments *service.PaymentService
}

func NewProfileHandler(profiles *service.ProfileService, payments *service.PaymentService) *ProfileHandler {
	if profiles == nil || payments == nil {
		panic("nil service passed to NewProfileHandler")
	}
	return &ProfileHandler{Profiles: profiles, Payments: payments}
}

func (h *ProfileHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	p, err := h.Profiles.Get(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

type renameReq struct {
	Name string `json:"name" validate:"required,max=120"`
}

// Rename updates the display name.  The wallet cannot be set here.
func (h *ProfileHandler) Rename(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req renameReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	p, err := h.Profiles.Rename(c.Request().Context(), uid, req.Name)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// LinkWallet issues a sign-in request; the signing account becomes the
// profile wallet once the webhook confirms it.
func (h *ProfileHandler) LinkWallet(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	req, err := h.Payments.IssueWalletLinkRequest(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, req)
}
