package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-settlement/internal/service"
)

// ParticipantHandler exposes the participant ledger.
type ParticipantHandler struct {
	Parts *service.ParticipantService
}

func NewParticipantHandler(parts *service.ParticipantService) *ParticipantHandler {
	if parts == nil {
		panic("nil participant service passed to NewParticipantHandler")
	}
	return &ParticipantHandler{Parts: parts}
}

type addParticipantReq struct {
	ProfileID string `json:"profile_id" validate:"omitempty,max=36"`
}

// Add joins the caller, or, for the owner, adds the given profile.
func (h *ParticipantHandler) Add(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req addParticipantReq
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
	}
	p, err := h.Parts.Add(c.Request().Context(), uid, c.Param("id"), req.ProfileID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *ParticipantHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	v, err := h.Parts.Get(c.Request().Context(), uid, c.Param("id"), c.Param("pid"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// updateParticipantReq keeps weight as a raw number so fractions and
// out-of-range values surface as weight errors, not as a bad body.
type updateParticipantReq struct {
	Payed  *bool        `json:"payed"`
	Weight *json.Number `json:"weight"`
}

func (r updateParticipantReq) patch() (service.ParticipantPatch, error) {
	patch := service.ParticipantPatch{Payed: r.Payed}
	if r.Weight == nil {
		return patch, nil
	}
	w, err := strconv.ParseInt(r.Weight.String(), 10, 64)
	if err != nil || w <= 0 || w > service.MaxWeight {
		return patch, fmt.Errorf("%w: %s", service.ErrInvalidWeight, r.Weight.String())
	}
	n := int(w)
	patch.Weight = &n
	return patch, nil
}

// Update changes payed and/or weight.
func (h *ParticipantHandler) Update(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req updateParticipantReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	patch, err := req.patch()
	if err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	if err := h.Parts.CheckRoom(ctx, c.Param("id"), c.Param("pid")); err != nil {
		return respondError(c, err)
	}
	p, err := h.Parts.Update(ctx, uid, c.Param("pid"), patch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *ParticipantHandler) Remove(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx := c.Request().Context()
	if err := h.Parts.CheckRoom(ctx, c.Param("id"), c.Param("pid")); err != nil {
		return respondError(c, err)
	}
	if err := h.Parts.Remove(ctx, uid, c.Param("pid")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CompletedPayment returns the caller's completed payment for pid.
func (h *ParticipantHandler) CompletedPayment(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	p, err := h.Parts.CompletedPayment(c.Request().Context(), uid, c.Param("pid"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
