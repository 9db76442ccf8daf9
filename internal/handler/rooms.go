package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-settlement/internal/model"
	"github.com/iliyamo/room-settlement/internal/service"
)

// RoomHandler exposes the room state machine.
type RoomHandler struct {
	Rooms *service.RoomService
}

func NewRoomHandler(rooms *service.RoomService) *RoomHandler {
	if rooms == nil {
		panic("nil room service passed to NewRoomHandler")
	}
	return &RoomHandler{Rooms: rooms}
}

// ListMine returns the rooms the caller participates in.
func (h *RoomHandler) ListMine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	rooms, err := h.Rooms.ListMine(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": rooms})
}

func (h *RoomHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var in service.RoomInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	room, err := h.Rooms.Create(c.Request().Context(), uid, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	view, err := h.Rooms.Get(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *RoomHandler) Update(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var patch service.RoomPatch
	if err := bind(c, &patch); err != nil {
		return respondError(c, err)
	}
	room, err := h.Rooms.Update(c.Request().Context(), uid, c.Param("id"), patch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	if err := h.Rooms.Delete(c.Request().Context(), uid, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *RoomHandler) Open(c echo.Context) error { return h.transition(c, h.Rooms.Open) }

func (h *RoomHandler) Close(c echo.Context) error { return h.transition(c, h.Rooms.Close) }

func (h *RoomHandler) Ready(c echo.Context) error {
	return h.transition(c, h.Rooms.SetReadyForSettlement)
}

func (h *RoomHandler) Settle(c echo.Context) error { return h.transition(c, h.Rooms.Settle) }

type roomTransition = func(ctx context.Context, userID, roomID string) (model.Room, error)

func (h *RoomHandler) transition(c echo.Context, fn roomTransition) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	room, err := fn(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, room)
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": "UNAUTHORIZED"})
}
