package repository

import (
	"context"

	"github.com/iliyamo/room-settlement/internal/model"
)

const roomColumns = `id, name, description, total_price, is_open, is_ready_for_settlement, has_settled, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(s rowScanner) (model.Room, error) {
	var r model.Room
	err := s.Scan(&r.ID, &r.Name, &r.Description, &r.TotalPrice,
		&r.IsOpen, &r.IsReadyForSettlement, &r.HasSettled, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// CreateRoom inserts r and reads back the row so timestamps and
// defaults are populated.  r.ID must be set by the caller.
func (q *Queries) CreateRoom(ctx context.Context, r *model.Room) error {
	const ins = `INSERT INTO rooms (id, name, description, total_price, is_open, is_ready_for_settlement, has_settled)
	             VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := q.db.ExecContext(ctx, ins, r.ID, r.Name, r.Description, r.TotalPrice,
		r.IsOpen, r.IsReadyForSettlement, r.HasSettled); err != nil {
		return err
	}
	got, err := q.GetRoom(ctx, r.ID)
	if err != nil {
		return err
	}
	*r = got
	return nil
}

// GetRoom returns ErrRoomNotFound when no row matches.
func (q *Queries) GetRoom(ctx context.Context, id string) (model.Room, error) {
	r, err := scanRoom(q.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id))
	return r, notFound(err, ErrRoomNotFound)
}

const lockRoomQuery = `SELECT ` + roomColumns + ` FROM rooms WHERE id = ? FOR UPDATE`

// LockRoom reads the room with SELECT ... FOR UPDATE.  Every room-scoped
// mutation takes this lock first so concurrent transitions, participant
// changes and webhook reconciliation on the same room serialise on it.
func (q *Queries) LockRoom(ctx context.Context, id string) (model.Room, error) {
	r, err := scanRoom(q.db.QueryRowContext(ctx, lockRoomQuery, id))
	return r, notFound(err, ErrRoomNotFound)
}

// UpdateRoom writes every mutable column of r.
func (q *Queries) UpdateRoom(ctx context.Context, r *model.Room) error {
	const upd = `UPDATE rooms
	             SET name = ?, description = ?, total_price = ?, is_open = ?,
	                 is_ready_for_settlement = ?, has_settled = ?, updated_at = NOW()
	             WHERE id = ?`
	res, err := q.db.ExecContext(ctx, upd, r.Name, r.Description, r.TotalPrice, r.IsOpen,
		r.IsReadyForSettlement, r.HasSettled, r.ID)
	if err != nil {
		return err
	}
	return requireOne(res, ErrRoomNotFound)
}

// DeleteRoom removes the room row.  Participants must be deleted first.
func (q *Queries) DeleteRoom(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireOne(res, ErrRoomNotFound)
}

// ListRoomsForUser returns the rooms the user participates in, newest first.
func (q *Queries) ListRoomsForUser(ctx context.Context, userID string) ([]model.Room, error) {
	const sel = `SELECT r.id, r.name, r.description, r.total_price, r.is_open, r.is_ready_for_settlement,
	                    r.has_settled, r.created_at, r.updated_at
	             FROM rooms r
	             JOIN participants p ON p.room_id = r.id
	             WHERE p.user_id = ?
	             ORDER BY r.created_at DESC`
	rows, err := q.db.QueryContext(ctx, sel, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
