package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/room-settlement/internal/model"
)

const participantColumns = `id, room_id, user_id, profile_id, role, weight, payed, created_at`

func scanParticipant(s rowScanner) (model.Participant, error) {
	var p model.Participant
	err := s.Scan(&p.ID, &p.RoomID, &p.UserID, &p.ProfileID, &p.Role, &p.Weight, &p.Payed, &p.CreatedAt)
	return p, err
}

// CreateParticipant inserts p.  A second participant for the same
// (room, user) pair yields ErrDuplicateParticipant.
func (q *Queries) CreateParticipant(ctx context.Context, p *model.Participant) error {
	const ins = `INSERT INTO participants (id, room_id, user_id, profile_id, role, weight, payed)
	             VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := q.db.ExecContext(ctx, ins, p.ID, p.RoomID, p.UserID, p.ProfileID, p.Role, p.Weight, p.Payed); err != nil {
		if isDuplicate(err) {
			return ErrDuplicateParticipant
		}
		return err
	}
	got, err := q.GetParticipant(ctx, p.ID)
	if err != nil {
		return err
	}
	*p = got
	return nil
}

func (q *Queries) GetParticipant(ctx context.Context, id string) (model.Participant, error) {
	p, err := scanParticipant(q.db.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = ?`, id))
	return p, notFound(err, ErrParticipantNotFound)
}

// ListParticipants returns the room's participants in join order.
func (q *Queries) ListParticipants(ctx context.Context, roomID string) ([]model.Participant, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE room_id = ? ORDER BY created_at, id`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListParticipantDetails is ListParticipants joined with profile name and wallet.
func (q *Queries) ListParticipantDetails(ctx context.Context, roomID string) ([]model.ParticipantDetail, error) {
	const sel = `SELECT p.id, p.room_id, p.user_id, p.profile_id, p.role, p.weight, p.payed, p.created_at,
	                    up.name, up.wallet
	             FROM participants p
	             JOIN user_profiles up ON up.id = p.profile_id
	             WHERE p.room_id = ?
	             ORDER BY p.created_at, p.id`
	rows, err := q.db.QueryContext(ctx, sel, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ParticipantDetail
	for rows.Next() {
		var d model.ParticipantDetail
		var wallet sql.NullString
		if err := rows.Scan(&d.ID, &d.RoomID, &d.UserID, &d.ProfileID, &d.Role, &d.Weight, &d.Payed, &d.CreatedAt,
			&d.Name, &wallet); err != nil {
			return nil, err
		}
		d.Wallet = nullString(wallet)
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateParticipant writes weight and payed.  Role and references never change.
func (q *Queries) UpdateParticipant(ctx context.Context, p *model.Participant) error {
	res, err := q.db.ExecContext(ctx, `UPDATE participants SET weight = ?, payed = ? WHERE id = ?`, p.Weight, p.Payed, p.ID)
	if err != nil {
		return err
	}
	return requireOne(res, ErrParticipantNotFound)
}

func (q *Queries) MarkParticipantPayed(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `UPDATE participants SET payed = TRUE WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireOne(res, ErrParticipantNotFound)
}

func (q *Queries) DeleteParticipant(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM participants WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireOne(res, ErrParticipantNotFound)
}

// DeleteParticipantsByRoom removes every participant of a room and
// returns how many rows were deleted.
func (q *Queries) DeleteParticipantsByRoom(ctx context.Context, roomID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM participants WHERE room_id = ?`, roomID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
