package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/room-settlement/internal/model"
)

// CreateUser inserts u with a normalised email.  u.ID and
// u.PasswordHash must be set by the caller.
func (q *Queries) CreateUser(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash) VALUES (?,?,?)",
		u.ID, u.Email, u.PasswordHash)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return err
	}
	u.IsActive = true
	return nil
}

// GetUserByEmail fetches a user by normalised email.
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u model.User
	err := q.db.QueryRowContext(ctx,
		"SELECT id,email,password_hash,is_active,created_at,updated_at FROM users WHERE email=? LIMIT 1",
		email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, notFound(err, ErrUserNotFound)
}

// GetUserByID fetches a user by id.
func (q *Queries) GetUserByID(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := q.db.QueryRowContext(ctx,
		"SELECT id,email,password_hash,is_active,created_at,updated_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, notFound(err, ErrUserNotFound)
}

const profileColumns = `id, user_id, name, wallet, created_at, updated_at`

func scanProfile(s rowScanner) (model.UserProfile, error) {
	var p model.UserProfile
	var wallet sql.NullString
	err := s.Scan(&p.ID, &p.UserID, &p.Name, &wallet, &p.CreatedAt, &p.UpdatedAt)
	p.Wallet = nullString(wallet)
	return p, err
}

// CreateProfile inserts the profile backing a user (one per user).
func (q *Queries) CreateProfile(ctx context.Context, p *model.UserProfile) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO user_profiles (id, user_id, name, wallet) VALUES (?,?,?,?)",
		p.ID, p.UserID, p.Name, p.Wallet)
	if err != nil {
		return err
	}
	got, err := q.GetProfile(ctx, p.ID)
	if err != nil {
		return err
	}
	*p = got
	return nil
}

func (q *Queries) GetProfile(ctx context.Context, id string) (model.UserProfile, error) {
	p, err := scanProfile(q.db.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM user_profiles WHERE id=?", id))
	return p, notFound(err, ErrProfileNotFound)
}

func (q *Queries) GetProfileByUser(ctx context.Context, userID string) (model.UserProfile, error) {
	p, err := scanProfile(q.db.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM user_profiles WHERE user_id=?", userID))
	return p, notFound(err, ErrProfileNotFound)
}

func (q *Queries) UpdateProfileName(ctx context.Context, id, name string) error {
	res, err := q.db.ExecContext(ctx, "UPDATE user_profiles SET name=?, updated_at=NOW() WHERE id=?", name, id)
	if err != nil {
		return err
	}
	return requireOne(res, ErrProfileNotFound)
}

// SetProfileWallet overwrites the linked wallet address.
func (q *Queries) SetProfileWallet(ctx context.Context, id, wallet string) error {
	res, err := q.db.ExecContext(ctx, "UPDATE user_profiles SET wallet=?, updated_at=NOW() WHERE id=?", wallet, id)
	if err != nil {
		return err
	}
	return requireOne(res, ErrProfileNotFound)
}
