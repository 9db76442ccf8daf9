package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/room-settlement/internal/model"
)

// Tx is the set of persistence operations the services use.  The same
// methods are available both on a Store (autocommit) and on the
// transaction handed to Store.InTx.
type Tx interface {
	// rooms
	CreateRoom(ctx context.Context, r *model.Room) error
	GetRoom(ctx context.Context, id string) (model.Room, error)
	LockRoom(ctx context.Context, id string) (model.Room, error)
	UpdateRoom(ctx context.Context, r *model.Room) error
	DeleteRoom(ctx context.Context, id string) error
	ListRoomsForUser(ctx context.Context, userID string) ([]model.Room, error)

	// participants
	CreateParticipant(ctx context.Context, p *model.Participant) error
	GetParticipant(ctx context.Context, id string) (model.Participant, error)
	ListParticipants(ctx context.Context, roomID string) ([]model.Participant, error)
	ListParticipantDetails(ctx context.Context, roomID string) ([]model.ParticipantDetail, error)
	UpdateParticipant(ctx context.Context, p *model.Participant) error
	MarkParticipantPayed(ctx context.Context, id string) error
	DeleteParticipant(ctx context.Context, id string) error
	DeleteParticipantsByRoom(ctx context.Context, roomID string) (int64, error)

	// users and profiles
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	GetUserByID(ctx context.Context, id string) (model.User, error)
	CreateProfile(ctx context.Context, p *model.UserProfile) error
	GetProfile(ctx context.Context, id string) (model.UserProfile, error)
	GetProfileByUser(ctx context.Context, userID string) (model.UserProfile, error)
	UpdateProfileName(ctx context.Context, id, name string) error
	SetProfileWallet(ctx context.Context, id, wallet string) error

	// refresh tokens
	StoreRefresh(ctx context.Context, userID, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (string, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error

	// payments and signature requests
	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, id string) (model.Payment, error)
	GetPaymentByPayloadID(ctx context.Context, payloadID string) (model.Payment, error)
	LatestPaymentForParticipant(ctx context.Context, participantID string) (model.Payment, error)
	CompletedPaymentForParticipant(ctx context.Context, participantID string) (model.Payment, error)
	ResolvePayment(ctx context.Context, id string, res model.Resolution) error
	CreateSignatureRequest(ctx context.Context, s *model.SignatureRequest) error
	GetSignatureRequest(ctx context.Context, id string) (model.SignatureRequest, error)
	GetSignatureRequestByPayloadID(ctx context.Context, payloadID string) (model.SignatureRequest, error)
	ResolveSignatureRequest(ctx context.Context, id string, res model.Resolution) error
}

// Store opens transactions over Tx.  fn's error rolls the transaction
// back and is returned unchanged; a nil error commits.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries implements Tx with MySQL statements over a DBTX.
type Queries struct{ db DBTX }

// MySQLStore is the Store used in production.
type MySQLStore struct {
	*Queries
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{Queries: &Queries{db: db}, db: db}
}

// DB exposes the underlying pool (health checks).
func (s *MySQLStore) DB() *sql.DB { return s.db }

// InTx runs fn inside a single database transaction.
func (s *MySQLStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&Queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// isDuplicate reports a MySQL unique-key violation (1062).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "1062")
}

// notFound maps sql.ErrNoRows to the given sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// requireOne converts a zero-row update into sentinel.
func requireOne(res sql.Result, sentinel error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel
	}
	return nil
}
