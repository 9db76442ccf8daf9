package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/room-settlement/internal/model"
)

const paymentColumns = `id, payload_id, participant_id, amount, destination, status, network_id, transaction_id, account, created_at, updated_at`

func scanPayment(s rowScanner) (model.Payment, error) {
	var (
		p                                model.Payment
		participant, network, txid, acct sql.NullString
	)
	err := s.Scan(&p.ID, &p.PayloadID, &participant, &p.Amount, &p.Destination, &p.Status,
		&network, &txid, &acct, &p.CreatedAt, &p.UpdatedAt)
	p.ParticipantID = nullString(participant)
	p.NetworkID = nullString(network)
	p.TransactionID = nullString(txid)
	p.Account = nullString(acct)
	return p, err
}

// CreatePayment inserts a PENDING payment correlated by PayloadID.
func (q *Queries) CreatePayment(ctx context.Context, p *model.Payment) error {
	const ins = `INSERT INTO payments (id, payload_id, participant_id, amount, destination, status)
	             VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := q.db.ExecContext(ctx, ins, p.ID, p.PayloadID, p.ParticipantID, p.Amount, p.Destination, p.Status); err != nil {
		return err
	}
	got, err := q.GetPayment(ctx, p.ID)
	if err != nil {
		return err
	}
	*p = got
	return nil
}

func (q *Queries) GetPayment(ctx context.Context, id string) (model.Payment, error) {
	p, err := scanPayment(q.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id))
	return p, notFound(err, ErrPaymentNotFound)
}

// GetPaymentByPayloadID looks a payment up by the provider correlation id.
func (q *Queries) GetPaymentByPayloadID(ctx context.Context, payloadID string) (model.Payment, error) {
	p, err := scanPayment(q.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payload_id = ?`, payloadID))
	return p, notFound(err, ErrPaymentNotFound)
}

func (q *Queries) LatestPaymentForParticipant(ctx context.Context, participantID string) (model.Payment, error) {
	p, err := scanPayment(q.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE participant_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		participantID))
	return p, notFound(err, ErrPaymentNotFound)
}

func (q *Queries) CompletedPaymentForParticipant(ctx context.Context, participantID string) (model.Payment, error) {
	p, err := scanPayment(q.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE participant_id = ? AND status = 'COMPLETED'
		 ORDER BY updated_at DESC LIMIT 1`,
		participantID))
	return p, notFound(err, ErrPaymentNotFound)
}

// ResolvePayment moves a PENDING payment to a terminal status.  It is a
// compare-and-swap: a payment that already left PENDING is untouched and
// ErrNoChange is returned.
func (q *Queries) ResolvePayment(ctx context.Context, id string, res model.Resolution) error {
	const upd = `UPDATE payments
	             SET status = ?, network_id = ?, transaction_id = ?, account = ?, updated_at = NOW()
	             WHERE id = ? AND status = 'PENDING'`
	r, err := q.db.ExecContext(ctx, upd, res.Status, res.NetworkID, res.TransactionID, res.Account, id)
	if err != nil {
		return err
	}
	return requireOne(r, ErrNoChange)
}

const signatureColumns = `id, payload_id, profile_id, status, network_id, transaction_id, account, created_at, updated_at`

func scanSignatureRequest(s rowScanner) (model.SignatureRequest, error) {
	var (
		sr                  model.SignatureRequest
		network, txid, acct sql.NullString
	)
	err := s.Scan(&sr.ID, &sr.PayloadID, &sr.ProfileID, &sr.Status, &network, &txid, &acct, &sr.CreatedAt, &sr.UpdatedAt)
	sr.NetworkID = nullString(network)
	sr.TransactionID = nullString(txid)
	sr.Account = nullString(acct)
	return sr, err
}

// CreateSignatureRequest inserts a PENDING wallet-link request.
func (q *Queries) CreateSignatureRequest(ctx context.Context, s *model.SignatureRequest) error {
	if _, err := q.db.ExecContext(ctx,
		`INSERT INTO signature_requests (id, payload_id, profile_id, status) VALUES (?, ?, ?, ?)`,
		s.ID, s.PayloadID, s.ProfileID, s.Status); err != nil {
		return err
	}
	got, err := q.GetSignatureRequest(ctx, s.ID)
	if err != nil {
		return err
	}
	*s = got
	return nil
}

func (q *Queries) GetSignatureRequest(ctx context.Context, id string) (model.SignatureRequest, error) {
	s, err := scanSignatureRequest(q.db.QueryRowContext(ctx, `SELECT `+signatureColumns+` FROM signature_requests WHERE id = ?`, id))
	return s, notFound(err, ErrSignatureRequestNotFound)
}

func (q *Queries) GetSignatureRequestByPayloadID(ctx context.Context, payloadID string) (model.SignatureRequest, error) {
	s, err := scanSignatureRequest(q.db.QueryRowContext(ctx,
		`SELECT `+signatureColumns+` FROM signature_requests WHERE payload_id = ?`, payloadID))
	return s, notFound(err, ErrSignatureRequestNotFound)
}

// ResolveSignatureRequest is the signature-request counterpart of ResolvePayment.
func (q *Queries) ResolveSignatureRequest(ctx context.Context, id string, res model.Resolution) error {
	const upd = `UPDATE signature_requests
	             SET status = ?, network_id = ?, transaction_id = ?, account = ?, updated_at = NOW()
	             WHERE id = ? AND status = 'PENDING'`
	r, err := q.db.ExecContext(ctx, upd, res.Status, res.NetworkID, res.TransactionID, res.Account, id)
	if err != nil {
		return err
	}
	return requireOne(r, ErrNoChange)
}
