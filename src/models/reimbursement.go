package models

import (
	"database/sql"
	"time"
)

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"

	KindRequest = "request"
	KindSend    = "send"
)

// ReimbursementRequest models one money-movement request between two users.
// RecipientID is null when the recipient is external/unregistered.
type ReimbursementRequest struct {
	ID               int64          `json:"request_id"`
	SenderID         int64          `json:"sender_id"`
	RecipientID      sql.NullInt64  `json:"recipient_id"`
	RecipientEmail   string         `json:"recipient_email"`
	RecipientName    string         `json:"recipient_name"`
	RecipientContact string         `json:"recipient_contact"`
	Amount           int64          `json:"amount"`
	Notes            string         `json:"notes"`
	Status           string         `json:"status"`
	Kind             string         `json:"kind"`
	IsFlagged        bool           `json:"is_flagged"`
	AdminID          sql.NullInt64  `json:"admin_id"`
	AdminNotes       sql.NullString `json:"admin_notes"`
	AdminActionAt    sql.NullTime   `json:"admin_action_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// RequestProjection is the read shape returned over HTTP: the request joined
// with counterpart display names.
type RequestProjection struct {
	ID             int64     `json:"request_id"`
	Status         string    `json:"status"`
	Kind           string    `json:"kind"`
	Amount         int64     `json:"amount"`
	Notes          string    `json:"notes"`
	Date           time.Time `json:"date"`
	SenderID       int64     `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	SenderEmail    string    `json:"sender_email"`
	RecipientID    *int64    `json:"recipient_id"`
	RecipientName  string    `json:"recipient_name"`
	RecipientEmail string    `json:"recipient_email"`
	IsFlagged      bool      `json:"is_flagged"`
}

const requestColumns = `id, sender_id, recipient_id, recipient_email,
	COALESCE(recipient_name, ''), COALESCE(recipient_contact, ''), amount,
	COALESCE(notes, ''), status, kind, is_flagged, admin_id, admin_notes,
	admin_action_at, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (*ReimbursementRequest, error) {
	var r ReimbursementRequest
	err := row.Scan(&r.ID, &r.SenderID, &r.RecipientID, &r.RecipientEmail,
		&r.RecipientName, &r.RecipientContact, &r.Amount, &r.Notes, &r.Status,
		&r.Kind, &r.IsFlagged, &r.AdminID, &r.AdminNotes, &r.AdminActionAt,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// InsertRequest inserts the request and sets its id.
func InsertRequest(db DBTX, r *ReimbursementRequest) error {
	res, err := db.Exec(`
	INSERT INTO reimbursement_requests (sender_id, recipient_id, recipient_email, recipient_name, recipient_contact, amount, notes, status, kind)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SenderID, r.RecipientID, r.RecipientEmail, r.RecipientName,
		r.RecipientContact, r.Amount, r.Notes, r.Status, r.Kind)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

// RequestByID fetches one request regardless of ownership; callers enforce
// permissions.
func RequestByID(db DBTX, id int64) (*ReimbursementRequest, error) {
	return scanRequest(db.QueryRow(
		`SELECT `+requestColumns+` FROM reimbursement_requests WHERE id = ?`, id))
}

const projectionSelect = `
	SELECT rr.id, rr.status, rr.kind, rr.amount, COALESCE(rr.notes, ''), rr.created_at,
		rr.sender_id, COALESCE(sender.name, sender.username), sender.email,
		rr.recipient_id, COALESCE(recipient.name, recipient.username, rr.recipient_name, ''),
		COALESCE(recipient.email, rr.recipient_email), rr.is_flagged
	FROM reimbursement_requests rr
	JOIN users sender ON rr.sender_id = sender.id
	LEFT JOIN users recipient ON rr.recipient_id = recipient.id`

func collectProjections(rows *sql.Rows) ([]RequestProjection, error) {
	var out []RequestProjection
	for rows.Next() {
		var p RequestProjection
		var recipientID sql.NullInt64
		err := rows.Scan(&p.ID, &p.Status, &p.Kind, &p.Amount, &p.Notes, &p.Date,
			&p.SenderID, &p.SenderName, &p.SenderEmail,
			&recipientID, &p.RecipientName, &p.RecipientEmail, &p.IsFlagged)
		if err != nil {
			return nil, err
		}
		if recipientID.Valid {
			p.RecipientID = &recipientID.Int64
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RequestsForUser lists requests where the user is sender or recipient.
func RequestsForUser(db DBTX, userID int64) ([]RequestProjection, error) {
	rows, err := db.Query(projectionSelect+`
	WHERE rr.sender_id = ? OR rr.recipient_id = ?
	ORDER BY rr.created_at DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProjections(rows)
}

// PendingRequestsForRecipient lists requests awaiting the user's approval.
func PendingRequestsForRecipient(db DBTX, userID int64) ([]RequestProjection, error) {
	rows, err := db.Query(projectionSelect+`
	WHERE rr.recipient_id = ? AND rr.status = 'pending'
	ORDER BY rr.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProjections(rows)
}

// AllRequests lists every request; admin console only.
func AllRequests(db DBTX) ([]RequestProjection, error) {
	rows, err := db.Query(projectionSelect + ` ORDER BY rr.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProjections(rows)
}

// ProjectionByID is the single-request read shape returned after a create.
func ProjectionByID(db DBTX, id int64) (*RequestProjection, error) {
	rows, err := db.Query(projectionSelect+` WHERE rr.id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := collectProjections(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sql.ErrNoRows
	}
	return &out[0], nil
}
