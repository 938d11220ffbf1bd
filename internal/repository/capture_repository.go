package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/perzivalh/botsito-podopie/internal/entities"
)

// CaptureRepository persists records produced by completed flows. Rows
// are append-only: the engine never updates or deletes a capture,
// corrections are a back-office concern.
type CaptureRepository struct {
	db *pgxpool.Pool
}

func NewCaptureRepository(db *pgxpool.Pool) *CaptureRepository {
	return &CaptureRepository{db: db}
}

func (r *CaptureRepository) InsertLead(ctx context.Context, lead *entities.Lead) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO leads (wa_id, name, reason, date_pref, time_pref)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, lead.WaID, lead.Name, lead.Reason, lead.DatePref, lead.TimePref).Scan(&lead.ID, &lead.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

func (r *CaptureRepository) InsertPaymentRequest(ctx context.Context, pr *entities.PaymentRequest) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO payment_requests (wa_id, identifier)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, pr.WaID, pr.Identifier).Scan(&pr.ID, &pr.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment request: %w", err)
	}
	return nil
}

// RecentLeads returns the newest captured leads for the debug read path.
func (r *CaptureRepository) RecentLeads(ctx context.Context, limit int) ([]entities.Lead, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, wa_id, name, reason, date_pref, time_pref, created_at
		FROM leads ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []entities.Lead{}
	for rows.Next() {
		var l entities.Lead
		if err := rows.Scan(&l.ID, &l.WaID, &l.Name, &l.Reason, &l.DatePref, &l.TimePref, &l.CreatedAt); err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// RecentPaymentRequests returns the newest captured payment requests.
func (r *CaptureRepository) RecentPaymentRequests(ctx context.Context, limit int) ([]entities.PaymentRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, wa_id, identifier, created_at
		FROM payment_requests ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prs := []entities.PaymentRequest{}
	for rows.Next() {
		var p entities.PaymentRequest
		if err := rows.Scan(&p.ID, &p.WaID, &p.Identifier, &p.CreatedAt); err != nil {
			return nil, err
		}
		prs = append(prs, p)
	}
	return prs, rows.Err()
}
