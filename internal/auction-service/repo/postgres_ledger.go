package repo

import (
	"context"
	"database/sql"

	"github.com/gfranco/auction-platform-poc/internal/auction-service/domain"
)

// PostgresLedger implementa o ledger append-only de lances.
// A tabela bids tem índice único em (auction_id, correlation_id), que
// fecha a porta pra duplicata mesmo se dois processos dividirem o banco,
// e uma coluna seq BIGSERIAL: a ordem do ledger vem dela, não de
// created_at, então dois lances no mesmo microssegundo não embaralham.
type PostgresLedger struct{ db *sql.DB }

func NewPostgresLedger(db *sql.DB) *PostgresLedger { return &PostgresLedger{db: db} }

func (p *PostgresLedger) Append(ctx context.Context, r *domain.BidRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bids (id, auction_id, bidder_id, amount_cents, correlation_id,
			previous_winner_id, outcome, failure_reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.ID, r.AuctionID, r.BidderID, r.AmountCents, r.CorrelationID,
		nullIfEmpty(r.PreviousWinnerID), string(r.Outcome), nullIfEmpty(r.FailureReason), r.CreatedAt,
	)
	return err
}

func (p *PostgresLedger) FindByCorrelation(ctx context.Context, auctionID, correlationID string) (*domain.BidRecord, error) {
	return p.scanOne(p.db.QueryRowContext(ctx, `
		SELECT id, auction_id, bidder_id, amount_cents, correlation_id, previous_winner_id, outcome, failure_reason, created_at
		FROM bids WHERE auction_id=$1 AND correlation_id=$2`, auctionID, correlationID))
}

func (p *PostgresLedger) SuccessHistory(ctx context.Context, auctionID string) ([]*domain.BidRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, auction_id, bidder_id, amount_cents, correlation_id, previous_winner_id, outcome, failure_reason, created_at
		FROM bids WHERE auction_id=$1 AND outcome='SUCCESS'
		ORDER BY seq DESC`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return p.scanAll(rows)
}

func (p *PostgresLedger) ListByAuction(ctx context.Context, auctionID string, limit int) ([]*domain.BidRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, auction_id, bidder_id, amount_cents, correlation_id, previous_winner_id, outcome, failure_reason, created_at
		FROM bids WHERE auction_id=$1
		ORDER BY seq DESC
		LIMIT $2`, auctionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return p.scanAll(rows)
}

func (p *PostgresLedger) MarkCancelled(ctx context.Context, recordID string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE bids SET outcome='FAILED', failure_reason=$1
		WHERE id=$2 AND outcome='SUCCESS'`,
		domain.ReasonCancelledBySeller, recordID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return domain.ErrRecordNotFound
	}
	return err
}

func (p *PostgresLedger) scanOne(row *sql.Row) (*domain.BidRecord, error) {
	r := &domain.BidRecord{}
	var outcome string
	var prev, reason sql.NullString
	err := row.Scan(&r.ID, &r.AuctionID, &r.BidderID, &r.AmountCents, &r.CorrelationID,
		&prev, &outcome, &reason, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Outcome = domain.BidOutcomeStatus(outcome)
	r.PreviousWinnerID = prev.String
	r.FailureReason = reason.String
	return r, nil
}

func (p *PostgresLedger) scanAll(rows *sql.Rows) ([]*domain.BidRecord, error) {
	var out []*domain.BidRecord
	for rows.Next() {
		r := &domain.BidRecord{}
		var outcome string
		var prev, reason sql.NullString
		if err := rows.Scan(&r.ID, &r.AuctionID, &r.BidderID, &r.AmountCents, &r.CorrelationID,
			&prev, &outcome, &reason, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Outcome = domain.BidOutcomeStatus(outcome)
		r.PreviousWinnerID = prev.String
		r.FailureReason = reason.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
