package repo

import (
	"context"
	"database/sql"

	"github.com/gfranco/auction-platform-poc/internal/auction-service/domain"
)

// PostgresAutoBids implementa o registro de proxies de auto-bid.
// Único por (auction_id, bidder_id); upsert reativa e sobe o teto.
type PostgresAutoBids struct{ db *sql.DB }

func NewPostgresAutoBids(db *sql.DB) *PostgresAutoBids { return &PostgresAutoBids{db: db} }

func (p *PostgresAutoBids) Upsert(ctx context.Context, pr *domain.AutoBidProxy) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO auto_bids (id, auction_id, bidder_id, max_amount_cents, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (auction_id, bidder_id)
		DO UPDATE SET max_amount_cents=EXCLUDED.max_amount_cents, active=true, updated_at=EXCLUDED.updated_at`,
		pr.ID, pr.AuctionID, pr.BidderID, pr.MaxAmountCents, pr.Active, pr.CreatedAt, pr.UpdatedAt,
	)
	return err
}

func (p *PostgresAutoBids) HighestActiveExcluding(ctx context.Context, auctionID, bidderID string) (*domain.AutoBidProxy, error) {
	pr := &domain.AutoBidProxy{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, auction_id, bidder_id, max_amount_cents, active, created_at, updated_at
		FROM auto_bids
		WHERE auction_id=$1 AND bidder_id<>$2 AND active=true
		ORDER BY max_amount_cents DESC, updated_at ASC
		LIMIT 1`, auctionID, bidderID).Scan(
		&pr.ID, &pr.AuctionID, &pr.BidderID, &pr.MaxAmountCents, &pr.Active, &pr.CreatedAt, &pr.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return pr, nil
}

func (p *PostgresAutoBids) Deactivate(ctx context.Context, proxyID string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE auto_bids SET active=false, updated_at=NOW() WHERE id=$1`, proxyID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return domain.ErrProxyNotFound
	}
	return err
}

func (p *PostgresAutoBids) DeactivateAll(ctx context.Context, auctionID string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE auto_bids SET active=false, updated_at=NOW() WHERE auction_id=$1 AND active=true`, auctionID)
	return err
}
