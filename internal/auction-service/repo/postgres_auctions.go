package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/gfranco/auction-platform-poc/internal/auction-service/domain"
)

// PostgresAuctions implementa a persistência de leilões em banco Postgres
type PostgresAuctions struct{ db *sql.DB }

func NewPostgresAuctions(db *sql.DB) *PostgresAuctions { return &PostgresAuctions{db: db} }

func (p *PostgresAuctions) Create(ctx context.Context, a *domain.Auction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO auctions (id, seller_id, name, starting_price_cents, current_price_cents,
			current_winner_id, step_price_cents, buy_now_price_cents, end_at, bid_count,
			order_created, order_id, notified, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		a.ID, a.SellerID, a.Name, a.StartingPriceCents, a.CurrentPriceCents,
		a.CurrentWinnerID, a.StepPriceCents, a.BuyNowPriceCents, a.EndAt, a.BidCount,
		a.OrderCreated, a.OrderID, a.Notified, a.CreatedAt,
	)
	return err
}

func (p *PostgresAuctions) Get(ctx context.Context, id string) (*domain.Auction, error) {
	a := &domain.Auction{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, seller_id, name, starting_price_cents, current_price_cents,
			current_winner_id, step_price_cents, buy_now_price_cents, end_at, bid_count,
			order_created, order_id, notified, created_at
		FROM auctions WHERE id=$1`, id).Scan(
		&a.ID, &a.SellerID, &a.Name, &a.StartingPriceCents, &a.CurrentPriceCents,
		&a.CurrentWinnerID, &a.StepPriceCents, &a.BuyNowPriceCents, &a.EndAt, &a.BidCount,
		&a.OrderCreated, &a.OrderID, &a.Notified, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrAuctionNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (p *PostgresAuctions) Update(ctx context.Context, a *domain.Auction) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE auctions SET current_price_cents=$1, current_winner_id=$2, end_at=$3,
			bid_count=$4, order_created=$5, order_id=$6, notified=$7
		WHERE id=$8`,
		a.CurrentPriceCents, a.CurrentWinnerID, a.EndAt,
		a.BidCount, a.OrderCreated, a.OrderID, a.Notified, a.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return domain.ErrAuctionNotFound
	}
	return err
}

// CommitBid grava a cabeça do leilão e a linha SUCCESS do ledger numa única
// transação. Um erro em qualquer uma das escritas desfaz as duas; bid_count
// nunca diverge das linhas SUCCESS mesmo com a conexão caindo no meio.
func (p *PostgresAuctions) CommitBid(ctx context.Context, a *domain.Auction, r *domain.BidRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE auctions SET current_price_cents=$1, current_winner_id=$2, end_at=$3,
			bid_count=$4, order_created=$5, order_id=$6, notified=$7
		WHERE id=$8`,
		a.CurrentPriceCents, a.CurrentWinnerID, a.EndAt,
		a.BidCount, a.OrderCreated, a.OrderID, a.Notified, a.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrAuctionNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO bids (id, auction_id, bidder_id, amount_cents, correlation_id,
			previous_winner_id, outcome, failure_reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.ID, r.AuctionID, r.BidderID, r.AmountCents, r.CorrelationID,
		nullIfEmpty(r.PreviousWinnerID), string(r.Outcome), nullIfEmpty(r.FailureReason), r.CreatedAt,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (p *PostgresAuctions) ListExpiredUnsettled(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, seller_id, name, starting_price_cents, current_price_cents,
			current_winner_id, step_price_cents, buy_now_price_cents, end_at, bid_count,
			order_created, order_id, notified, created_at
		FROM auctions
		WHERE end_at < $1 AND (order_created = false OR notified = false)
		ORDER BY end_at ASC`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Auction
	for rows.Next() {
		a := &domain.Auction{}
		if err := rows.Scan(
			&a.ID, &a.SellerID, &a.Name, &a.StartingPriceCents, &a.CurrentPriceCents,
			&a.CurrentWinnerID, &a.StepPriceCents, &a.BuyNowPriceCents, &a.EndAt, &a.BidCount,
			&a.OrderCreated, &a.OrderID, &a.Notified, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
