package engine

import (
	"context"
	"time"

	"github.com/gfranco/auction-platform-poc/internal/auction-service/domain"
)

// Interfaces das três folhas de persistência. As implementações Postgres
// e em memória ficam no pacote repo; o engine nunca escreve campo de
// leilão fora delas.

type AuctionStore interface {
	Create(ctx context.Context, a *domain.Auction) error
	// Get devolve domain.ErrAuctionNotFound quando o id não existe.
	Get(ctx context.Context, id string) (*domain.Auction, error)
	Update(ctx context.Context, a *domain.Auction) error
	// ListExpiredUnsettled devolve leilões com endAt no passado e
	// orderCreated=false OU notified=false.
	ListExpiredUnsettled(ctx context.Context, now time.Time) ([]*domain.Auction, error)
}

type BidLedger interface {
	Append(ctx context.Context, r *domain.BidRecord) error
	// FindByCorrelation devolve domain.ErrRecordNotFound quando não há
	// registro para (auctionID, correlationID).
	FindByCorrelation(ctx context.Context, auctionID, correlationID string) (*domain.BidRecord, error)
	// SuccessHistory devolve os registros SUCCESS do leilão, mais recente primeiro.
	SuccessHistory(ctx context.Context, auctionID string) ([]*domain.BidRecord, error)
	ListByAuction(ctx context.Context, auctionID string, limit int) ([]*domain.BidRecord, error)
	// MarkCancelled transiciona um registro SUCCESS para FAILED/CANCELLED_BY_SELLER.
	MarkCancelled(ctx context.Context, recordID string) error
}

// BidCommitter persiste a cabeça do leilão e o registro SUCCESS do lance
// como uma unidade: ou os dois entram, ou nenhum. É o que mantém bidCount
// igual ao número de linhas SUCCESS do ledger mesmo com o banco caindo no
// meio da dupla de escritas.
type BidCommitter interface {
	CommitBid(ctx context.Context, a *domain.Auction, r *domain.BidRecord) error
}

type AutoBidRegistry interface {
	Upsert(ctx context.Context, p *domain.AutoBidProxy) error
	// HighestActiveExcluding devolve o proxy ativo de maior teto que não
	// pertence a bidderID, ou nil quando não há concorrente.
	HighestActiveExcluding(ctx context.Context, auctionID, bidderID string) (*domain.AutoBidProxy, error)
	Deactivate(ctx context.Context, proxyID string) error
	DeactivateAll(ctx context.Context, auctionID string) error
}
