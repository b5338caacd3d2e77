package repo

import (
	"context"
	"sync"
	"time"

	"github.com/gfranco/auction-platform-poc/internal/auction-service/domain"
)

// Implementações em memória das três folhas, pra rodar local sem infra
// (STORAGE=memory) e pra testes. Mesma semântica dos repositórios Postgres;
// os métodos devolvem cópias pra ninguém mutar estado compartilhado por fora.

type MemoryAuctions struct {
	mu       sync.RWMutex
	auctions map[string]*domain.Auction
}

func NewMemoryAuctions() *MemoryAuctions {
	return &MemoryAuctions{auctions: make(map[string]*domain.Auction)}
}

func (m *MemoryAuctions) Create(_ context.Context, a *domain.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.auctions[a.ID] = &cp
	return nil
}

func (m *MemoryAuctions) Get(_ context.Context, id string) (*domain.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.auctions[id]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryAuctions) Update(_ context.Context, a *domain.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.auctions[a.ID]; !ok {
		return domain.ErrAuctionNotFound
	}
	cp := *a
	m.auctions[a.ID] = &cp
	return nil
}

func (m *MemoryAuctions) ListExpiredUnsettled(_ context.Context, now time.Time) ([]*domain.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Auction
	for _, a := range m.auctions {
		if a.EndAt.Before(now) && (!a.OrderCreated || !a.Notified) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MemoryCommitter é o par atômico leilão+ledger em memória. O Update
// valida o id primeiro; o Append em memória não falha, então ou a dupla
// entra inteira ou nada muda.
type MemoryCommitter struct {
	auctions *MemoryAuctions
	ledger   *MemoryLedger
}

func NewMemoryCommitter(a *MemoryAuctions, l *MemoryLedger) *MemoryCommitter {
	return &MemoryCommitter{auctions: a, ledger: l}
}

func (m *MemoryCommitter) CommitBid(ctx context.Context, a *domain.Auction, r *domain.BidRecord) error {
	if err := m.auctions.Update(ctx, a); err != nil {
		return err
	}
	return m.ledger.Append(ctx, r)
}

type MemoryLedger struct {
	mu      sync.RWMutex
	records []*domain.BidRecord // ordem de inserção
}

func NewMemoryLedger() *MemoryLedger { return &MemoryLedger{} }

func (m *MemoryLedger) Append(_ context.Context, r *domain.BidRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.records = append(m.records, &cp)
	return nil
}

func (m *MemoryLedger) FindByCorrelation(_ context.Context, auctionID, correlationID string) (*domain.BidRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if r.AuctionID == auctionID && r.CorrelationID == correlationID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (m *MemoryLedger) SuccessHistory(_ context.Context, auctionID string) ([]*domain.BidRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.BidRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if r.AuctionID == auctionID && r.Outcome == domain.BidSuccess {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryLedger) ListByAuction(_ context.Context, auctionID string, limit int) ([]*domain.BidRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.BidRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.records[i]
		if r.AuctionID == auctionID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryLedger) MarkCancelled(_ context.Context, recordID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == recordID && r.Outcome == domain.BidSuccess {
			r.Outcome = domain.BidFailed
			r.FailureReason = domain.ReasonCancelledBySeller
			return nil
		}
	}
	return domain.ErrRecordNotFound
}

type MemoryAutoBids struct {
	mu      sync.RWMutex
	proxies map[string]*domain.AutoBidProxy // chave: auctionID + "|" + bidderID
}

func NewMemoryAutoBids() *MemoryAutoBids {
	return &MemoryAutoBids{proxies: make(map[string]*domain.AutoBidProxy)}
}

func autoBidKey(auctionID, bidderID string) string { return auctionID + "|" + bidderID }

func (m *MemoryAutoBids) Upsert(_ context.Context, p *domain.AutoBidProxy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := autoBidKey(p.AuctionID, p.BidderID)
	if prev, ok := m.proxies[key]; ok {
		prev.MaxAmountCents = p.MaxAmountCents
		prev.Active = true
		prev.UpdatedAt = p.UpdatedAt
		return nil
	}
	cp := *p
	m.proxies[key] = &cp
	return nil
}

func (m *MemoryAutoBids) HighestActiveExcluding(_ context.Context, auctionID, bidderID string) (*domain.AutoBidProxy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *domain.AutoBidProxy
	for _, p := range m.proxies {
		if p.AuctionID != auctionID || p.BidderID == bidderID || !p.Active {
			continue
		}
		if best == nil || p.MaxAmountCents > best.MaxAmountCents {
			best = p
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (m *MemoryAutoBids) Deactivate(_ context.Context, proxyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.proxies {
		if p.ID == proxyID {
			p.Active = false
			p.UpdatedAt = time.Now()
			return nil
		}
	}
	return domain.ErrProxyNotFound
}

func (m *MemoryAutoBids) DeactivateAll(_ context.Context, auctionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.proxies {
		if p.AuctionID == auctionID && p.Active {
			p.Active = false
			p.UpdatedAt = time.Now()
		}
	}
	return nil
}
