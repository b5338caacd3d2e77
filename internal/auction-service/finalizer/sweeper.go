package finalizer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gfranco/auction-platform-poc/internal/auction-service/domain"
	"github.com/gfranco/auction-platform-poc/internal/auction-service/engine"
	"github.com/gfranco/auction-platform-poc/internal/shared/metrics"
	"github.com/gfranco/auction-platform-poc/pkg/contracts/events"
)

// Colaboradores externos do sweep. Interfaces pequenas pra injetar fakes em teste.
type OrderCreator interface {
	CreateOrder(ctx context.Context, auctionID string, finalPriceCents int64, sellerID, winnerID string) (string, error)
}

type Notifier interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type FinalizedPublisher interface {
	PublishAuctionFinalized(ctx context.Context, e events.AuctionFinalized) error
}

// Sweeper liquida leilões encerrados: cria o pedido e notifica exatamente
// uma vez, guardado pelas flags orderCreated/notified. Timer e trigger
// administrativo invocam o mesmo Sweep idempotente.
type Sweeper struct {
	log      *zap.Logger
	locks    *engine.LockRing
	store    engine.AuctionStore
	autob    engine.AutoBidRegistry
	commit   engine.BidCommitter
	orders   OrderCreator
	notifier Notifier
	publ     FinalizedPublisher
	snap     engine.PriceSnapshotter
}

func NewSweeper(
	log *zap.Logger,
	locks *engine.LockRing,
	store engine.AuctionStore,
	autob engine.AutoBidRegistry,
	commit engine.BidCommitter,
	orders OrderCreator,
	notifier Notifier,
	publ FinalizedPublisher,
	snap engine.PriceSnapshotter,
) *Sweeper {
	return &Sweeper{
		log:      log,
		locks:    locks,
		store:    store,
		autob:    autob,
		commit:   commit,
		orders:   orders,
		notifier: notifier,
		publ:     publ,
		snap:     snap,
	}
}

// Start dispara o sweep periódico em goroutine própria; para quando ctx encerra.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				processed, err := s.Sweep(ctx)
				if err != nil {
					s.log.Error("finalize sweep", zap.Error(err))
					continue
				}
				if processed > 0 {
					s.log.Info("finalize sweep", zap.Int("processed", processed))
				}
			}
		}
	}()
}

// Sweep percorre leilões com endAt no passado e liquidação pendente.
// Falha num leilão é logada e não interrompe os demais; o que ficou
// pendente volta no próximo sweep.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	candidates, err := s.store.ListExpiredUnsettled(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("list expired auctions: %w", err)
	}

	processed := 0
	for _, a := range candidates {
		if err := s.FinalizeOne(ctx, a.ID); err != nil {
			s.log.Error("finalize auction", zap.String("auctionId", a.ID), zap.Error(err))
			continue
		}
		processed++
	}
	return processed, nil
}

// FinalizeOne liquida um leilão sob o mesmo lock usado pelos lances, então
// um lance manual atrasado nunca corre junto com a liquidação.
func (s *Sweeper) FinalizeOne(ctx context.Context, auctionID string) error {
	release, err := s.locks.Acquire(ctx, auctionID)
	if err != nil {
		return err
	}

	ev, err := s.finalizeLocked(ctx, auctionID)
	release()

	if err != nil {
		return err
	}
	// evento fora do lock; falha aqui não desfaz a liquidação
	if ev != nil && s.publ != nil {
		pctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if perr := s.publ.PublishAuctionFinalized(pctx, *ev); perr != nil {
			s.log.Error("publish auction_finalized", zap.String("auctionId", auctionID), zap.Error(perr))
		}
	}
	return nil
}

// finalizeLocked roda com o lock em mãos. Devolve o evento a publicar
// quando o leilão terminou de liquidar nesta passada, senão nil.
func (s *Sweeper) finalizeLocked(ctx context.Context, auctionID string) (*events.AuctionFinalized, error) {
	a, err := s.store.Get(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if !a.Ended(time.Now()) {
		return nil, nil
	}
	if a.OrderCreated && a.Notified {
		// já liquidado: zero chamadas extra aos colaboradores
		return nil, nil
	}

	// proxies não disputam leilão encerrado
	if err := s.autob.DeactivateAll(ctx, auctionID); err != nil {
		s.log.Warn("deactivate proxies", zap.String("auctionId", auctionID), zap.Error(err))
	}

	ev := &events.AuctionFinalized{AuctionID: a.ID, SellerID: a.SellerID}

	if a.BidCount > 0 && a.CurrentWinnerID != nil {
		winner := *a.CurrentWinnerID
		price := *a.CurrentPriceCents
		ev.WinnerID = winner
		ev.FinalPriceCents = price

		if !a.OrderCreated {
			orderID, oerr := s.orders.CreateOrder(ctx, a.ID, price, a.SellerID, winner)
			if oerr != nil {
				return nil, fmt.Errorf("create order: %w", oerr)
			}
			a.OrderCreated = true
			a.OrderID = &orderID
			// persiste flag e referência antes de notificar: crash aqui
			// retoma só a notificação, com o mesmo pedido
			if err := s.store.Update(ctx, a); err != nil {
				return nil, err
			}
		}
		if a.OrderID != nil {
			ev.OrderID = *a.OrderID
		}

		if !a.Notified {
			if nerr := s.notifier.SendEmail(ctx, a.SellerID,
				"Auction ended with a winner",
				fmt.Sprintf("Your item %q has been sold.", a.Name)); nerr != nil {
				return nil, fmt.Errorf("notify seller: %w", nerr)
			}
			if nerr := s.notifier.SendEmail(ctx, winner,
				"You won the auction!",
				fmt.Sprintf("You won %q.", a.Name)); nerr != nil {
				return nil, fmt.Errorf("notify winner: %w", nerr)
			}
			a.Notified = true
			if err := s.store.Update(ctx, a); err != nil {
				return nil, err
			}
		}
	} else {
		if !a.Notified {
			if nerr := s.notifier.SendEmail(ctx, a.SellerID,
				"Auction ended without bids",
				fmt.Sprintf("Your item %q ended with no bids.", a.Name)); nerr != nil {
				return nil, fmt.Errorf("notify seller: %w", nerr)
			}
		}
		// sem vencedor não há pedido; as duas flags fecham o ciclo
		a.Notified = true
		a.OrderCreated = true
		if err := s.store.Update(ctx, a); err != nil {
			return nil, err
		}
	}

	metrics.FinalizationsTotal.Inc()
	return ev, nil
}

type BuyNowResult struct {
	FinalPriceCents int64
	BuyerID         string
	EndAt           time.Time
}

// BuyNow encerra o leilão na hora pelo preço de compra imediata e roda a
// liquidação deste leilão em seguida. Se a liquidação falhar (colaborador
// fora do ar), a compra fica valendo e o próximo sweep retoma.
func (s *Sweeper) BuyNow(ctx context.Context, auctionID, buyerID string) (*BuyNowResult, error) {
	release, err := s.locks.Acquire(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	res, err := s.buyNowLocked(ctx, auctionID, buyerID)
	release()

	if err != nil {
		return nil, err
	}

	if ferr := s.FinalizeOne(ctx, auctionID); ferr != nil {
		s.log.Error("finalize after buy-now", zap.String("auctionId", auctionID), zap.Error(ferr))
	}
	return res, nil
}

func (s *Sweeper) buyNowLocked(ctx context.Context, auctionID, buyerID string) (*BuyNowResult, error) {
	a, err := s.store.Get(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if a.OrderCreated {
		return nil, domain.Validation(domain.ReasonAlreadySettled)
	}
	if a.BuyNowPriceCents == nil {
		return nil, domain.Validation(domain.ReasonBuyNowUnavailable)
	}
	now := time.Now()
	if a.Ended(now) {
		return nil, domain.Validation(domain.ReasonAuctionEnded)
	}

	var prevWinner string
	if a.CurrentWinnerID != nil {
		prevWinner = *a.CurrentWinnerID
	}

	price := *a.BuyNowPriceCents
	a.CurrentPriceCents = &price
	a.CurrentWinnerID = &buyerID
	a.EndAt = now
	a.BidCount++

	// mesma disciplina do lance: leilão e ledger commitam juntos
	if err := s.commit.CommitBid(ctx, a, &domain.BidRecord{
		ID:               uuid.NewString(),
		AuctionID:        auctionID,
		BidderID:         buyerID,
		AmountCents:      price,
		CorrelationID:    "BUYNOW_" + uuid.NewString(),
		PreviousWinnerID: prevWinner,
		Outcome:          domain.BidSuccess,
		CreatedAt:        now,
	}); err != nil {
		return nil, err
	}

	if s.snap != nil {
		if serr := s.snap.Refresh(ctx, a); serr != nil {
			s.log.Warn("price snapshot refresh", zap.String("auctionId", auctionID), zap.Error(serr))
		}
	}

	return &BuyNowResult{FinalPriceCents: price, BuyerID: buyerID, EndAt: now}, nil
}
