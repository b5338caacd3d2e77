package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gfranco/auction-platform-poc/internal/auction-service/domain"
	"github.com/gfranco/auction-platform-poc/internal/shared/metrics"
	"github.com/gfranco/auction-platform-poc/pkg/contracts/events"
)

// OutcomePublisher anuncia lances aceitos depois que o lock foi liberado.
// Falha de publicação nunca desfaz um lance já commitado.
type OutcomePublisher interface {
	PublishBidOutcome(ctx context.Context, e events.BidOutcome) error
}

// PriceSnapshotter mantém o snapshot quente (preço/vencedor) fora do banco.
type PriceSnapshotter interface {
	Refresh(ctx context.Context, a *domain.Auction) error
}

// Engine é o único mutador serializado de um leilão: lance manual, lance
// sintético de registro de auto-bid e cancelamento de topo passam por aqui,
// sempre sob o lock do leilão.
type Engine struct {
	log    *zap.Logger
	locks  *LockRing
	store  AuctionStore
	ledger BidLedger
	autob  AutoBidRegistry
	commit BidCommitter
	publ   OutcomePublisher
	snap   PriceSnapshotter
}

func New(log *zap.Logger, locks *LockRing, store AuctionStore, ledger BidLedger, autob AutoBidRegistry, commit BidCommitter, publ OutcomePublisher, snap PriceSnapshotter) *Engine {
	return &Engine{
		log:    log,
		locks:  locks,
		store:  store,
		ledger: ledger,
		autob:  autob,
		commit: commit,
		publ:   publ,
		snap:   snap,
	}
}

// Locks expõe o anel de locks para quem precisa da mesma disciplina de
// serialização (sweeper de finalização e compra imediata).
func (e *Engine) Locks() *LockRing { return e.locks }

type PlaceBidResult struct {
	WinnerID         string
	FinalPriceCents  int64
	PreviousWinnerID string
}

// PlaceBid aplica um lance sobre o leilão:
//  1. adquire o lock do leilão
//  2. valida existência / término / piso do lance
//  3. resolve a disputa contra o maior auto-bid concorrente
//  4. persiste leilão + registro SUCCESS numa única transação
//  5. libera o lock e só então publica o evento bid_outcome
//
// Chamadas repetidas com o mesmo correlationId devolvem o desfecho original
// sem aplicar uma segunda mutação.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, bidderID string, amountCents int64, correlationID string) (*PlaceBidResult, error) {
	release, err := e.locks.Acquire(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	res, publish, err := e.placeBidLocked(ctx, auctionID, bidderID, amountCents, correlationID)
	release()

	if err != nil {
		return nil, err
	}
	if publish {
		e.publishOutcome(auctionID, correlationID, res)
	}
	return res, nil
}

// placeBidLocked roda com o lock do leilão em mãos. Devolve publish=false
// quando o desfecho veio de replay idempotente.
func (e *Engine) placeBidLocked(ctx context.Context, auctionID, bidderID string, amountCents int64, correlationID string) (*PlaceBidResult, bool, error) {
	a, err := e.store.Get(ctx, auctionID)
	if err != nil {
		// leilão inexistente não gera entrada no ledger
		return nil, false, err
	}

	// Replay idempotente por (auctionId, correlationId)
	if prev, ferr := e.ledger.FindByCorrelation(ctx, auctionID, correlationID); ferr == nil {
		if prev.Outcome == domain.BidSuccess {
			return &PlaceBidResult{
				WinnerID:         prev.BidderID,
				FinalPriceCents:  prev.AmountCents,
				PreviousWinnerID: prev.PreviousWinnerID,
			}, false, nil
		}
		return nil, false, domain.Validation(prev.FailureReason)
	} else if !errors.Is(ferr, domain.ErrRecordNotFound) {
		return nil, false, ferr
	}

	if a.Ended(time.Now()) {
		return nil, false, e.failBid(ctx, a, bidderID, amountCents, correlationID, domain.ReasonAuctionEnded)
	}

	// Piso: preço inicial no primeiro lance, estritamente acima do
	// preço corrente nos demais
	if a.CurrentPriceCents == nil {
		if amountCents < a.StartingPriceCents {
			return nil, false, e.failBid(ctx, a, bidderID, amountCents, correlationID, domain.ReasonLowerThanStartingPrice)
		}
	} else if amountCents <= *a.CurrentPriceCents {
		return nil, false, e.failBid(ctx, a, bidderID, amountCents, correlationID, domain.ReasonBidTooLow)
	}

	winner := bidderID
	final := amountCents

	proxy, err := e.autob.HighestActiveExcluding(ctx, auctionID, bidderID)
	if err != nil {
		return nil, false, err
	}
	if proxy != nil && proxy.MaxAmountCents <= a.MinAllowed() {
		// teto obsoleto: o preço já passou dele
		if derr := e.autob.Deactivate(ctx, proxy.ID); derr != nil {
			return nil, false, derr
		}
		proxy = nil
	}

	if proxy != nil {
		if amountCents < proxy.MaxAmountCents {
			// o proxy cobre o lance e responde um passo acima, limitado ao teto
			winner = proxy.BidderID
			final = amountCents + a.StepPriceCents
			if final > proxy.MaxAmountCents {
				final = proxy.MaxAmountCents
			}
		} else {
			// teto esgotado: o lance manual vence pagando um passo acima
			// do teto do proxy, nunca mais que o próprio lance
			final = proxy.MaxAmountCents + a.StepPriceCents
			if final > amountCents {
				final = amountCents
			}
			if derr := e.autob.Deactivate(ctx, proxy.ID); derr != nil {
				return nil, false, derr
			}
		}
	}

	var prevWinner string
	if a.CurrentWinnerID != nil {
		prevWinner = *a.CurrentWinnerID
	}

	a.CurrentPriceCents = &final
	a.CurrentWinnerID = &winner
	a.BidCount++

	// leilão e ledger commitam juntos; falha aqui não deixa meio lance
	if err := e.commit.CommitBid(ctx, a, &domain.BidRecord{
		ID:               uuid.NewString(),
		AuctionID:        auctionID,
		BidderID:         winner,
		AmountCents:      final,
		CorrelationID:    correlationID,
		PreviousWinnerID: prevWinner,
		Outcome:          domain.BidSuccess,
		CreatedAt:        time.Now(),
	}); err != nil {
		return nil, false, err
	}

	e.refreshSnapshot(ctx, a)
	metrics.BidsTotal.WithLabelValues("success").Inc()

	return &PlaceBidResult{
		WinnerID:         winner,
		FinalPriceCents:  final,
		PreviousWinnerID: prevWinner,
	}, true, nil
}

// failBid grava a tentativa recusada no ledger (auditoria) e devolve o motivo.
func (e *Engine) failBid(ctx context.Context, a *domain.Auction, bidderID string, amountCents int64, correlationID, reason string) error {
	if err := e.ledger.Append(ctx, &domain.BidRecord{
		ID:            uuid.NewString(),
		AuctionID:     a.ID,
		BidderID:      bidderID,
		AmountCents:   amountCents,
		CorrelationID: correlationID,
		Outcome:       domain.BidFailed,
		FailureReason: reason,
		CreatedAt:     time.Now(),
	}); err != nil {
		e.log.Error("ledger append failed bid", zap.String("auctionId", a.ID), zap.Error(err))
	}
	metrics.BidsTotal.WithLabelValues("failed").Inc()
	return domain.Validation(reason)
}

// RegisterAutoBid valida e ativa (upsert) um proxy "dê lances até X" e, em
// seguida, emite um lance mínimo sintético pelo mesmo PlaceBid — registrar
// um proxy pode, por si só, mover o preço.
func (e *Engine) RegisterAutoBid(ctx context.Context, auctionID, bidderID string, maxAmountCents int64) error {
	release, err := e.locks.Acquire(ctx, auctionID)
	if err != nil {
		return err
	}

	a, err := e.store.Get(ctx, auctionID)
	if err != nil {
		release()
		return err
	}
	if a.Ended(time.Now()) {
		release()
		return domain.Validation(domain.ReasonAuctionEnded)
	}
	if maxAmountCents <= a.MinAllowed() {
		release()
		return domain.Validation(domain.ReasonMaxAmountTooLow)
	}

	if err := e.autob.Upsert(ctx, &domain.AutoBidProxy{
		ID:             uuid.NewString(),
		AuctionID:      auctionID,
		BidderID:       bidderID,
		MaxAmountCents: maxAmountCents,
		Active:         true,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}); err != nil {
		release()
		return err
	}

	// lance mínimo: preço inicial sem lances, senão um passo acima do
	// corrente, limitado ao teto recém registrado
	synthetic := a.StartingPriceCents
	if a.CurrentPriceCents != nil {
		synthetic = *a.CurrentPriceCents + a.StepPriceCents
		if synthetic > maxAmountCents {
			synthetic = maxAmountCents
		}
	}

	// o lance sintético entra pelo entrypoint normal, que readquire o lock
	release()

	correlation := "AUTO_REG_" + uuid.NewString()
	if _, err := e.PlaceBid(ctx, auctionID, bidderID, synthetic, correlation); err != nil {
		// o registro fica valendo; a recusa do lance sintético é auditável
		// no ledger como qualquer lance recusado
		e.log.Warn("synthetic bid rejected",
			zap.String("auctionId", auctionID),
			zap.String("bidderId", bidderID),
			zap.Error(err),
		)
	}
	return nil
}

// CancelTopBid é o único caminho que reduz currentPrice: marca o SUCCESS
// mais recente como CANCELLED_BY_SELLER e recompõe preço/vencedor a partir
// do SUCCESS seguinte, ou limpa ambos quando não resta nenhum.
func (e *Engine) CancelTopBid(ctx context.Context, auctionID, sellerID string) (*domain.Auction, error) {
	release, err := e.locks.Acquire(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	defer release()

	a, err := e.store.Get(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if a.SellerID != sellerID {
		return nil, domain.Validation(domain.ReasonNotSeller)
	}
	if a.CurrentWinnerID == nil {
		return nil, domain.Validation(domain.ReasonNoBidToCancel)
	}

	history, err := e.ledger.SuccessHistory(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, domain.Validation(domain.ReasonNoBidToCancel)
	}

	if err := e.ledger.MarkCancelled(ctx, history[0].ID); err != nil {
		return nil, err
	}

	if len(history) > 1 {
		next := history[1]
		a.CurrentPriceCents = &next.AmountCents
		a.CurrentWinnerID = &next.BidderID
	} else {
		a.CurrentPriceCents = nil
		a.CurrentWinnerID = nil
	}
	a.BidCount = len(history) - 1

	if err := e.store.Update(ctx, a); err != nil {
		return nil, err
	}

	e.refreshSnapshot(ctx, a)

	return a, nil
}

func (e *Engine) refreshSnapshot(ctx context.Context, a *domain.Auction) {
	if e.snap == nil {
		return
	}
	if err := e.snap.Refresh(ctx, a); err != nil {
		e.log.Warn("price snapshot refresh", zap.String("auctionId", a.ID), zap.Error(err))
	}
}

// publishOutcome roda fora do lock, em goroutine própria com timeout curto.
func (e *Engine) publishOutcome(auctionID, correlationID string, res *PlaceBidResult) {
	if e.publ == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		err := e.publ.PublishBidOutcome(ctx, events.BidOutcome{
			AuctionID:        auctionID,
			WinnerID:         res.WinnerID,
			AmountCents:      res.FinalPriceCents,
			PreviousWinnerID: res.PreviousWinnerID,
			CorrelationID:    correlationID,
			TsUnixMs:         time.Now().UnixMilli(),
		})
		if err != nil {
			e.log.Error("publish bid_outcome",
				zap.String("auctionId", auctionID),
				zap.String("correlationId", correlationID),
				zap.Error(err),
			)
		}
	}()
}
