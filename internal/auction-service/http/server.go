package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gfranco/auction-platform-poc/internal/auction-service/cache"
	"github.com/gfranco/auction-platform-poc/internal/auction-service/domain"
	"github.com/gfranco/auction-platform-poc/internal/auction-service/dto"
	"github.com/gfranco/auction-platform-poc/internal/auction-service/engine"
	"github.com/gfranco/auction-platform-poc/internal/auction-service/finalizer"
)

// Settler é o pedaço do sweeper que a API usa: compra imediata e o
// trigger administrativo do sweep.
type Settler interface {
	BuyNow(ctx context.Context, auctionID, buyerID string) (*finalizer.BuyNowResult, error)
	Sweep(ctx context.Context) (int, error)
}

// PriceReader lê o snapshot quente; nil desliga o cache (modo memory).
type PriceReader interface {
	Get(ctx context.Context, auctionID string) (*cache.PriceSnapshot, error)
}

type Server struct {
	log     *zap.Logger
	store   engine.AuctionStore
	ledger  engine.BidLedger
	eng     *engine.Engine
	settler Settler
	prices  PriceReader
}

func NewServer(log *zap.Logger, store engine.AuctionStore, ledger engine.BidLedger, eng *engine.Engine, settler Settler, prices PriceReader) *Server {
	return &Server{log: log, store: store, ledger: ledger, eng: eng, settler: settler, prices: prices}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auctions", s.createAuction)  // POST
	mux.HandleFunc("/auctions/", s.auctionRoutes) // GET /auctions/{id}, POST /auctions/{id}/...
	mux.HandleFunc("/admin/finalize", s.adminFinalize)
	return mux
}

// auctionRoutes resolve /auctions/{id}[/ação] na mão, estilo mux básico
func (s *Server) auctionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/auctions/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		http.Error(w, "auctionId required", http.StatusBadRequest)
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getAuction(w, r, id)
	case action == "bids" && r.Method == http.MethodGet:
		s.listBids(w, r, id)
	case action == "bids" && r.Method == http.MethodPost:
		s.placeBid(w, r, id)
	case action == "autobids" && r.Method == http.MethodPost:
		s.registerAutoBid(w, r, id)
	case action == "buy-now" && r.Method == http.MethodPost:
		s.buyNow(w, r, id)
	case action == "cancel-top-bid" && r.Method == http.MethodPost:
		s.cancelTopBid(w, r, id)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) createAuction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.CreateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.SellerID == "" || req.Name == "" || req.StartingPriceCents <= 0 || req.StepPriceCents <= 0 || req.EndAt.Before(time.Now()) {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	a := &domain.Auction{
		ID:                 uuid.NewString(),
		SellerID:           req.SellerID,
		Name:               req.Name,
		StartingPriceCents: req.StartingPriceCents,
		StepPriceCents:     req.StepPriceCents,
		BuyNowPriceCents:   req.BuyNowPriceCents,
		EndAt:              req.EndAt,
		CreatedAt:          time.Now(),
	}
	if err := s.store.Create(r.Context(), a); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, toAuctionResponse(a))
}

func (s *Server) getAuction(w http.ResponseWriter, r *http.Request, id string) {
	a, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// preço/vencedor saem do snapshot quente quando disponível
	if s.prices != nil {
		if snap, cerr := s.prices.Get(r.Context(), id); cerr == nil && snap != nil {
			a.CurrentPriceCents = snap.CurrentPriceCents
			a.CurrentWinnerID = snap.CurrentWinnerID
			a.BidCount = snap.BidCount
		}
	}
	writeJSON(w, toAuctionResponse(a))
}

func (s *Server) listBids(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := s.store.Get(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	records, err := s.ledger.ListByAuction(r.Context(), id, 100)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]dto.BidRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, dto.BidRecordResponse{
			ID:            rec.ID,
			BidderID:      rec.BidderID,
			AmountCents:   rec.AmountCents,
			CorrelationID: rec.CorrelationID,
			Outcome:       string(rec.Outcome),
			FailureReason: rec.FailureReason,
			CreatedAt:     rec.CreatedAt,
		})
	}
	writeJSON(w, out)
}

func (s *Server) placeBid(w http.ResponseWriter, r *http.Request, id string) {
	var req dto.PlaceBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.BidderID == "" || req.AmountCents <= 0 || req.CorrelationID == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	res, err := s.eng.PlaceBid(r.Context(), id, req.BidderID, req.AmountCents, req.CorrelationID)
	if err != nil {
		if reason, ok := domain.IsValidation(err); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(dto.PlaceBidResponse{Success: false, Reason: reason})
			return
		}
		s.writeError(w, err)
		return
	}

	writeJSON(w, dto.PlaceBidResponse{
		Success:          true,
		WinnerID:         res.WinnerID,
		FinalPriceCents:  res.FinalPriceCents,
		PreviousWinnerID: res.PreviousWinnerID,
	})
}

func (s *Server) registerAutoBid(w http.ResponseWriter, r *http.Request, id string) {
	var req dto.RegisterAutoBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.BidderID == "" || req.MaxAmountCents <= 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if err := s.eng.RegisterAutoBid(r.Context(), id, req.BidderID, req.MaxAmountCents); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) buyNow(w http.ResponseWriter, r *http.Request, id string) {
	var req dto.BuyNowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.BuyerID == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	res, err := s.settler.BuyNow(r.Context(), id, req.BuyerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, dto.BuyNowResponse{
		FinalPriceCents: res.FinalPriceCents,
		BuyerID:         res.BuyerID,
		EndAt:           res.EndAt,
	})
}

func (s *Server) cancelTopBid(w http.ResponseWriter, r *http.Request, id string) {
	var req dto.CancelTopBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.SellerID == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	a, err := s.eng.CancelTopBid(r.Context(), id, req.SellerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, dto.CancelTopBidResponse{
		CurrentPriceCents: a.CurrentPriceCents,
		CurrentWinnerID:   a.CurrentWinnerID,
		BidCount:          a.BidCount,
	})
}

func (s *Server) adminFinalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	processed, err := s.settler.Sweep(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, dto.FinalizeResponse{Processed: processed})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAuctionNotFound):
		http.Error(w, "auction not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrLockBusy):
		// transiente: o caller pode repetir
		http.Error(w, "auction busy, retry", http.StatusConflict)
	default:
		if reason, ok := domain.IsValidation(err); ok {
			http.Error(w, reason, http.StatusUnprocessableEntity)
			return
		}
		s.log.Error("internal error", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toAuctionResponse(a *domain.Auction) dto.AuctionResponse {
	return dto.AuctionResponse{
		ID:                 a.ID,
		SellerID:           a.SellerID,
		Name:               a.Name,
		StartingPriceCents: a.StartingPriceCents,
		CurrentPriceCents:  a.CurrentPriceCents,
		CurrentWinnerID:    a.CurrentWinnerID,
		StepPriceCents:     a.StepPriceCents,
		BuyNowPriceCents:   a.BuyNowPriceCents,
		EndAt:              a.EndAt,
		BidCount:           a.BidCount,
		Status:             string(a.Status(time.Now())),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
