package domain

import "errors"

// Motivos de falha gravados no ledger e devolvidos ao caller.
const (
	ReasonAuctionNotFound        = "AUCTION_NOT_FOUND"
	ReasonAuctionEnded           = "AUCTION_ENDED"
	ReasonLowerThanStartingPrice = "LOWER_THAN_STARTING_PRICE"
	ReasonBidTooLow              = "BID_TOO_LOW"
	ReasonMaxAmountTooLow        = "MAX_AMOUNT_TOO_LOW"
	ReasonNoBidToCancel          = "NO_BID_TO_CANCEL"
	ReasonNotSeller              = "NOT_SELLER"
	ReasonAlreadySettled         = "ALREADY_SETTLED"
	ReasonBuyNowUnavailable      = "BUY_NOW_UNAVAILABLE"
	ReasonCancelledBySeller      = "CANCELLED_BY_SELLER"
)

// Sentinelas mapeadas pela camada HTTP para status codes.
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrProxyNotFound   = errors.New("auto-bid proxy not found")
	ErrRecordNotFound  = errors.New("bid record not found")

	// ErrLockBusy é transiente: o lock do leilão não foi adquirido dentro
	// do timeout. O caller pode repetir a chamada; o lance nunca é
	// descartado silenciosamente.
	ErrLockBusy = errors.New("auction lock busy")
)

// ValidationError carrega o código de motivo da recusa de um lance
// ou de uma operação de vendedor/comprador.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validation é o construtor usado pelo engine e pelo sweeper.
func Validation(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

// IsValidation extrai o código de motivo quando err é um ValidationError.
func IsValidation(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return "", false
}
