package engine

import (
	"context"
	"sync"
	"time"

	"github.com/gfranco/auction-platform-poc/internal/auction-service/domain"
	"github.com/gfranco/auction-platform-poc/internal/shared/metrics"
)

// LockRing serializa toda mutação de um leilão: lance, auto-bid sintético,
// cancelamento, compra imediata e finalização passam pelo mesmo slot.
// Leilões distintos andam em paralelo; não existe lock global.
type LockRing struct {
	mu      sync.Mutex
	timeout time.Duration
	slots   map[string]*slot
}

// slot vive enquanto houver holder ou waiter (refs > 0); o último a sair
// remove a entrada do mapa, então o anel não cresce com leilões antigos.
type slot struct {
	ch   chan struct{}
	refs int
}

func NewLockRing(timeout time.Duration) *LockRing {
	return &LockRing{
		timeout: timeout,
		slots:   make(map[string]*slot),
	}
}

// Acquire bloqueia o slot do leilão ou devolve domain.ErrLockBusy após o
// timeout. O caller DEVE chamar a função de release retornada, uma vez.
func (l *LockRing) Acquire(ctx context.Context, auctionID string) (release func(), err error) {
	l.mu.Lock()
	s, ok := l.slots[auctionID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[auctionID] = s
	}
	s.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			l.drop(auctionID, s)
		}, nil
	case <-ctx.Done():
		l.drop(auctionID, s)
		metrics.LockBusyTotal.Inc()
		return nil, domain.ErrLockBusy
	case <-timer.C:
		l.drop(auctionID, s)
		metrics.LockBusyTotal.Inc()
		return nil, domain.ErrLockBusy
	}
}

func (l *LockRing) drop(auctionID string, s *slot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, auctionID)
	}
	l.mu.Unlock()
}
