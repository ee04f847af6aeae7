package exchangefakerepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-session-keeper/exchange"
)

// FakeExchanger is a scriptable application backend. RefreshAccess blocks on
// the gate, when one is set, until it is closed or the context ends.
type FakeExchanger struct {
	result      exchange.Result
	exchangeErr error
	refreshed   []string
	refreshErrs []error
	gate        chan struct{}

	exchanges     int
	refreshCalls  int
	refreshTokens []string
	lock          sync.RWMutex
}

var (
	_ exchange.Exchanger = (*FakeExchanger)(nil)
	_ exchange.Refresher = (*FakeExchanger)(nil)
)

func NewFakeExchanger(result exchange.Result) *FakeExchanger {
	return &FakeExchanger{result: result}
}

func (e *FakeExchanger) OnAuthSuccess(ctx context.Context, idToken, accessToken string) (exchange.Result, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.exchanges++
	if e.exchangeErr != nil {
		return exchange.Result{}, e.exchangeErr
	}
	return e.result, nil
}

func (e *FakeExchanger) RefreshAccess(ctx context.Context, refreshToken string) (string, error) {
	e.lock.Lock()
	e.refreshCalls++
	e.refreshTokens = append(e.refreshTokens, refreshToken)
	gate := e.gate
	e.lock.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	e.lock.Lock()
	defer e.lock.Unlock()
	if len(e.refreshErrs) > 0 {
		err := e.refreshErrs[0]
		e.refreshErrs = e.refreshErrs[1:]
		if err != nil {
			return "", err
		}
	}
	if len(e.refreshed) == 0 {
		return e.result.AccessToken, nil
	}
	access := e.refreshed[0]
	if len(e.refreshed) > 1 {
		e.refreshed = e.refreshed[1:]
	}
	return access, nil
}

// SetResult changes the result of later exchanges
func (e *FakeExchanger) SetResult(result exchange.Result) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.result = result
}

func (e *FakeExchanger) SetExchangeError(err error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.exchangeErr = err
}

// QueueRefreshed sets the access tokens returned by successive refreshes; the
// last one repeats.
func (e *FakeExchanger) QueueRefreshed(tokens ...string) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.refreshed = tokens
}

// QueueRefreshErrors makes successive refreshes fail; a nil entry lets that
// attempt succeed.
func (e *FakeExchanger) QueueRefreshErrors(errs ...error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.refreshErrs = errs
}

// Hold makes refreshes block until the returned release func is called
func (e *FakeExchanger) Hold() (release func()) {
	e.lock.Lock()
	defer e.lock.Unlock()
	gate := make(chan struct{})
	e.gate = gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (e *FakeExchanger) Exchanges() int {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.exchanges
}

func (e *FakeExchanger) RefreshCalls() int {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.refreshCalls
}

// RefreshTokens are the refresh tokens presented, in order
func (e *FakeExchanger) RefreshTokens() []string {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return append([]string(nil), e.refreshTokens...)
}
