package idpfakerepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-session-keeper/idp"
)

// FakeProvider is a scriptable identity provider
type FakeProvider struct {
	tokens         idp.Tokens
	silentErr      error
	interactiveErr error

	silentCalls      int
	interactiveCalls int
	logouts          int
	lastMode         idp.InteractionMode
	lock             sync.RWMutex
}

var _ idp.Provider = (*FakeProvider)(nil)

func NewFakeProvider(tokens idp.Tokens) *FakeProvider {
	return &FakeProvider{tokens: tokens}
}

func (p *FakeProvider) LoginInteractive(ctx context.Context, scopes []string, mode idp.InteractionMode) (idp.Tokens, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.interactiveCalls++
	p.lastMode = mode
	if p.interactiveErr != nil {
		return idp.Tokens{}, p.interactiveErr
	}
	return p.tokens, nil
}

func (p *FakeProvider) AcquireSilently(ctx context.Context, scopes []string) (idp.Tokens, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.silentCalls++
	if p.silentErr != nil {
		return idp.Tokens{}, p.silentErr
	}
	return p.tokens, nil
}

func (p *FakeProvider) Logout(ctx context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.logouts++
	return nil
}

// SetTokens changes the tokens returned by later calls
func (p *FakeProvider) SetTokens(tokens idp.Tokens) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.tokens = tokens
}

func (p *FakeProvider) SetSilentError(err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.silentErr = err
}

func (p *FakeProvider) SetInteractiveError(err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.interactiveErr = err
}

func (p *FakeProvider) SilentCalls() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.silentCalls
}

func (p *FakeProvider) InteractiveCalls() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.interactiveCalls
}

func (p *FakeProvider) Logouts() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.logouts
}

// LastMode is the interaction mode of the most recent interactive login
func (p *FakeProvider) LastMode() idp.InteractionMode {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.lastMode
}
