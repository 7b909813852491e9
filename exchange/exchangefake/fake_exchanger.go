package exchangefake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-admin-session/exchange"
	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
)

var _ exchange.Exchanger = (*FakeExchanger)(nil)

// FakeExchanger is a scriptable Exchanger that counts calls
type FakeExchanger struct {
	LoginFunc   func(ctx context.Context, creds exchange.Credentials) (exchange.Grant, error)
	RefreshFunc func(ctx context.Context, refreshToken string) (exchange.Grant, error)
	RevokeFunc  func(ctx context.Context, refreshToken string) error

	lock         sync.Mutex
	loginCalls   int
	refreshCalls int
	revokeCalls  int
	refreshed    []string
}

func NewFakeExchanger() *FakeExchanger {
	return &FakeExchanger{}
}

func (f *FakeExchanger) Login(ctx context.Context, creds exchange.Credentials) (exchange.Grant, error) {
	f.lock.Lock()
	f.loginCalls++
	fn := f.LoginFunc
	f.lock.Unlock()

	if fn == nil {
		return exchange.Grant{}, apperrors.ErrUnsupported
	}
	return fn(ctx, creds)
}

func (f *FakeExchanger) Refresh(ctx context.Context, refreshToken string) (exchange.Grant, error) {
	f.lock.Lock()
	f.refreshCalls++
	f.refreshed = append(f.refreshed, refreshToken)
	fn := f.RefreshFunc
	f.lock.Unlock()

	if fn == nil {
		return exchange.Grant{}, apperrors.ErrUnsupported
	}
	return fn(ctx, refreshToken)
}

func (f *FakeExchanger) Revoke(ctx context.Context, refreshToken string) error {
	f.lock.Lock()
	f.revokeCalls++
	fn := f.RevokeFunc
	f.lock.Unlock()

	if fn == nil {
		return nil
	}
	return fn(ctx, refreshToken)
}

func (f *FakeExchanger) LoginCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.loginCalls
}

func (f *FakeExchanger) RefreshCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.refreshCalls
}

func (f *FakeExchanger) RevokeCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.revokeCalls
}

// RefreshedTokens returns the refresh tokens presented so far, in call order
func (f *FakeExchanger) RefreshedTokens() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.refreshed...)
}
