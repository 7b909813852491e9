package refreshrepofake

import (
	"sync"

	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/issuer"
)

var _ issuer.Repo = (*FakeRefreshTokenRepo)(nil)

type FakeRefreshTokenRepo struct {
	tokens  map[string]*issuer.StoredRefreshToken
	userIDs map[string]string // user ID to token ID
	lock    sync.RWMutex
}

func NewFakeRefreshTokenRepo() issuer.Repo {
	return &FakeRefreshTokenRepo{
		tokens:  make(map[string]*issuer.StoredRefreshToken),
		userIDs: make(map[string]string),
	}
}

func (tr *FakeRefreshTokenRepo) Upsert(refreshToken *issuer.StoredRefreshToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	tr.tokens[refreshToken.ID] = refreshToken
	tr.userIDs[refreshToken.UserID] = refreshToken.ID
	return nil
}

func (tr *FakeRefreshTokenRepo) Delete(id string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	rt, ok := tr.tokens[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if tr.userIDs[rt.UserID] == id {
		delete(tr.userIDs, rt.UserID)
	}
	delete(tr.tokens, id)
	return nil
}

func (tr *FakeRefreshTokenRepo) Get(id string) (*issuer.StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	rt, ok := tr.tokens[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return rt, nil
}

func (tr *FakeRefreshTokenRepo) GetByUserID(userID string) (*issuer.StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	id, ok := tr.userIDs[userID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return tr.tokens[id], nil
}
