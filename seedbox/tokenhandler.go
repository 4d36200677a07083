package seedbox

import (
	"context"
	"fmt"

	"github.com/seedboxsh/rssbox/model"
	"github.com/seedboxsh/rssbox/store"
)

// StoreTokenHandler persists session tokens on the Account document itself
// (spec §6: "tokens are persisted on the Account document"), grounded on
// the source's TokenHandler reading/writing the same Mongo document the
// rest of the claim protocol operates on.
type StoreTokenHandler struct {
	s store.Store
}

func NewStoreTokenHandler(s store.Store) *StoreTokenHandler {
	return &StoreTokenHandler{s: s}
}

var _ TokenHandler = (*StoreTokenHandler)(nil)

func (h *StoreTokenHandler) Read(ctx context.Context, accountID string) (string, error) {
	var a model.Account
	if err := h.s.Get(store.Accounts, accountID, &a); err != nil {
		if err == store.ErrNotFound {
			return "", nil
		}
		return "", fmt.Errorf("seedbox: reading token for account %s: %w", accountID, err)
	}
	return a.Token, nil
}

func (h *StoreTokenHandler) Write(ctx context.Context, accountID, token string) error {
	var a model.Account
	if err := h.s.Get(store.Accounts, accountID, &a); err != nil {
		return fmt.Errorf("seedbox: writing token for account %s: %w", accountID, err)
	}
	a.Token = token
	if err := h.s.UpdateOne(store.Accounts, accountID, &a); err != nil {
		return fmt.Errorf("seedbox: writing token for account %s: %w", accountID, err)
	}
	return nil
}
