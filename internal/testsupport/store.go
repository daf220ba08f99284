package testsupport

import (
	"context"
	"testing"

	"recap/internal/config"
	"recap/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewAccount creates an account for tests using the provided store.
func NewAccount(t testing.TB, st *store.Store, id, planTier string, anchorDay *int) *store.Account {
	t.Helper()

	account, err := st.CreateAccount(context.Background(), id, planTier, anchorDay)
	if err != nil {
		t.Fatalf("store.CreateAccount: %v", err)
	}
	return account
}
