// Package engine contains the stateless gamification engines. Every engine holds
// an injected store.Store; all shared state lives in the store.
//
// Write methods accept an optional store.Repositories. A nil tx means the method
// opens and commits its own transaction; a non-nil tx joins the caller's.
package engine

import (
	"context"

	"github.com/coursehub/gamification/internal/domain/store"
)

// within runs fn in tx when one is given, otherwise in a new transaction.
func within(ctx context.Context, st store.Store, tx store.Repositories, fn func(tx store.Repositories) error) error {
	if tx != nil {
		return fn(tx)
	}
	return st.WithinTx(ctx, fn)
}

// repos returns tx when present, otherwise the store's autocommit repositories.
func repos(st store.Store, tx store.Repositories) store.Repositories {
	if tx != nil {
		return tx
	}
	return st
}
