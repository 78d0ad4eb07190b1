package main

import (
	"context"

	"github.com/roomscout/collector-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	c := cfg.Store
	if c.Driver == "sqlite" && c.DatabaseURL == "" {
		c.DatabaseURL = "rooms.db"
	}
	return store.Open(ctx, c)
}
