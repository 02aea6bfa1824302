package remote

import (
	"context"
	"fmt"

	"runclub/internal/club"
	"runclub/internal/config"
)

// DefaultDatabase is the Mongo database used when none is configured.
const DefaultDatabase = "runclub"

// NewStoreFromConfig creates a remote Store based on the remote config type.
// Returns nil, nil when no remote is configured.
func NewStoreFromConfig(ctx context.Context, cfg config.RemoteConfig, ids club.IDGenerator, clock club.Clock) (Store, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryStore(ids, clock), nil
	case "mongo":
		if cfg.URI == "" {
			return nil, fmt.Errorf("uri required for mongo remote")
		}
		timeout, err := cfg.TimeoutDuration()
		if err != nil {
			return nil, err
		}
		client, err := ConnectMongo(ctx, cfg.URI, timeout)
		if err != nil {
			return nil, err
		}
		database := cfg.Database
		if database == "" {
			database = DefaultDatabase
		}
		return NewMongoStore(client, database, ids, clock), nil
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}
