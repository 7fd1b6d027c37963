package registry

import (
	"context"
	"time"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal/config"
	"github.com/mborgeson/dashboard-interface-project-sub000/internal/storage"
)

// SyncService mirrors the registry's canonical property names into the
// local value store so reconciliation works offline.
type SyncService struct {
	db     *storage.DB
	client *Client
}

func NewSyncService(db *storage.DB, cfg config.Config) *SyncService {
	return &SyncService{db: db, client: NewClient(cfg)}
}

func (s *SyncService) Sync(ctx context.Context) (int, error) {
	properties, err := s.client.ListPropertiesAll(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.db.UpsertProperties(properties); err != nil {
		return 0, err
	}
	_ = s.db.SetMetadata("registry.last_sync", time.Now().UTC().Format(time.RFC3339))
	return len(properties), nil
}
