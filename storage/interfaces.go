package storage

import "bizharvest/models"

// ListingStore is the interface the scheduler and control surface consume;
// tests substitute in-memory implementations.
type ListingStore interface {
	StoreListings(listings []*models.NormalizedListing, source string) (int, error)
	GetListings(filter models.ListingFilter) ([]*models.NormalizedListing, error)
	GetStats() (*models.ListingStats, error)
	StoreSyncResult(result *models.SyncRunResult) error
	GetLastSyncResults(scraperName string) ([]*models.SyncRunResult, error)
	DeduplicateListings(source string) (int, error)
	CleanupOldListings(source string, daysOld int) (int, error)
	HealthCheck() bool
	Close() error
}
