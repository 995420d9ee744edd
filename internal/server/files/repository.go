package files

import "context"

type Repository interface {
	Insert(ctx context.Context, rec *FileRecord) (*FileRecord, error)

	// ListByAccount returns the account's records ordered by upload time,
	// newest first.
	ListByAccount(ctx context.Context, accountID string) ([]*FileRecord, error)

	// GetByID is ownership-scoped: a record belonging to another account is
	// reported as missing.
	GetByID(ctx context.Context, accountID, fileID string) (*FileRecord, error)

	// DeleteByAccount removes every record the account owns in a single
	// transaction and returns the stored names that were referenced, so the
	// caller can delete the blobs afterwards.
	DeleteByAccount(ctx context.Context, accountID string) ([]string, error)

	// IncrementDownloadCount bumps the counter by one. Best-effort at the
	// call sites; the statement itself is atomic.
	IncrementDownloadCount(ctx context.Context, fileID string) error

	Stats(ctx context.Context, accountID string) (*AccountStats, error)

	// ListStoredNames returns every stored name known to the registry,
	// across all accounts. Used by the orphan sweeper.
	ListStoredNames(ctx context.Context) ([]string, error)
}
