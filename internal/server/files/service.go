package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/filedrop/filedrop/internal/common"
	"github.com/filedrop/filedrop/internal/logging"
	"github.com/filedrop/filedrop/internal/server/accounts"
	"github.com/filedrop/filedrop/internal/server/blob"
	"github.com/filedrop/filedrop/internal/server/policy"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fd_uploads_total",
		Help: "Uploaded files by outcome",
	}, []string{"outcome"})

	uploadedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fd_uploaded_bytes_total",
		Help: "Total bytes accepted into the content store",
	})
)

// UploadFile is one member of an upload batch. Size is the declared size
// (from the multipart header); the actual stored size is re-checked after
// the bytes are written.
type UploadFile struct {
	Name string
	Size int64
	Data io.Reader
}

// FileError reports why one batch member was rejected.
type FileError struct {
	Name   string
	Reason string
}

// BatchResult summarizes an upload batch. Members fail independently; the
// batch as a whole only fails when nothing was uploaded.
type BatchResult struct {
	Uploaded   int
	TotalBytes int64
	Failed     []FileError
	Records    []*FileRecord
}

// Service couples the file registry with the content store for the upload
// and delete paths and enforces the blob/record invariants.
type Service struct {
	repo   Repository
	store  blob.Store
	policy *policy.Policy
	logger logging.Logger
}

func NewService(repo Repository, store blob.Store, pol *policy.Policy, logger logging.Logger) *Service {
	return &Service{
		repo:   repo,
		store:  store,
		policy: pol,
		logger: logger.With("component", "files"),
	}
}

// Upload runs a batch for an authenticated account. With replaceExisting the
// account's current files are removed first. Per-file failures are collected
// in the result; an error is returned only when the batch is rejected
// outright or no file succeeded.
func (s *Service) Upload(ctx context.Context, account *accounts.Account, batch []UploadFile, replaceExisting bool) (*BatchResult, error) {
	if err := s.policy.CheckBatch(len(batch)); err != nil {
		return nil, err
	}

	if replaceExisting {
		if err := s.Replace(ctx, account.ID); err != nil {
			return nil, err
		}
	}

	res := &BatchResult{}
	for _, f := range batch {
		rec, err := s.uploadOne(ctx, account, f)
		if err != nil {
			uploadsTotal.WithLabelValues("rejected").Inc()
			s.logger.Warn(ctx, "file rejected", "file", f.Name, "reason", err.Error())
			res.Failed = append(res.Failed, FileError{Name: f.Name, Reason: err.Error()})
			continue
		}
		uploadsTotal.WithLabelValues("accepted").Inc()
		uploadedBytesTotal.Add(float64(rec.Size))
		res.Uploaded++
		res.TotalBytes += rec.Size
		res.Records = append(res.Records, rec)
	}

	if res.Uploaded == 0 {
		return res, fmt.Errorf("%w: no file could be uploaded", common.ErrValidation)
	}
	return res, nil
}

// uploadOne writes the blob first, then the record. A failed record insert
// triggers a compensating blob delete so nothing durable goes unrecorded.
func (s *Service) uploadOne(ctx context.Context, account *accounts.Account, f UploadFile) (*FileRecord, error) {
	if f.Size >= 0 {
		if err := s.policy.CheckFileSize(f.Name, f.Size); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	storedName := NewStoredName(account.Username, f.Name, now)

	size, err := s.store.Save(ctx, storedName, f.Data)
	if err != nil {
		return nil, err
	}

	// The declared size is advisory; the written size is authoritative.
	if err := s.policy.CheckFileSize(f.Name, size); err != nil {
		s.deleteBlob(ctx, storedName)
		return nil, err
	}

	rec := &FileRecord{
		AccountID:    account.ID,
		StoredName:   storedName,
		OriginalName: f.Name,
		Size:         size,
		UploadedAt:   now,
	}
	rec, err = s.repo.Insert(ctx, rec)
	if err != nil {
		s.deleteBlob(ctx, storedName)
		return nil, fmt.Errorf("record insert: %w", err)
	}

	return rec, nil
}

func (s *Service) deleteBlob(ctx context.Context, storedName string) {
	if err := s.store.Delete(ctx, storedName); err != nil {
		s.logger.Error(ctx, "compensating blob delete failed, sweeper will reclaim it",
			"stored_name", storedName, "error", err.Error())
	}
}

// Replace removes every record and blob the account currently owns. Records
// are deleted first, in one transaction, so a crash can only leave
// unreferenced blobs behind, never records pointing at missing bytes.
func (s *Service) Replace(ctx context.Context, accountID string) error {
	names, err := s.repo.DeleteByAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("delete records: %w", err)
	}

	for _, name := range names {
		s.deleteBlob(ctx, name)
	}
	return nil
}

// List returns the account's records, newest upload first. Records whose
// blob has gone missing are logged for the operator and filtered out rather
// than surfaced as downloadable.
func (s *Service) List(ctx context.Context, accountID string) ([]*FileRecord, error) {
	recs, err := s.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	live := recs[:0]
	for _, rec := range recs {
		ok, err := s.store.Exists(ctx, rec.StoredName)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.logger.Error(ctx, "orphaned file record",
				"file_id", rec.ID, "stored_name", rec.StoredName, "error", common.ErrConsistency.Error())
			continue
		}
		live = append(live, rec)
	}
	return live, nil
}

func (s *Service) Stats(ctx context.Context, accountID string) (*AccountStats, error) {
	return s.repo.Stats(ctx, accountID)
}

// Open returns the record and content of one owned file and bumps its
// download counter. A record pointing at missing bytes is reported to the
// caller as not found; the inconsistency is logged.
func (s *Service) Open(ctx context.Context, accountID, fileID string) (*FileRecord, io.ReadCloser, error) {
	rec, err := s.repo.GetByID(ctx, accountID, fileID)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.store.Open(ctx, rec.StoredName)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.logger.Error(ctx, "orphaned file record",
				"file_id", rec.ID, "stored_name", rec.StoredName, "error", common.ErrConsistency.Error())
			return nil, nil, fmt.Errorf("%w: file %s", common.ErrNotFound, fileID)
		}
		return nil, nil, err
	}

	s.BumpDownloadCount(ctx, rec.ID)
	return rec, rc, nil
}

// OpenStored opens a blob by stored name without touching the counter; the
// archive assembler bumps per member itself.
func (s *Service) OpenStored(ctx context.Context, storedName string) (io.ReadCloser, error) {
	return s.store.Open(ctx, storedName)
}

// BumpDownloadCount is fire-and-forget: the counter is telemetry, lost
// increments under failure are tolerated.
func (s *Service) BumpDownloadCount(ctx context.Context, fileID string) {
	if err := s.repo.IncrementDownloadCount(ctx, fileID); err != nil {
		s.logger.Warn(ctx, "download counter bump failed", "file_id", fileID, "error", err.Error())
	}
}
