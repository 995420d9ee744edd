package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/filedrop/filedrop/internal/common"
	"github.com/filedrop/filedrop/internal/logging"
	"github.com/filedrop/filedrop/internal/server/files"
)

var archivesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "fd_archives_total",
	Help: "Total zip archives assembled",
})

// Assembler streams an account's files as a single zip archive.
type Assembler struct {
	files  *files.Service
	logger logging.Logger
}

func NewAssembler(fs *files.Service, logger logging.Logger) *Assembler {
	return &Assembler{
		files:  fs,
		logger: logger.With("component", "archive"),
	}
}

// Write assembles the zip for one account straight into w and returns the
// number of members written. Entry names are the original upload names; when
// several files share a name the most recent upload is the one archived.
// An account with nothing to archive gets ErrNotFound before any byte is
// written, never an empty but valid container.
func (a *Assembler) Write(ctx context.Context, accountID string, w io.Writer) (int, error) {
	recs, err := a.files.List(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, fmt.Errorf("%w: no files to archive", common.ErrNotFound)
	}

	// List is newest first, so the first record seen per name wins.
	seen := make(map[string]struct{}, len(recs))
	members := recs[:0]
	for _, rec := range recs {
		if _, ok := seen[rec.OriginalName]; ok {
			continue
		}
		seen[rec.OriginalName] = struct{}{}
		members = append(members, rec)
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	written := 0
	for _, rec := range members {
		if err := a.writeMember(ctx, zw, rec); err != nil {
			zw.Close()
			return written, err
		}
		written++
	}

	if err := zw.Close(); err != nil {
		return written, fmt.Errorf("%w: finalize archive: %w", common.ErrStorage, err)
	}

	archivesTotal.Inc()
	a.logger.Info(ctx, "archive assembled", "account_id", accountID, "members", written)
	return written, nil
}

func (a *Assembler) writeMember(ctx context.Context, zw *zip.Writer, rec *files.FileRecord) error {
	rc, err := a.files.OpenStored(ctx, rec.StoredName)
	if err != nil {
		return fmt.Errorf("open member %s: %w", rec.OriginalName, err)
	}
	defer rc.Close()

	hdr := &zip.FileHeader{
		Name:     rec.OriginalName,
		Method:   zip.Deflate,
		Modified: rec.UploadedAt,
	}
	entry, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("%w: create entry %s: %w", common.ErrStorage, rec.OriginalName, err)
	}

	if _, err := io.Copy(entry, rc); err != nil {
		return fmt.Errorf("%w: write entry %s: %w", common.ErrStorage, rec.OriginalName, err)
	}

	a.files.BumpDownloadCount(ctx, rec.ID)
	return nil
}
