// Package policy holds the pure pre-mutation checks applied to upload
// batches: credential shape, batch size and per-file byte limits. The policy
// never touches state; it only classifies input.
package policy

import (
	"fmt"

	"github.com/filedrop/filedrop/internal/common"
)

type Policy struct {
	MinUsernameLen int
	MinPasswordLen int
	MaxBatchFiles  int
	MaxFileSize    int64
}

// CheckCredentials rejects empty or too-short usernames and passwords before
// the account ledger is consulted.
func (p *Policy) CheckCredentials(username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("%w: username and password are required", common.ErrValidation)
	}
	if len(username) < p.MinUsernameLen {
		return fmt.Errorf("%w: username must be at least %d characters", common.ErrValidation, p.MinUsernameLen)
	}
	if len(password) < p.MinPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, p.MinPasswordLen)
	}
	return nil
}

// CheckBatch rejects empty batches and batches above the per-upload file
// count limit. Both reject the whole batch.
func (p *Policy) CheckBatch(n int) error {
	if n == 0 {
		return fmt.Errorf("%w: no files supplied", common.ErrValidation)
	}
	if n > p.MaxBatchFiles {
		return fmt.Errorf("%w: at most %d files per upload", common.ErrCapacity, p.MaxBatchFiles)
	}
	return nil
}

// CheckFileSize rejects a single oversized file. The caller skips the file
// and continues with the rest of the batch.
func (p *Policy) CheckFileSize(name string, size int64) error {
	if size > p.MaxFileSize {
		return fmt.Errorf("%w: file %q exceeds the %d byte limit", common.ErrCapacity, name, p.MaxFileSize)
	}
	return nil
}
