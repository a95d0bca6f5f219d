package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"storeWs/internal/modules/realtime/domain"
)

type feedFile struct {
	Records []domain.Record `json:"records"`
}

// FilePersister stores the feed as one JSON document. Writers take an exclusive flock
// on a sibling lock file and replace the document atomically, so several receivers
// can share a path; the last writer wins.
type FilePersister struct {
	path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

func (p *FilePersister) lockPath() string {
	return p.path + ".lock"
}

func (p *FilePersister) withFileLock(lockType int, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(p.lockPath(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if err := syscall.Flock(int(f.Fd()), lockType); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN) //nolint:errcheck

	return fn()
}

// Load returns an empty feed when the file does not exist yet.
func (p *FilePersister) Load(ctx context.Context) ([]domain.Record, error) {
	var records []domain.Record
	err := p.withFileLock(syscall.LOCK_SH, func() error {
		data, err := os.ReadFile(p.path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if len(data) == 0 {
			return nil
		}
		var file feedFile
		if err := json.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("parse %s: %w", p.path, err)
		}
		records = file.Records
		return nil
	})
	return records, err
}

func (p *FilePersister) Save(ctx context.Context, records []domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.withFileLock(syscall.LOCK_EX, func() error {
		if records == nil {
			records = []domain.Record{}
		}
		data, err := json.MarshalIndent(feedFile{Records: records}, "", "  ")
		if err != nil {
			return err
		}
		tmp := p.path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return err
		}
		if err := os.Rename(tmp, p.path); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("rename temp file: %w", err)
		}
		return nil
	})
}
