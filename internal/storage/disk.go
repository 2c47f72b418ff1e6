package storage

import (
	"os"
	"path/filepath"

	"github.com/hyperjump/lens/internal/config"
)

// Usage reports the on-disk size of each data file.
type Usage struct {
	IndexBytes   int64 `json:"index_bytes"`
	HistoryBytes int64 `json:"history_bytes"`
	KeywordBytes int64 `json:"keyword_bytes"`
	TotalBytes   int64 `json:"total_bytes"`
}

// MeasureUsage sizes the index file, the history database with its WAL files and the keyword
// index directory.
func MeasureUsage(cfg config.StorageConfig) (Usage, error) {
	var (
		u   Usage
		err error
	)
	if u.IndexBytes, err = DiskUsageBytes(cfg.IndexPath); err != nil {
		return u, err
	}
	if cfg.HistoryPath != "" {
		if u.HistoryBytes, err = DiskUsageBytes(cfg.HistoryPath, cfg.HistoryPath+"-wal", cfg.HistoryPath+"-shm"); err != nil {
			return u, err
		}
	}
	if u.KeywordBytes, err = DiskUsageBytes(cfg.KeywordIndexPath); err != nil {
		return u, err
	}
	u.TotalBytes = u.IndexBytes + u.HistoryBytes + u.KeywordBytes
	return u, nil
}

// DiskUsageBytes returns the total size in bytes of the given paths.
// Each path may be a file or a directory, summed recursively. Empty and missing paths count 0.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		err = filepath.WalkDir(p, func(_ string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
