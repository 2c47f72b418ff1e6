package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/lens/internal/config"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "pdf_index.json")
	if err := os.WriteFile(index, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	keyword := filepath.Join(dir, "keyword")
	if err := os.MkdirAll(filepath.Join(keyword, "store"), 0755); err != nil {
		t.Fatal(err)
	}
	for name, data := range map[string]string{"index_meta.json": "ab", "store/root.bolt": "c"} {
		if err := os.WriteFile(filepath.Join(keyword, name), []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"file", []string{index}, 5},
		{"directory walked recursively", []string{keyword}, 3},
		{"file and directory", []string{index, keyword}, 8},
		{"missing path skipped", []string{index, filepath.Join(dir, "history.db"), keyword}, 8},
		{"empty path skipped", []string{"", index}, 5},
		{"nothing", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("DiskUsageBytes = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMeasureUsage(t *testing.T) {
	dir := t.TempDir()
	write := func(name, data string) string {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	cfg := config.StorageConfig{
		IndexPath:        write("pdf_index.json", "{}"),
		HistoryPath:      write("history.db", "1234"),
		KeywordIndexPath: filepath.Join(dir, "keyword"),
	}
	write("history.db-wal", "56")
	write("keyword/store/seg", "abc")

	u, err := MeasureUsage(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if u.IndexBytes != 2 || u.HistoryBytes != 6 || u.KeywordBytes != 3 || u.TotalBytes != 11 {
		t.Errorf("usage = %+v", u)
	}
}
