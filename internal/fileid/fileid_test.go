package fileid

import (
	"path/filepath"
	"testing"
)

func TestFileDocID(t *testing.T) {
	id1 := FileDocID("/foo/bar.pdf")
	id2 := FileDocID("/foo/bar.pdf")
	if id1 != id2 {
		t.Errorf("same path should give same ID: %q vs %q", id1, id2)
	}
	if len(id1) < 10 {
		t.Errorf("ID too short: %q", id1)
	}
	if id1[:len(prefix)] != prefix {
		t.Errorf("ID should have prefix %q: got %q", prefix, id1)
	}
}

func TestFileDocID_differentPaths(t *testing.T) {
	if FileDocID("/foo/bar.pdf") == FileDocID("/foo/baz.pdf") {
		t.Error("different paths should give different IDs")
	}
}

func TestFileDocID_normalized(t *testing.T) {
	id1 := FileDocID("/foo/bar")
	id2 := FileDocID("/foo/bar/")
	id3 := FileDocID("/foo/./bar")
	id4 := FileDocID("/FOO/Bar")
	if id1 != id2 || id1 != id3 {
		t.Errorf("cleaned paths should match: %q %q %q", id1, id2, id3)
	}
	if id1 != id4 {
		t.Errorf("paths differing in case should match: %q vs %q", id1, id4)
	}
}

func TestFileDocID_absoluteFromFilepath(t *testing.T) {
	abs, _ := filepath.Abs(".")
	id := FileDocID(abs)
	if id == "" || id[:len(prefix)] != prefix {
		t.Errorf("absolute path: got %q", id)
	}
}

func TestPageID_roundTrip(t *testing.T) {
	id := PageID("/docs/a.pdf", 12)
	doc, page, ok := ParsePageID(id)
	if !ok {
		t.Fatalf("ParsePageID(%q) failed", id)
	}
	if doc != FileDocID("/docs/a.pdf") || page != 12 {
		t.Errorf("got (%q, %d)", doc, page)
	}
	if _, _, ok := ParsePageID("file:abc"); ok {
		t.Error("ID without page should not parse")
	}
}
