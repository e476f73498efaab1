package ftpclient

import (
	"testing"
	"time"
)

func TestDirectoryCacheStoreLookup(t *testing.T) {
	c := NewDirectoryCache()
	key := testServerKey()
	path := NewServerPath("/pub", PathStyleUnix)

	if _, ok := c.Lookup(key, path); ok {
		t.Fatalf("expected no cached listing before Store")
	}

	listing := DirectoryListing{
		Path:          path,
		Entries:       []DirEntry{{Name: "a.txt", Size: 10}},
		FirstListTime: time.Now(),
	}
	c.Store(key, listing)

	got, ok := c.Lookup(key, path)
	if !ok {
		t.Fatalf("expected cached listing after Store")
	}

	if len(got.Entries) != 1 || got.Entries[0].Name != "a.txt" {
		t.Fatalf("got %+v", got)
	}
}

func TestDirectoryCacheUpdateSetsUnsureFlags(t *testing.T) {
	c := NewDirectoryCache()
	key := testServerKey()
	path := NewServerPath("/pub", PathStyleUnix)

	c.Store(key, DirectoryListing{Path: path, FirstListTime: time.Now()})
	c.Update(key, path, UnsureDelete)

	got, ok := c.Lookup(key, path)
	if !ok {
		t.Fatalf("expected listing to still be present after Update")
	}

	if got.Unsure&UnsureDelete == 0 {
		t.Fatalf("expected UnsureDelete to be set, got %v", got.Unsure)
	}
}

func TestDirectoryCacheUpdateWithoutPriorStoreCreatesEntry(t *testing.T) {
	c := NewDirectoryCache()
	key := testServerKey()
	path := NewServerPath("/new", PathStyleUnix)

	c.Update(key, path, UnsureMkdir)

	got, ok := c.Lookup(key, path)
	if !ok {
		t.Fatalf("expected an entry to be created by Update")
	}

	if got.Unsure&UnsureMkdir == 0 {
		t.Fatalf("expected UnsureMkdir set, got %v", got.Unsure)
	}
}

func TestDirectoryCacheFreshRespectsUnsureAndAge(t *testing.T) {
	c := NewDirectoryCache()
	key := testServerKey()
	path := NewServerPath("/pub", PathStyleUnix)

	c.Store(key, DirectoryListing{Path: path, FirstListTime: time.Now()})

	if _, ok := c.Fresh(key, path, time.Minute); !ok {
		t.Fatalf("expected a freshly stored listing to be fresh")
	}

	c.Update(key, path, UnsureDelete)

	if _, ok := c.Fresh(key, path, time.Minute); ok {
		t.Fatalf("a listing with unsure flags must not be reported fresh")
	}

	stale := NewServerPath("/stale", PathStyleUnix)
	c.Store(key, DirectoryListing{Path: stale, FirstListTime: time.Now().Add(-time.Hour)})

	if _, ok := c.Fresh(key, stale, time.Minute); ok {
		t.Fatalf("a listing older than maxAge must not be reported fresh")
	}
}

func TestDirectoryCacheInvalidate(t *testing.T) {
	c := NewDirectoryCache()
	key := testServerKey()
	path := NewServerPath("/pub", PathStyleUnix)

	c.Store(key, DirectoryListing{Path: path, FirstListTime: time.Now()})
	c.Invalidate(key, path)

	if _, ok := c.Lookup(key, path); ok {
		t.Fatalf("expected listing to be gone after Invalidate")
	}
}

func TestDirectoryCacheLockSerializesAndReleases(t *testing.T) {
	c := NewDirectoryCache()
	key := testServerKey()
	path := NewServerPath("/pub", PathStyleUnix)

	release := c.Lock(key, path)

	acquired := make(chan struct{})

	go func() {
		release2 := c.Lock(key, path)
		close(acquired)
		release2()
	}()

	select {
	case <-acquired:
		t.Fatalf("second Lock must not succeed while the first is held")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second Lock should acquire once the first is released")
	}
}
