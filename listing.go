package ftpclient

import "time"

// DirEntry is a single parsed line of a directory listing.
type DirEntry struct {
	Name        string
	Size        int64
	ModTime     time.Time
	Permissions string
	Owner       string
	Group       string
	IsDir       bool
	IsLink      bool
	LinkTarget  string
}

// UnsureFlags records why a DirectoryListing might be stale: bits are set
// when a mutation (delete, rename, mkdir...) has been observed against the
// cached path since it was last fetched from the server.
type UnsureFlags uint32

// Flags tracked on a cached DirectoryListing.
const (
	UnsureNone UnsureFlags = 0
	UnsureDelete UnsureFlags = 1 << iota
	UnsureRename
	UnsureMkdir
	UnsureChmod
)

// DirectoryListing is the parsed result of a LIST/MLSD transfer: an ordered
// set of entries plus the bookkeeping the engine needs to decide whether a
// cached copy is still usable.
type DirectoryListing struct {
	Path          ServerPath
	Entries       []DirEntry
	FirstListTime time.Time
	Unsure        UnsureFlags
}

// ByName looks up an entry by name, returning ok=false if absent.
func (d DirectoryListing) ByName(name string) (DirEntry, bool) {
	for _, e := range d.Entries {
		if e.Name == name {
			return e, true
		}
	}

	return DirEntry{}, false
}
