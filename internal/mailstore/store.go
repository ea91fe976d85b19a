// Package mailstore maps a user's folders and message files onto the entries
// the IMAP engine addresses by sequence number and UID.
package mailstore

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrFolderNotFound is returned when a user or folder does not exist in the store
var ErrFolderNotFound = errors.New("folder not found")

// Store is implemented by the message backends (local filesystem, S3)
type Store interface {
	// Folders lists the folder names of a user
	Folders(ctx context.Context, user string) ([]string, error)
	// Snapshot enumerates a folder once. The result is not cached.
	Snapshot(ctx context.Context, user, folder string) (Snapshot, error)
	// Load reads the contents and creation time of one entry
	Load(ctx context.Context, entry Entry) (*Message, error)
}

// Entry is one message file as seen by a single enumeration of its folder
type Entry struct {
	Name   string
	Folder string
	Key    string // path or object key, backend specific
	UID    uint64
	Seed   time.Time // timestamp encoded in Name
	Seq    int       // 1-based position, only meaningful within its Snapshot
}

// Message is an entry together with its raw contents
type Message struct {
	UID       uint64
	Seq       int
	Raw       []byte
	CreatedAt time.Time
}

// Size returns the raw message length in bytes
func (m *Message) Size() int {
	return len(m.Raw)
}

// Snapshot is the ordered list of entries of a folder at one instant
type Snapshot []Entry

// NewSnapshot orders entries by UID, then by name, and numbers them from 1.
// Directory listing order differs between platforms and backends; this makes
// sequence numbers reproducible for the same folder contents.
func NewSnapshot(entries []Entry) Snapshot {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].UID != entries[j].UID {
			return entries[i].UID < entries[j].UID
		}
		return entries[i].Name < entries[j].Name
	})
	for i := range entries {
		entries[i].Seq = i + 1
	}
	return Snapshot(entries)
}

// NewEntry builds an entry from a filename, rejecting names without a timestamp
func NewEntry(folder, name, key string) (Entry, error) {
	uid, err := UIDFromFilename(name)
	if err != nil {
		return Entry{}, err
	}
	seed, err := SeedFromFilename(name)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Name:   name,
		Folder: folder,
		Key:    key,
		UID:    uid,
		Seed:   seed,
	}, nil
}

// Len returns the number of messages in the snapshot
func (s Snapshot) Len() int {
	return len(s)
}

// At returns the entry with the given sequence number
func (s Snapshot) At(seq int) (Entry, bool) {
	if seq < 1 || seq > len(s) {
		return Entry{}, false
	}
	return s[seq-1], true
}

// ByUID returns the entry carrying uid
func (s Snapshot) ByUID(uid uint64) (Entry, bool) {
	idx := sort.Search(len(s), func(i int) bool { return s[i].UID >= uid })
	if idx < len(s) && s[idx].UID == uid {
		return s[idx], true
	}
	return Entry{}, false
}

// MaxUID returns the highest UID in the snapshot, 0 when empty
func (s Snapshot) MaxUID() uint64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].UID
}

// Since returns the entries whose encoded timestamp is strictly after t, in order
func (s Snapshot) Since(t time.Time) []Entry {
	var out []Entry
	for _, e := range s {
		if e.Seed.After(t) {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of messages in a folder
func Count(ctx context.Context, store Store, user, folder string) (int, error) {
	snap, err := store.Snapshot(ctx, user, folder)
	if err != nil {
		return 0, err
	}
	return snap.Len(), nil
}
