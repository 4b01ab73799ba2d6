package store

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/wildfire-water-etl/internal/domain"
)

// LedgerFile is the ledger's file name inside the output directory.
const LedgerFile = "ledger.json"

// ErrCorruptLedger is returned when the stored checksum does not match the
// entries.
var ErrCorruptLedger = errors.New("ledger checksum mismatch")

// ErrLedgerBusy is returned when another writer holds the ledger lock for
// longer than lockWait.
var ErrLedgerBusy = errors.New("ledger locked by another writer")

const ledgerLockSuffix = ".writing"

// Ledger lock timing. A lock older than lockStale was left by a killed writer
// and is broken.
var (
	lockWait  = 10 * time.Second
	lockStale = time.Minute
	lockPoll  = 2 * time.Millisecond
)

// Entry is the recorded state of one feature.
type Entry struct {
	State     domain.State `json:"state"`
	Reason    string       `json:"reason,omitempty"`
	Records   int          `json:"records"`
	RunID     string       `json:"run_id"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type ledgerDoc struct {
	Entries   map[string]Entry `json:"entries"`
	UpdatedAt time.Time        `json:"updated_at"`
	Checksum  string           `json:"checksum"`
}

// Ledger is the persisted per-feature job state. Every Put rewrites the whole
// document through a temp file and rename while holding <ledger>.writing, so
// several processes can share one ledger.
type Ledger struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
}

// OpenLedger loads the ledger at path, or starts an empty one when the file
// does not exist.
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path, entries: make(map[string]Entry)}
	entries, err := l.load()
	if err != nil {
		return nil, err
	}
	l.entries = entries
	return l, nil
}

// Path returns the ledger file location.
func (l *Ledger) Path() string { return l.path }

// Get returns the entry of a feature.
func (l *Ledger) Get(featureID string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[featureID]
	return e, ok
}

// Put records the entry of a feature and persists the ledger. Entries written
// by other processes since the last load are merged before writing.
func (l *Ledger) Put(featureID string, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	unlock, err := l.lock()
	if err != nil {
		return err
	}
	defer unlock()

	onDisk, err := l.load()
	if err != nil {
		return err
	}
	for id, other := range onDisk {
		if mine, ok := l.entries[id]; !ok || other.UpdatedAt.After(mine.UpdatedAt) {
			l.entries[id] = other
		}
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = domain.Clock().Now().UTC()
	}
	l.entries[featureID] = e
	return l.save()
}

// Entries returns a copy of all entries.
func (l *Ledger) Entries() map[string]Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Entry, len(l.entries))
	for id, e := range l.entries {
		out[id] = e
	}
	return out
}

// Counts returns the number of features per state.
func (l *Ledger) Counts() map[domain.State]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := make(map[domain.State]int)
	for _, e := range l.entries {
		counts[e.State]++
	}
	return counts
}

// IDs returns the recorded feature IDs in sorted order.
func (l *Ledger) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.entries))
	for id := range l.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l *Ledger) load() (map[string]Entry, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]Entry), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var doc ledgerDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", l.path, err)
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]Entry)
	}
	sum, err := checksum(doc.Entries)
	if err != nil {
		return nil, err
	}
	if sum != doc.Checksum {
		return nil, fmt.Errorf("%s: %w", l.path, ErrCorruptLedger)
	}
	return doc.Entries, nil
}

func (l *Ledger) save() error {
	sum, err := checksum(l.entries)
	if err != nil {
		return err
	}
	doc := ledgerDoc{
		Entries:   l.entries,
		UpdatedAt: domain.Clock().Now().UTC(),
		Checksum:  sum,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), "."+filepath.Base(l.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

// lock takes the cross-process write lock by creating the lock file with
// O_EXCL, polling until lockWait elapses. Lock ages are wall-clock because
// they are compared with file modification times.
func (l *Ledger) lock() (unlock func(), err error) {
	path := l.path + ledgerLockSuffix
	deadline := time.Now().Add(lockWait)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("lock ledger: %w", err)
		}
		if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) > lockStale {
			os.Remove(path)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%s: %w", path, ErrLedgerBusy)
		}
		time.Sleep(lockPoll)
	}
}

func checksum(entries map[string]Entry) (string, error) {
	// encoding/json sorts map keys, so the digest is stable.
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("checksum ledger: %w", err)
	}
	h := md5.Sum(data)
	return hex.EncodeToString(h[:]), nil
}
