// Package corpus implements the multi-corpus cache, on-disk corpus
// layout and public query-facing operations of C5: the collaborator
// surface every AQL executor, importer or admin CLI talks to.
package corpus

import (
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/gofrs/flock"

	"github.com/orneryd/graphdb/pkg/config"
	"github.com/orneryd/graphdb/pkg/errs"
	"github.com/orneryd/graphdb/pkg/graph"
	"github.com/orneryd/graphdb/pkg/query"
)

// Store is the process-wide corpus cache and the sole owner of
// <db_dir>/db.lock. One Store per process per db_dir.
type Store struct {
	mu        sync.RWMutex
	cfg       *config.Config
	dbDir     string
	cache     *lru
	planCache *ristretto.Cache[string, *query.Plan]
	lock      *flock.Flock
	log       *log.Logger

	syncMu      sync.Mutex
	syncCounter int
	syncDone    *sync.Cond
}

// CorpusInfo is the info() operation's result: name plus the overlay
// config and whether it is currently resident in the cache.
type CorpusInfo struct {
	Name   string
	Loaded bool
	Config CorpusConfig
}

// Open acquires the exclusive process-level lock on db.lock and
// returns a ready Store. Fails if another process holds the lock.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Store.DBDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.IO, err, "create db_dir %q", cfg.Store.DBDir)
	}

	lockPath := filepath.Join(cfg.Store.DBDir, "db.lock")
	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errs.Wrap(errs.LockCorpusDirectory, err, "lock %q", lockPath)
	}
	if !ok {
		return nil, errs.New(errs.LockCorpusDirectory, "db.lock held by another process: %s", lockPath)
	}

	planCache, err := newPlanCache()
	if err != nil {
		fl.Unlock()
		return nil, errs.Wrap(errs.IO, err, "create plan cache")
	}

	s := &Store{
		cfg:       cfg,
		dbDir:     cfg.Store.DBDir,
		cache:     newLRU(),
		planCache: planCache,
		lock:      fl,
		log:       log.New(os.Stderr, "[corpus] ", log.LstdFlags),
	}
	s.syncDone = sync.NewCond(&s.syncMu)
	return s, nil
}

// Close waits for any in-flight background sync to finish, then
// releases db.lock.
func (s *Store) Close() error {
	s.syncMu.Lock()
	for s.syncCounter > 0 {
		s.syncDone.Wait()
	}
	s.syncMu.Unlock()

	s.planCache.Close()
	if err := s.lock.Unlock(); err != nil {
		return errs.Wrap(errs.LockCorpusDirectory, err, "unlock db.lock")
	}
	return nil
}

// encodeCorpusName percent-encodes a corpus name for use as a
// filesystem path component (spec's corpus-name percent-encoding);
// net/url.PathEscape is stdlib because no dependency in the pack
// offers path-segment escaping — see DESIGN.md.
func encodeCorpusName(name string) string { return url.PathEscape(name) }

func (s *Store) corpusDir(name string) string {
	return filepath.Join(s.dbDir, encodeCorpusName(name))
}

func (s *Store) locationFor(name string) graph.SaveLocation {
	return graph.SaveLocation{Dir: s.corpusDir(name)}
}

// List returns every corpus name present under db_dir, loaded or not.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dbDir)
	if err != nil {
		return nil, errs.Wrap(errs.ListingDirectories, err, "list %q", s.dbDir)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name, err := url.PathUnescape(e.Name())
		if err != nil {
			name = e.Name()
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Info reports whether name is currently loaded plus its overlay config.
func (s *Store) Info(name string) (*CorpusInfo, error) {
	if !s.exists(name) {
		return nil, errs.New(errs.NoSuchCorpus, "no such corpus: %q", name)
	}
	cfg, err := loadCorpusConfig(s.corpusDir(name))
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	entry, ok := s.cache.get(name)
	loadedFlag := ok && entry.state == loaded
	s.mu.RUnlock()
	return &CorpusInfo{Name: name, Loaded: loadedFlag, Config: cfg}, nil
}

func (s *Store) exists(name string) bool {
	_, err := os.Stat(s.corpusDir(name))
	return err == nil
}

// Preload loads a corpus into the cache (a no-op if already loaded)
// and runs the eviction pass.
func (s *Store) Preload(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.getOrLoadLocked(name)
	return err
}

// Unload evicts a corpus from the cache, syncing it first if dirty.
func (s *Store) Unload(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cache.get(name)
	if !ok || e.state != loaded {
		return nil
	}
	return s.unloadEntry(e)
}

// Delete removes a corpus from both the cache and disk.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.remove(name)
	if err := os.RemoveAll(s.corpusDir(name)); err != nil {
		return errs.Wrap(errs.RemoveFileForCorpus, err, "delete corpus %q", name)
	}
	return nil
}

// getOrLoadLocked returns the live Graph for name, loading it from disk
// (or constructing a fresh empty one on first import) if not already
// cached. Caller must hold s.mu.
func (s *Store) getOrLoadLocked(name string) (*graph.Graph, error) {
	if e, ok := s.cache.get(name); ok && e.state == loaded {
		e.pinned = true
		defer func() { e.pinned = false }()
		return e.graph, nil
	}

	if !s.exists(name) {
		return nil, errs.New(errs.NoSuchCorpus, "no such corpus: %q", name)
	}

	cfg, err := loadCorpusConfig(s.corpusDir(name))
	if err != nil {
		return nil, err
	}

	loc := s.locationFor(name)
	var g *graph.Graph
	if cfg.DiskBased {
		dm, err := openDiskMap(s.corpusDir(name))
		if err != nil {
			return nil, errs.Wrap(errs.LoadingGraphFailed, err, "open disk map for %q", name)
		}
		g = graph.NewDiskBackedGraph(dm)
		if restored, err := graph.LoadLocation(loc); err == nil {
			g = restored
		}
	} else {
		restored, err := graph.LoadLocation(loc)
		if err != nil {
			return nil, errs.Wrap(errs.LoadingGraphFailed, err, "load corpus %q", name)
		}
		g = restored
	}

	entry := &cacheEntry{name: name, state: loaded, graph: g, pinned: true}
	s.cache.put(entry)
	if err := s.evictUntilUnderBudget(); err != nil {
		s.log.Printf("eviction pass failed for %q: %v", name, err)
	}
	entry.pinned = false
	return g, nil
}
