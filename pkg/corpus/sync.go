package corpus

import (
	"github.com/orneryd/graphdb/pkg/diskmap"
	"github.com/orneryd/graphdb/pkg/errs"
	"github.com/orneryd/graphdb/pkg/graph"
	"github.com/orneryd/graphdb/pkg/update"
)

func openDiskMap(corpusDir string) (*diskmap.Map, error) {
	return diskmap.Open(corpusDir, diskmap.DefaultEviction())
}

// ApplyUpdate resolves name to its cached Graph (loading it if
// necessary), applies batch in-memory plus update_log.bin, then kicks
// off a background full-sync, returning once the WAL append is durable
// rather than waiting for the background merge — the teacher's
// pkg/storage/wal.go split between "fsync the log" and "compact later"
// generalized to "WAL append now, backup-rename merge later".
func (s *Store) ApplyUpdate(name string, batch update.Batch) error {
	s.mu.Lock()
	g, err := s.getOrLoadLocked(name)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	loc := s.locationFor(name)
	if err := g.ApplyUpdatePersisted(batch, &loc, nil); err != nil {
		return errs.Wrap(errs.IO, err, "apply update to corpus %q", name)
	}

	s.spawnBackgroundSync(name, g)
	return nil
}

// spawnBackgroundSync increments the outstanding-sync counter, runs
// Graph.Sync in a goroutine, and decrements+broadcasts on completion so
// Close can wait for every in-flight sync to finish before releasing
// db.lock.
func (s *Store) spawnBackgroundSync(name string, g *graph.Graph) {
	s.syncMu.Lock()
	s.syncCounter++
	s.syncMu.Unlock()

	loc := s.locationFor(name)
	go func() {
		defer func() {
			s.syncMu.Lock()
			s.syncCounter--
			if s.syncCounter == 0 {
				s.syncDone.Broadcast()
			}
			s.syncMu.Unlock()
		}()
		if err := g.RecalculateStatistics(); err != nil {
			s.log.Printf("statistics recalculation failed for %q: %v", name, err)
		}
		if err := g.Sync(loc); err != nil {
			s.log.Printf("background sync failed for %q: %v", name, err)
		}
	}()
}
