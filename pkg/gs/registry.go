package gs

import (
	"golang.org/x/sync/errgroup"

	"github.com/orneryd/graphdb/pkg/diskmap"
	"github.com/orneryd/graphdb/pkg/model"
)

// denseNodeThreshold bounds the node count below which a full n x n
// bitset is cheaper to hold than per-node adjacency slices, grounded on
// pkg/search/hnsw_index.go's layered-storage selection idea: pick a
// concrete representation by observed shape rather than a single
// general-purpose one.
const denseNodeThreshold = 256

// SelectImplementation picks the read-optimized GraphStorage best
// suited to stat, the statistics gathered by computeStatsFromAdjacency
// over a writable AdjacencyList, per spec §4.2's variant list. The
// caller Copy()s the writable source into the returned (empty) variant.
//
// When diskBacked is true and memory pressure is the deciding factor,
// a DiskAdjacencyList over m is returned regardless of topology, since
// it is valid for "any case" per spec.
func SelectImplementation(stat model.GraphStatistic, diskBacked bool, m *diskmap.Map) GraphStorage {
	if diskBacked && m != nil {
		return NewDiskAdjacencyList(m)
	}
	if stat.AvgFanOut <= 1.0 && stat.MaxFanOut <= 1 {
		return NewLinearChain()
	}
	if !stat.Cyclic && stat.RootedTree {
		return NewPrePostOrderStorage()
	}
	if stat.Nodes > 0 && stat.Nodes <= denseNodeThreshold {
		return NewDenseAdjacency()
	}
	return NewAdjacencyList()
}

// Rebuild computes statistics over src (if not already cached) and
// returns a new GraphStorage of the best-fit variant, already populated
// via Copy. src itself is left untouched.
func Rebuild(src GraphStorage, diskBacked bool, m *diskmap.Map) (GraphStorage, error) {
	stat, ok := src.GetStatistics()
	if !ok {
		if w, writable := src.AsWriteable(); writable {
			if err := w.CalculateStatistics(); err != nil {
				return nil, err
			}
			stat, _ = w.GetStatistics()
		}
	}
	dst := SelectImplementation(stat, diskBacked, m)
	if err := dst.Copy(src); err != nil {
		return nil, err
	}
	return dst, nil
}

// RecalculateAll recomputes GraphStatistic for every writable storage in
// storages concurrently via errgroup, one component's statistics pass
// never touching another's, unlike the per-row fan-out pkg/query uses
// errgroup for — this is a per-component fan-out instead.
func RecalculateAll(storages []GraphStorage) error {
	var group errgroup.Group
	for _, s := range storages {
		s := s
		w, writable := s.AsWriteable()
		if !writable {
			continue
		}
		group.Go(func() error {
			return w.CalculateStatistics()
		})
	}
	return group.Wait()
}
