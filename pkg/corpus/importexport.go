package corpus

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/orneryd/graphdb/pkg/anno"
	"github.com/orneryd/graphdb/pkg/errs"
	"github.com/orneryd/graphdb/pkg/graph"
	"github.com/orneryd/graphdb/pkg/model"
	"github.com/orneryd/graphdb/pkg/update"
)

// fileAnnoKey marks a node as carrying a linked file, spec's
// node_type=file / annis::file relative-path annotation.
var fileAnnoKey = model.AnnoKey{NS: model.NSAnnis, Name: "file"}

// ImportReader is the struct-of-callbacks contract an external format
// collaborator (relANNIS, GraphML — out of scope here per spec's
// Non-goals) implements to drive import_from_fs; pkg/corpus ships no
// concrete reader, only this seam.
type ImportReader interface {
	// ReadUpdates streams the corpus content as update batches,
	// invoking emit for each; basePath is the source filesystem root
	// linked-file annotations are resolved against.
	ReadUpdates(basePath string, emit func(update.Batch) error) error
}

// ExportWriter is export_to_fs's symmetric seam.
type ExportWriter interface {
	WriteCorpus(g CorpusReader, destPath string) error
}

// CorpusReader is the read-only view ExportWriter implementations get,
// kept narrow so a writer can't mutate the corpus mid-export.
type CorpusReader interface {
	NodeNames() ([]string, error)
}

// ImportFromFS imports a corpus from path using reader, optionally disk-
// based, failing if name already exists unless overwrite is set.
// progress receives (batches applied, total) after each batch; total
// is always 0, since ImportReader does not report one.
func (s *Store) ImportFromFS(path string, name string, reader ImportReader, diskBased, overwrite bool, progress func(done, total int)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exists(name) {
		if !overwrite {
			return errs.New(errs.CorpusExists, "corpus %q already exists", name)
		}
		if err := os.RemoveAll(s.corpusDir(name)); err != nil {
			return errs.Wrap(errs.RemoveFileForCorpus, err, "remove existing corpus %q", name)
		}
		s.cache.remove(name)
	}

	corpusDir := s.corpusDir(name)
	if err := os.MkdirAll(corpusDir, 0o755); err != nil {
		return errs.Wrap(errs.CreateCorpus, err, "create corpus directory %q", corpusDir)
	}

	cfg := DefaultCorpusConfig()
	cfg.DiskBased = diskBased
	if err := writeCorpusConfig(corpusDir, cfg); err != nil {
		return err
	}

	g, err := s.getOrLoadLocked(name)
	if err != nil {
		return err
	}

	applied := 0
	loc := s.locationFor(name)
	err = reader.ReadUpdates(path, func(batch update.Batch) error {
		if err := g.ApplyUpdatePersisted(batch, &loc, nil); err != nil {
			return err
		}
		if err := relinkFiles(g, path, corpusDir, batch); err != nil {
			return err
		}
		applied++
		if progress != nil {
			progress(applied, 0)
		}
		return nil
	})
	if err != nil {
		return errs.Wrap(errs.LoadingGraphFailed, err, "import corpus %q", name)
	}

	if err := g.Sync(loc); err != nil {
		return errs.Wrap(errs.IO, err, "sync imported corpus %q", name)
	}
	return nil
}

// relinkFiles copies every file referenced by an annis::file
// annotation added in batch from basePath into <corpus>/files/ and
// rewrites the annotation to the new relative path, grounded on the
// teacher's file-copy-on-load style in pkg/storage/loader.go.
func relinkFiles(g *graph.Graph, basePath, corpusDir string, batch update.Batch) error {
	for _, ev := range batch.Events {
		if ev.Type != update.AddNodeLabel || ev.AnnoNS != fileAnnoKey.NS || ev.AnnoName != fileAnnoKey.Name {
			continue
		}
		srcPath := filepath.Join(basePath, ev.AnnoValue)
		destRel := filepath.Join("files", filepath.Base(ev.AnnoValue))
		destAbs := filepath.Join(corpusDir, destRel)
		if err := copyFile(srcPath, destAbs); err != nil {
			return errs.Wrap(errs.IO, err, "link file %q for node %q", ev.AnnoValue, ev.NodeName)
		}
		relink := update.Batch{Events: []update.Event{
			update.NewAddNodeLabel(ev.NodeName, fileAnnoKey.NS, fileAnnoKey.Name, destRel),
		}}
		if err := g.ApplyUpdate(relink, nil); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dest + ".tmp-" + uuid.NewString()
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

// ExportToFS exports one or more corpora to destPath using writer.
func (s *Store) ExportToFS(names []string, destPath string, writer ExportWriter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		g, err := s.getOrLoadLocked(name)
		if err != nil {
			return err
		}
		reader := &graphNodeNameReader{g: g}
		dest := filepath.Join(destPath, encodeCorpusName(name))
		if err := writer.WriteCorpus(reader, dest); err != nil {
			return errs.Wrap(errs.IO, err, "export corpus %q", name)
		}
	}
	return nil
}

// graphNodeNameReader adapts *graph.Graph to CorpusReader for
// ExportWriter implementations.
type graphNodeNameReader struct{ g *graph.Graph }

func (r *graphNodeNameReader) NodeNames() ([]string, error) {
	matches, err := r.g.NodeAnnos().ExactAnnoSearch(nil, model.KeyNodeName, anno.AnySearch())
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		v, ok, err := r.g.NodeAnnos().GetValueForItem(m.Item, model.NodeNameKey)
		if err != nil {
			return nil, err
		}
		if ok {
			names = append(names, v)
		}
	}
	return names, nil
}
