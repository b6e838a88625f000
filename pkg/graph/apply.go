package graph

import (
	"github.com/orneryd/graphdb/pkg/errs"
	"github.com/orneryd/graphdb/pkg/gs"
	"github.com/orneryd/graphdb/pkg/model"
	"github.com/orneryd/graphdb/pkg/update"
)

// progressInterval is spec's "emit progress callbacks every 10^5
// events".
const progressInterval = 100_000

// ApplyUpdate iterates batch.Events in order, applying each mutation,
// advancing the change counter and invoking onProgress every
// progressInterval events (onProgress may be nil). Derived indices are
// recomputed once at the end over every node touched by the batch, per
// spec §4.3.
func (g *Graph) ApplyUpdate(batch update.Batch, onProgress func(applied, total int)) error {
	touched := map[model.NodeID]struct{}{}
	for i, ev := range batch.Events {
		ids, err := g.applyOne(ev)
		if err != nil {
			return err
		}
		for _, id := range ids {
			touched[id] = struct{}{}
		}
		g.changeID.Add(1)
		g.invalidateSize()
		if onProgress != nil && (i+1)%progressInterval == 0 {
			onProgress(i+1, len(batch.Events))
		}
	}
	if onProgress != nil {
		onProgress(len(batch.Events), len(batch.Events))
	}
	if len(touched) > 0 {
		if err := g.recomputeDerivedIndices(touched); err != nil {
			return err
		}
	}
	return nil
}

// applyOne applies a single event and returns the node(s) it touched,
// for derived-index invalidation.
func (g *Graph) applyOne(ev update.Event) ([]model.NodeID, error) {
	switch ev.Type {
	case update.AddNode:
		if id, ok := g.resolveName(ev.NodeName); ok {
			return []model.NodeID{id}, nil // idempotent on existing name
		}
		id, err := g.allocateNode(ev.NodeName, ev.NodeType)
		if err != nil {
			return nil, err
		}
		return []model.NodeID{id}, nil

	case update.DeleteNode:
		id, ok := g.resolveName(ev.NodeName)
		if !ok {
			return nil, nil
		}
		annos, err := g.nodeAnnos.GetAnnotationsForItem(id)
		if err != nil {
			return nil, err
		}
		for _, a := range annos {
			if _, _, err := g.nodeAnnos.RemoveAnnotationForItem(id, a.Key); err != nil {
				return nil, err
			}
		}
		for _, c := range g.Components() {
			w, err := g.getOrCreateWritable(c)
			if err != nil {
				return nil, err
			}
			if err := w.DeleteNode(id); err != nil {
				return nil, err
			}
		}
		g.forgetName(ev.NodeName)
		return []model.NodeID{id}, nil

	case update.AddNodeLabel:
		id, ok := g.resolveName(ev.NodeName)
		if !ok {
			return nil, nil
		}
		key := model.AnnoKey{NS: ev.AnnoNS, Name: ev.AnnoName}
		if err := g.nodeAnnos.Insert(id, model.Annotation{Key: key, Value: ev.AnnoValue}); err != nil {
			return nil, err
		}
		return []model.NodeID{id}, nil

	case update.DeleteNodeLabel:
		id, ok := g.resolveName(ev.NodeName)
		if !ok {
			return nil, nil
		}
		key := model.AnnoKey{NS: ev.AnnoNS, Name: ev.AnnoName}
		if _, _, err := g.nodeAnnos.RemoveAnnotationForItem(id, key); err != nil {
			return nil, err
		}
		return []model.NodeID{id}, nil

	case update.AddEdge:
		src, ok1 := g.resolveName(ev.SourceName)
		tgt, ok2 := g.resolveName(ev.TargetName)
		if !ok1 || !ok2 {
			return nil, nil // both names must exist; otherwise skip silently
		}
		if src == tgt {
			return nil, nil // self-edges are silently dropped
		}
		c := model.Component{CType: model.CType(ev.CType), Layer: ev.Layer, Name: ev.CompName}
		w, err := g.getOrCreateWritable(c)
		if err != nil {
			return nil, err
		}
		if err := w.AddEdge(model.Edge{Source: src, Target: tgt}); err != nil {
			return nil, err
		}
		return []model.NodeID{src, tgt}, nil

	case update.DeleteEdge:
		src, ok1 := g.resolveName(ev.SourceName)
		tgt, ok2 := g.resolveName(ev.TargetName)
		if !ok1 || !ok2 {
			return nil, nil
		}
		c := model.Component{CType: model.CType(ev.CType), Layer: ev.Layer, Name: ev.CompName}
		w, err := g.getOrCreateWritable(c)
		if err != nil {
			return nil, err
		}
		if err := w.DeleteEdge(model.Edge{Source: src, Target: tgt}); err != nil {
			return nil, err
		}
		return []model.NodeID{src, tgt}, nil

	case update.AddEdgeLabel:
		src, ok1 := g.resolveName(ev.SourceName)
		tgt, ok2 := g.resolveName(ev.TargetName)
		if !ok1 || !ok2 {
			return nil, nil
		}
		c := model.Component{CType: model.CType(ev.CType), Layer: ev.Layer, Name: ev.CompName}
		storage, ok := g.GetComponent(c)
		if !ok {
			return nil, nil
		}
		e := model.Edge{Source: src, Target: tgt}
		connected, err := storage.IsConnected(src, tgt, 1, gs.Included(1))
		if err != nil {
			return nil, err
		}
		if !connected {
			return nil, nil // only applied if the edge currently exists
		}
		w, err := g.getOrCreateWritable(c)
		if err != nil {
			return nil, err
		}
		key := model.AnnoKey{NS: ev.AnnoNS, Name: ev.AnnoName}
		if err := w.AddEdgeAnnotation(e, model.Annotation{Key: key, Value: ev.AnnoValue}); err != nil {
			return nil, err
		}
		return []model.NodeID{src, tgt}, nil

	case update.DeleteEdgeLabel:
		src, ok1 := g.resolveName(ev.SourceName)
		tgt, ok2 := g.resolveName(ev.TargetName)
		if !ok1 || !ok2 {
			return nil, nil
		}
		c := model.Component{CType: model.CType(ev.CType), Layer: ev.Layer, Name: ev.CompName}
		w, err := g.getOrCreateWritable(c)
		if err != nil {
			return nil, err
		}
		key := model.AnnoKey{NS: ev.AnnoNS, Name: ev.AnnoName}
		if err := w.DeleteEdgeAnnotation(model.Edge{Source: src, Target: tgt}, key); err != nil {
			return nil, err
		}
		return []model.NodeID{src, tgt}, nil

	default:
		return nil, errs.New(errs.AQLSemanticError, "unknown update event type")
	}
}
