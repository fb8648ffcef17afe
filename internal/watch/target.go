package watch

import (
	"github.com/sttts/kcwatch/internal/cachenode"
	"github.com/sttts/kcwatch/internal/descriptor"
	"github.com/sttts/kcwatch/internal/materialize"
	"github.com/sttts/kcwatch/internal/registry"
)

// target is a descriptor resolved through the gate. Either id is set and the
// backend serves the data, or fixed holds the snapshot to report.
type target struct {
	id      descriptor.Identity
	query   descriptor.Query
	model   *registry.Model
	isList  bool
	pending bool
	fixed   Snapshot
}

func resolve(gate *registry.Gate, d *descriptor.Descriptor) target {
	if d == nil {
		return target{}
	}
	t := target{isList: d.IsList, fixed: Snapshot{Data: emptyData(d.IsList)}}
	res := gate.Resolve(d.Kind)
	switch {
	case res.LoadError != nil:
		t.fixed.Loaded = res.Loaded
		t.fixed.LoadError = res.LoadError
		return t
	case res.Model == nil:
		t.pending = true
		return t
	}
	query, id, ok := descriptor.Normalize(res.Model, d)
	if !ok {
		return target{}
	}
	t.id, t.query, t.model = id, query, res.Model
	return t
}

// view caches the snapshot of one identity per cache node.
type view struct {
	valid bool
	node  *cachenode.Node
	snap  Snapshot
}

func (v *view) read(mat *materialize.Materializer, node *cachenode.Node, isList bool) Snapshot {
	if v.valid && v.node == node {
		return v.snap
	}
	v.valid, v.node = true, node
	if node == nil {
		v.snap = Snapshot{Data: emptyData(isList)}
		return v.snap
	}

	v.snap = Snapshot{Loaded: node.Loaded, LoadError: node.LoadError}
	if isList {
		items := mat.List(node.Data)
		if items == nil {
			items = []map[string]any{}
		}
		v.snap.Data = items
	} else if obj := mat.Object(node.Data); obj != nil {
		v.snap.Data = obj
	} else if !node.Loaded {
		v.snap.Data = emptyObject
	}
	return v.snap
}
