package engine

import (
	"github.com/daviszhen/pjoin/pkg/chunk"
	"github.com/daviszhen/pjoin/pkg/util"
)

// EvalContext is the per-lane evaluation context handed to every generated
// callback. A callback signals failure by SetError; the first error sticks.
type EvalContext struct {
	Errcode error
	CRC     *util.CRCTable
}

func (kcxt *EvalContext) SetError(err error) {
	if kcxt.Errcode == nil {
		kcxt.Errcode = err
	}
}

// ProjOutput is what a projection callback materializes for one output row.
// Row mode serializes Values/IsNull; slot mode additionally moves Extra into
// the destination arena and rebases the values flagged UseExtra (they hold
// offsets into Extra).
type ProjOutput struct {
	Values   []chunk.Datum
	IsNull   []bool
	UseExtra []bool
	Extra    []byte
}

// JoinSpec is the query-specific generated body, injected at construction
// time. xRefs is the outer combination (source ref plus one ref per shallower
// inner relation); any ref may be NullRef on an outer-extended combination.
type JoinSpec interface {
	// scan qualifier over one source row
	EvalVisibility(kcxt *EvalContext, src *chunk.Chunk, ref uint32) bool

	// join qualifier at the given depth
	EvalJoinQuals(kcxt *EvalContext, src *chunk.Chunk, rels *MultiRelsSet,
		depth int, xRefs []uint32, innerRef uint32) bool

	// hash of the outer combination's join keys at the given depth;
	// isNullKeys reports that every key is NULL
	HashValue(kcxt *EvalContext, src *chunk.Chunk, rels *MultiRelsSet,
		depth int, xRefs []uint32) (hash uint32, isNullKeys bool)

	// projection of one full combination
	Project(kcxt *EvalContext, src *chunk.Chunk, rels *MultiRelsSet,
		refs []uint32, out *ProjOutput)
}
