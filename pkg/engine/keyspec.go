// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/daviszhen/pjoin/pkg/chunk"
	"github.com/daviszhen/pjoin/pkg/devtype"
	"github.com/daviszhen/pjoin/pkg/util"
)

var ErrTypeNotSupported = errors.New("type has no device support")

// KeyCond is one equi-join condition: a column of an already-joined relation
// (OuterDepth 0 is the source) compared against a column of the inner
// relation joined at this depth.
type KeyCond struct {
	OuterDepth int
	OuterCol   int
	InnerCol   int
	TypeOid    devtype.Oid
}

// ProjEntry picks one column of the full combination for the output row.
// Depth 0 is the source relation.
type ProjEntry struct {
	Depth int
	Col   int
}

// VisibilityFunc filters source rows before they enter the join; nil accepts
// every row.
type VisibilityFunc func(kcxt *EvalContext, src *chunk.Chunk, ref uint32) bool

type compiledCond struct {
	outerDepth int
	outerCol   int
	innerCol   int
	dt         *devtype.DevType
}

// KeyJoinSpec is the catalog-driven JoinSpec for plain equi-joins: per-depth
// key conditions, an optional source filter and a column-pick projection.
// Values are fixed-width datums throughout.
type KeyJoinSpec struct {
	_conds [][]compiledCond
	_proj  []ProjEntry
	_visib VisibilityFunc
}

// NewKeyJoinSpec resolves every condition's type against the catalog.
// conds[d] holds the conditions of depth d+1 and must be non-empty for a
// hash-strategy depth (a nest-loop depth may have any number, including none
// for a pure cross product).
func NewKeyJoinSpec(cat *devtype.Catalog, conds [][]KeyCond, proj []ProjEntry,
	visib VisibilityFunc) (*KeyJoinSpec, error) {
	s := &KeyJoinSpec{
		_conds: make([][]compiledCond, len(conds)),
		_proj:  proj,
		_visib: visib,
	}
	for d, depthConds := range conds {
		s._conds[d] = make([]compiledCond, 0, len(depthConds))
		for _, c := range depthConds {
			util.AssertFunc(c.OuterDepth >= 0 && c.OuterDepth <= d)
			dt, ok := cat.Lookup(c.TypeOid)
			if !ok {
				return nil, errors.Wrapf(ErrTypeNotSupported, "oid %d at depth %d",
					c.TypeOid, d+1)
			}
			s._conds[d] = append(s._conds[d], compiledCond{
				outerDepth: c.OuterDepth,
				outerCol:   c.OuterCol,
				innerCol:   c.InnerCol,
				dt:         dt,
			})
		}
	}
	return s, nil
}

// InnerKeyCols lists the inner-side key columns of a depth, in condition
// order. The host uses it to build the hash chunk with HashKeys.
func (s *KeyJoinSpec) InnerKeyCols(depth int) []int {
	cols := make([]int, 0, len(s._conds[depth-1]))
	for _, c := range s._conds[depth-1] {
		cols = append(cols, c.innerCol)
	}
	return cols
}

func (s *KeyJoinSpec) outerDatum(src *chunk.Chunk, rels *MultiRelsSet,
	xRefs []uint32, c *compiledCond) (chunk.Datum, bool) {
	ref := xRefs[c.outerDepth]
	if ref == chunk.NullRef {
		return 0, true
	}
	if c.outerDepth == 0 {
		return src.RefDatum(ref, c.outerCol)
	}
	return rels.InnerChunk(c.outerDepth).RefDatum(ref, c.outerCol)
}

func (s *KeyJoinSpec) EvalVisibility(kcxt *EvalContext, src *chunk.Chunk, ref uint32) bool {
	if s._visib == nil {
		return true
	}
	return s._visib(kcxt, src, ref)
}

func (s *KeyJoinSpec) EvalJoinQuals(kcxt *EvalContext, src *chunk.Chunk,
	rels *MultiRelsSet, depth int, xRefs []uint32, innerRef uint32) bool {
	inner := rels.InnerChunk(depth)
	for i := range s._conds[depth-1] {
		c := &s._conds[depth-1][i]
		ov, onull := s.outerDatum(src, rels, xRefs, c)
		iv, inull := inner.RefDatum(innerRef, c.innerCol)
		//NULL never equals anything
		if onull || inull || !c.dt.Equal(ov, iv) {
			return false
		}
	}
	return true
}

func (s *KeyJoinSpec) HashValue(kcxt *EvalContext, src *chunk.Chunk,
	rels *MultiRelsSet, depth int, xRefs []uint32) (uint32, bool) {
	tab := kcxt.CRC
	crc := tab.Init()
	allNull := true
	for i := range s._conds[depth-1] {
		c := &s._conds[depth-1][i]
		v, isnull := s.outerDatum(src, rels, xRefs, c)
		if isnull {
			continue
		}
		allNull = false
		crc = tab.Update(crc, datumBytes(&v))
	}
	return tab.Finish(crc), allNull
}

func (s *KeyJoinSpec) Project(kcxt *EvalContext, src *chunk.Chunk,
	rels *MultiRelsSet, refs []uint32, out *ProjOutput) {
	n := len(s._proj)
	if cap(out.Values) < n {
		out.Values = make([]chunk.Datum, n)
		out.IsNull = make([]bool, n)
		out.UseExtra = make([]bool, n)
	}
	out.Values = out.Values[:n]
	out.IsNull = out.IsNull[:n]
	out.UseExtra = out.UseExtra[:n]
	out.Extra = out.Extra[:0]
	for i, p := range s._proj {
		out.UseExtra[i] = false
		ref := refs[p.Depth]
		if ref == chunk.NullRef {
			out.Values[i], out.IsNull[i] = 0, true
			continue
		}
		if p.Depth == 0 {
			out.Values[i], out.IsNull[i] = src.RefDatum(ref, p.Col)
		} else {
			out.Values[i], out.IsNull[i] = rels.InnerChunk(p.Depth).RefDatum(ref, p.Col)
		}
	}
}

// HashKeys combines the key columns of one build-side row the same way
// HashValue combines the probe side, so chains line up across both sides.
// The second result reports that every key was NULL.
func HashKeys(tab *util.CRCTable, values []chunk.Datum, isnull []bool, cols []int) (uint32, bool) {
	crc := tab.Init()
	allNull := true
	for _, col := range cols {
		if isnull[col] {
			continue
		}
		allNull = false
		crc = tab.Update(crc, datumBytes(&values[col]))
	}
	return tab.Finish(crc), allNull
}

func datumBytes(v *chunk.Datum) []byte {
	return util.PointerToSlice[byte](unsafe.Pointer(v), 8)
}
