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

package host

import (
	"github.com/daviszhen/pjoin/pkg/chunk"
	"github.com/daviszhen/pjoin/pkg/engine"
	"github.com/daviszhen/pjoin/pkg/util"
)

// InnerDef describes one inner relation as host rows. KeyCols names the
// build-side key columns of a hash-strategy relation, usually taken from
// KeyJoinSpec.InnerKeyCols.
type InnerDef struct {
	NumCols    int
	Rows       [][]chunk.Datum
	Nulls      [][]bool
	Strategy   engine.Strategy
	LeftOuter  bool
	RightOuter bool
	KeyCols    []int
}

// BuildRowSource packs host rows into a plain-row source chunk.
func BuildRowSource(ncols int, rows [][]chunk.Datum, nulls [][]bool) *chunk.Chunk {
	c := chunk.NewRowChunk(ncols, len(rows))
	for i, row := range rows {
		c.AppendRow(row, nulls[i])
	}
	return c
}

// BuildColumnSource packs host rows into a columnar source chunk.
func BuildColumnSource(ncols int, rows [][]chunk.Datum, nulls [][]bool) *chunk.Chunk {
	c := chunk.NewColumnChunk(ncols, len(rows))
	for i, row := range rows {
		c.AppendColumnRow(row, nulls[i])
	}
	return c
}

// BuildBlockSource chops host rows into pages of up to linesPerPage line
// pointers. A nil row becomes a dead line, the way a vacuumed page keeps its
// numbering.
func BuildBlockSource(ncols, partSz, linesPerPage int,
	rows [][]chunk.Datum, nulls [][]bool) *chunk.Chunk {
	util.AssertFunc(linesPerPage >= 1)
	pageCap := (len(rows) + linesPerPage - 1) / linesPerPage
	c := chunk.NewBlockChunk(ncols, partSz, pageCap, len(rows))
	for base := 0; base < len(rows); base += linesPerPage {
		end := min(base+linesPerPage, len(rows))
		c.AppendPage(rows[base:end], nulls[base:end])
	}
	return c
}

// BuildRels materializes every inner relation and wires them into one
// relation set. Hash-strategy relations are chained with the same key
// checksum the probe side computes, so both sides land in the same bucket.
func BuildRels(numDevices int, inners []InnerDef) *engine.MultiRelsSet {
	tab := util.NewCRCTable()
	rels := make([]engine.RelChunk, 0, len(inners))
	for i := range inners {
		def := &inners[i]
		var c *chunk.Chunk
		switch def.Strategy {
		case engine.StrategyNestLoop:
			c = chunk.NewRowChunk(def.NumCols, len(def.Rows))
			for r, row := range def.Rows {
				c.AppendRow(row, def.Nulls[r])
			}
		case engine.StrategyHash:
			util.AssertFunc(len(def.KeyCols) > 0)
			c = chunk.NewHashChunk(def.NumCols, len(def.Rows))
			for r, row := range def.Rows {
				//rows with all-NULL keys still enter the chunk; they can
				//never match a probe but a right-outer pass must see them
				hash, _ := engine.HashKeys(tab, row, def.Nulls[r], def.KeyCols)
				c.InsertHash(hash, row, def.Nulls[r])
			}
		default:
			panic("unknown join strategy")
		}
		rels = append(rels, engine.RelChunk{
			Chunk:      c,
			Strategy:   def.Strategy,
			LeftOuter:  def.LeftOuter,
			RightOuter: def.RightOuter,
		})
	}
	return engine.NewMultiRelsSet(numDevices, rels...)
}

// splitSource deals the source rows round-robin onto one chunk per device.
func splitSource(src *chunk.Chunk, numDevices int) []*chunk.Chunk {
	util.AssertFunc(numDevices >= 1)
	if numDevices == 1 {
		return []*chunk.Chunk{src}
	}
	//per-device partitioning re-materializes rows, so the paged format is
	//restricted to single-device runs
	util.AssertFunc(src.Format() == chunk.FormatRow || src.Format() == chunk.FormatColumn)

	ncols := src.ColumnCount()
	parts := make([]*chunk.Chunk, numDevices)
	for d := range parts {
		share := (src.Card() + numDevices - 1) / numDevices
		if src.Format() == chunk.FormatColumn {
			parts[d] = chunk.NewColumnChunk(ncols, share)
		} else {
			parts[d] = chunk.NewRowChunk(ncols, share)
		}
	}
	values := make([]chunk.Datum, ncols)
	isnull := make([]bool, ncols)
	for i := 0; i < src.Card(); i++ {
		ref := src.RowRef(uint32(i))
		for col := 0; col < ncols; col++ {
			values[col], isnull[col] = src.RefDatum(ref, col)
		}
		part := parts[i%numDevices]
		if src.Format() == chunk.FormatColumn {
			part.AppendColumnRow(values, isnull)
		} else {
			part.AppendRow(values, isnull)
		}
	}
	return parts
}
