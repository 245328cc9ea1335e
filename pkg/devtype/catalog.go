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

// Package devtype is the type-metadata provider the generated predicate,
// hash and projection bodies are built from. Per-oid lookups are memoized,
// a type without device support gets a non-retryable negative entry, and
// any catalog change drops the whole cache.
package devtype

import (
	"math"
	"unsafe"

	dec "github.com/govalues/decimal"
	"github.com/tidwall/btree"
	"go.uber.org/zap"
	"golang.org/x/sync/syncmap"

	"github.com/daviszhen/pjoin/pkg/chunk"
	"github.com/daviszhen/pjoin/pkg/util"
)

type Oid uint32

const (
	OidBool    Oid = 16
	OidInt8    Oid = 20
	OidInt4    Oid = 23
	OidFloat8  Oid = 701
	OidNumeric Oid = 1700
)

// DevType carries the per-type callbacks a generated join body needs:
// equality, full comparison, and a checksum-table hash.
type DevType struct {
	Oid     Oid
	Name    string
	Len     int
	ByVal   bool
	Equal   func(a, b chunk.Datum) bool
	Compare func(a, b chunk.Datum) int
	Hash    func(tab *util.CRCTable, v chunk.Datum) uint32

	negative bool
}

func (dt *DevType) IsNegative() bool {
	return dt.negative
}

type typeEntry struct {
	oid     Oid
	name    string
	len     int
	byVal   bool
	equal   func(a, b chunk.Datum) bool
	compare func(a, b chunk.Datum) int
	hash    func(tab *util.CRCTable, v chunk.Datum) uint32
}

func typeEntryLess(a, b *typeEntry) bool {
	return a.oid < b.oid
}

type Catalog struct {
	_base  *btree.BTreeG[*typeEntry]
	_cache syncmap.Map //Oid -> *DevType
}

func crcDatum(tab *util.CRCTable, v chunk.Datum) uint32 {
	buf := util.PointerToSlice[byte](unsafe.Pointer(&v), 8)
	return tab.Finish(tab.Update(tab.Init(), buf))
}

func NewCatalog() *Catalog {
	cat := &Catalog{
		_base: btree.NewBTreeG[*typeEntry](typeEntryLess),
	}
	cat.register(&typeEntry{
		oid: OidBool, name: "bool", len: 1, byVal: true,
		equal: func(a, b chunk.Datum) bool { return (a != 0) == (b != 0) },
		compare: func(a, b chunk.Datum) int {
			x, y := 0, 0
			if a != 0 {
				x = 1
			}
			if b != 0 {
				y = 1
			}
			return x - y
		},
		hash: crcDatum,
	})
	cat.register(&typeEntry{
		oid: OidInt4, name: "int4", len: 4, byVal: true,
		equal:   func(a, b chunk.Datum) bool { return int32(a) == int32(b) },
		compare: func(a, b chunk.Datum) int { return int(int32(a)) - int(int32(b)) },
		hash:    crcDatum,
	})
	cat.register(&typeEntry{
		oid: OidInt8, name: "int8", len: 8, byVal: true,
		equal: func(a, b chunk.Datum) bool { return int64(a) == int64(b) },
		compare: func(a, b chunk.Datum) int {
			x, y := int64(a), int64(b)
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		},
		hash: crcDatum,
	})
	cat.register(&typeEntry{
		oid: OidFloat8, name: "float8", len: 8, byVal: true,
		equal: func(a, b chunk.Datum) bool {
			return math.Float64frombits(a) == math.Float64frombits(b)
		},
		compare: func(a, b chunk.Datum) int {
			x, y := math.Float64frombits(a), math.Float64frombits(b)
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		},
		hash: crcDatum,
	})
	//numeric datums are scaled int64 coefficients with two decimal digits
	cat.register(&typeEntry{
		oid: OidNumeric, name: "numeric", len: 8, byVal: true,
		equal: func(a, b chunk.Datum) bool {
			x, errX := dec.New(int64(a), 2)
			y, errY := dec.New(int64(b), 2)
			if errX != nil || errY != nil {
				return false
			}
			return x.Equal(y)
		},
		compare: func(a, b chunk.Datum) int {
			x, errX := dec.New(int64(a), 2)
			y, errY := dec.New(int64(b), 2)
			if errX != nil || errY != nil {
				return 0
			}
			return x.Cmp(y)
		},
		hash: crcDatum,
	})
	return cat
}

func (cat *Catalog) register(ent *typeEntry) {
	cat._base.Set(ent)
}

// Lookup resolves device metadata for one type oid. Results, including
// negative ones, are memoized until Invalidate.
func (cat *Catalog) Lookup(oid Oid) (*DevType, bool) {
	if v, has := cat._cache.Load(oid); has {
		dt := v.(*DevType)
		if dt.negative {
			return nil, false
		}
		return dt, true
	}

	var dt *DevType
	ent, has := cat._base.Get(&typeEntry{oid: oid})
	if has {
		dt = &DevType{
			Oid:     ent.oid,
			Name:    ent.name,
			Len:     ent.len,
			ByVal:   ent.byVal,
			Equal:   ent.equal,
			Compare: ent.compare,
			Hash:    ent.hash,
		}
	} else {
		//not device computable. cache the miss, it is not retryable.
		dt = &DevType{Oid: oid, negative: true}
		util.Debug("devtype negative entry", zap.Uint32("oid", uint32(oid)))
	}
	actual, _ := cat._cache.LoadOrStore(oid, dt)
	dt = actual.(*DevType)
	if dt.negative {
		return nil, false
	}
	return dt, true
}

// Invalidate drops every memoized entry. Called whenever the backing
// catalog changes; partial invalidation is not supported on purpose.
func (cat *Catalog) Invalidate() {
	cat._cache.Range(func(key, _ any) bool {
		cat._cache.Delete(key)
		return true
	})
}

// Register adds or replaces a base type entry and invalidates the cache.
func (cat *Catalog) Register(oid Oid, name string, length int, byVal bool,
	equal func(a, b chunk.Datum) bool,
	compare func(a, b chunk.Datum) int,
	hash func(tab *util.CRCTable, v chunk.Datum) uint32) {
	cat.register(&typeEntry{
		oid: oid, name: name, len: length, byVal: byVal,
		equal: equal, compare: compare, hash: hash,
	})
	cat.Invalidate()
}
