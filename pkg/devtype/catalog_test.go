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

package devtype

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/pjoin/pkg/chunk"
	"github.com/daviszhen/pjoin/pkg/util"
)

func TestLookupMemoized(t *testing.T) {
	cat := NewCatalog()
	dt1, ok := cat.Lookup(OidInt8)
	require.True(t, ok)
	dt2, ok := cat.Lookup(OidInt8)
	require.True(t, ok)
	//same pointer until invalidation
	assert.Same(t, dt1, dt2)

	cat.Invalidate()
	dt3, ok := cat.Lookup(OidInt8)
	require.True(t, ok)
	assert.NotSame(t, dt1, dt3)
	assert.Equal(t, dt1.Oid, dt3.Oid)
}

func TestLookupNegativeEntry(t *testing.T) {
	cat := NewCatalog()
	const bogus = Oid(424242)
	_, ok := cat.Lookup(bogus)
	require.False(t, ok)
	//the miss is cached and not retryable
	_, ok = cat.Lookup(bogus)
	require.False(t, ok)
}

func TestRegisterInvalidatesCache(t *testing.T) {
	cat := NewCatalog()
	const custom = Oid(90001)
	_, ok := cat.Lookup(custom)
	require.False(t, ok)

	cat.Register(custom, "pair16", 16, false,
		func(a, b chunk.Datum) bool { return a == b },
		func(a, b chunk.Datum) int {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			}
			return 0
		},
		crcDatum)

	//registration dropped the negative entry
	dt, ok := cat.Lookup(custom)
	require.True(t, ok)
	assert.Equal(t, "pair16", dt.Name)
	assert.False(t, dt.ByVal)
}

func TestInt8Semantics(t *testing.T) {
	cat := NewCatalog()
	dt, ok := cat.Lookup(OidInt8)
	require.True(t, ok)

	neg := chunk.Datum(math.MaxUint64 - 4) //int64(-5)
	assert.True(t, dt.Equal(neg, neg))
	assert.False(t, dt.Equal(neg, 5))
	assert.Negative(t, dt.Compare(neg, 5))
	assert.Positive(t, dt.Compare(5, neg))
	assert.Zero(t, dt.Compare(7, 7))
}

func TestFloat8Semantics(t *testing.T) {
	cat := NewCatalog()
	dt, ok := cat.Lookup(OidFloat8)
	require.True(t, ok)

	a := chunk.Datum(math.Float64bits(1.5))
	b := chunk.Datum(math.Float64bits(-2.25))
	assert.True(t, dt.Equal(a, a))
	assert.False(t, dt.Equal(a, b))
	assert.Positive(t, dt.Compare(a, b))
	assert.Negative(t, dt.Compare(b, a))
}

func TestNumericSemantics(t *testing.T) {
	cat := NewCatalog()
	dt, ok := cat.Lookup(OidNumeric)
	require.True(t, ok)

	//coefficients carry two decimal digits: 125 means 1.25
	assert.True(t, dt.Equal(125, 125))
	assert.False(t, dt.Equal(125, 126))
	assert.Negative(t, dt.Compare(125, 200))
	assert.Positive(t, dt.Compare(200, 125))
}

func TestHashDeterministic(t *testing.T) {
	cat := NewCatalog()
	dt, ok := cat.Lookup(OidInt8)
	require.True(t, ok)

	tab := util.NewCRCTable()
	h1 := dt.Hash(tab, 12345)
	h2 := dt.Hash(tab, 12345)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, dt.Hash(tab, 12346))
}
