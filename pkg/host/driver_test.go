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
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/pjoin/pkg/chunk"
	"github.com/daviszhen/pjoin/pkg/devtype"
	"github.com/daviszhen/pjoin/pkg/engine"
	"github.com/daviszhen/pjoin/pkg/util"
)

func loadTestConfig(t *testing.T) *util.Config {
	t.Helper()
	cfg, err := util.LoadConfig("../../etc/pjoin.toml")
	require.NoError(t, err)
	return cfg
}

// the demo workload: src(id, grp, val) joined against a left-outer hash
// dimension on grp and a right-outer nest-loop relation on val
func demoQuery(t *testing.T, nSrc int, slotMode bool) *Query {
	t.Helper()
	srcRows := make([][]chunk.Datum, nSrc)
	srcNulls := make([][]bool, nSrc)
	for i := 0; i < nSrc; i++ {
		srcRows[i] = []chunk.Datum{uint64(i), uint64(i % 7), uint64(i % 10)}
		srcNulls[i] = []bool{false, false, false}
	}

	dim := InnerDef{
		NumCols:   2,
		Strategy:  engine.StrategyHash,
		LeftOuter: true,
		KeyCols:   []int{0},
	}
	for g := 0; g < 6; g++ {
		dim.Rows = append(dim.Rows, []chunk.Datum{uint64(g), uint64(100 + g)})
		dim.Nulls = append(dim.Nulls, []bool{false, false})
	}

	tag := InnerDef{
		NumCols:    2,
		Strategy:   engine.StrategyNestLoop,
		RightOuter: true,
	}
	for v := 0; v < 15; v++ {
		tag.Rows = append(tag.Rows, []chunk.Datum{uint64(v), uint64(1000 + v)})
		tag.Nulls = append(tag.Nulls, []bool{false, false})
	}

	spec, err := engine.NewKeyJoinSpec(devtype.NewCatalog(),
		[][]engine.KeyCond{
			{{OuterDepth: 0, OuterCol: 1, InnerCol: 0, TypeOid: devtype.OidInt8}},
			{{OuterDepth: 0, OuterCol: 2, InnerCol: 0, TypeOid: devtype.OidInt8}},
		},
		[]engine.ProjEntry{
			{Depth: 0, Col: 0},
			{Depth: 1, Col: 1},
			{Depth: 2, Col: 1},
		},
		nil)
	require.NoError(t, err)

	return &Query{
		Src:      BuildRowSource(3, srcRows, srcNulls),
		Inners:   []InnerDef{dim, tag},
		Spec:     spec,
		DstNcols: 3,
		SlotMode: slotMode,
	}
}

// demoExpected replays the demo workload row by row on the host.
func demoExpected(nSrc int) []string {
	var out []string
	tagMatched := make([]bool, 15)
	for i := 0; i < nSrc; i++ {
		id, grp, val := uint64(i), uint64(i%7), uint64(i%10)
		dimNull := grp >= 6
		weight := uint64(0)
		if !dimNull {
			weight = 100 + grp
		}
		//every val 0..9 hits one tag row
		tagMatched[val] = true
		out = append(out, fprow(
			[]chunk.Datum{id, weight, 1000 + val},
			[]bool{false, dimNull, false}))
	}
	for v, m := range tagMatched {
		if !m {
			out = append(out, fprow(
				[]chunk.Datum{0, 0, uint64(1000 + v)},
				[]bool{true, true, false}))
		}
	}
	sort.Strings(out)
	return out
}

func fprow(vals []chunk.Datum, nulls []bool) string {
	s := ""
	for i := range vals {
		if nulls[i] {
			s += "N|"
		} else {
			s += fmt.Sprintf("%d|", vals[i])
		}
	}
	return s
}

func resultFingerprints(res *Result) []string {
	values, isnull := res.Rows()
	out := make([]string, 0, len(values))
	for i := range values {
		out = append(out, fprow(values[i], isnull[i]))
	}
	sort.Strings(out)
	return out
}

func TestDriverRunDemoWorkload(t *testing.T) {
	cfg := loadTestConfig(t)
	drv := NewDriver(cfg)
	res, err := drv.Run(context.Background(), demoQuery(t, 500, false))
	require.NoError(t, err)

	assert.Equal(t, uint64(500), res.SourceNitems)
	assert.Equal(t, uint64(500), res.OuterNitems)
	require.Len(t, res.JoinedNitems, 2)
	assert.Equal(t, uint64(500), res.JoinedNitems[0])
	//every source row matches one tag row, plus 5 right-outer rows
	assert.Equal(t, uint64(505), res.JoinedNitems[1])

	require.Equal(t, demoExpected(500), resultFingerprints(res))
}

func TestDriverTinyDestForcesRelaunches(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Buffer.DestRowCap = 16
	drv := NewDriver(cfg)
	res, err := drv.Run(context.Background(), demoQuery(t, 300, false))
	require.NoError(t, err)

	//305 result rows through 16-row chunks means many relaunches
	assert.Greater(t, res.NumChunks(), 10)
	require.Equal(t, demoExpected(300), resultFingerprints(res))
}

func TestDriverMultiDevice(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Engine.NumDevices = 2
	drv := NewDriver(cfg)
	res, err := drv.Run(context.Background(), demoQuery(t, 400, false))
	require.NoError(t, err)

	assert.Equal(t, uint64(400), res.SourceNitems)
	require.Equal(t, demoExpected(400), resultFingerprints(res))
}

func TestDriverSlotMode(t *testing.T) {
	cfg := loadTestConfig(t)
	drv := NewDriver(cfg)
	res, err := drv.Run(context.Background(), demoQuery(t, 200, true))
	require.NoError(t, err)
	require.Equal(t, demoExpected(200), resultFingerprints(res))
}

func TestDriverRejectsIncompleteQuery(t *testing.T) {
	drv := NewDriver(&util.Config{})
	_, err := drv.Run(context.Background(), &Query{})
	require.Error(t, err)
	require.ErrorIs(t, err, engine.ErrLaunchFailed)
}

func TestDriverConfigIsPrivate(t *testing.T) {
	cfg := &util.Config{}
	cfg.Buffer.DestRowCap = 32
	drv := NewDriver(cfg)
	//mutating the caller's config after construction has no effect
	cfg.Buffer.DestRowCap = 1
	assert.Equal(t, 32, drv._cfg.Buffer.DestRowCap)
	//and the private copy got its defaults filled
	assert.Equal(t, 4, drv._cfg.Engine.NumBlocks)
}

func TestBuildBlockSourceDealsPages(t *testing.T) {
	rows := [][]chunk.Datum{{1, 2}, nil, {3, 4}, {5, 6}, {7, 8}}
	nulls := [][]bool{{false, false}, nil, {false, false}, {false, false}, {false, false}}
	c := BuildBlockSource(2, 4, 2, rows, nulls)
	require.Equal(t, chunk.FormatBlock, c.Format())
	//5 lines at 2 per page
	require.Equal(t, 3, c.Card())
	assert.Equal(t, uint32(2), c.PageNumLines(0))
	assert.Equal(t, chunk.NullRef, c.PageLineRef(0, 2))
	assert.Equal(t, uint32(1), c.PageNumLines(2))
}

func TestSplitSourceRoundRobin(t *testing.T) {
	rows := make([][]chunk.Datum, 7)
	nulls := make([][]bool, 7)
	for i := range rows {
		rows[i] = []chunk.Datum{uint64(i)}
		nulls[i] = []bool{false}
	}
	src := BuildRowSource(1, rows, nulls)
	parts := splitSource(src, 3)
	require.Len(t, parts, 3)
	assert.Equal(t, 3, parts[0].Card())
	assert.Equal(t, 2, parts[1].Card())
	assert.Equal(t, 2, parts[2].Card())

	v, isnull := parts[1].RefDatum(parts[1].RowRef(1), 0)
	require.False(t, isnull)
	assert.Equal(t, chunk.Datum(4), v)
}
