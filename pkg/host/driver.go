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

	clone "github.com/huandu/go-clone"
	treemap "github.com/liyue201/gostl/ds/map"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/pjoin/pkg/chunk"
	"github.com/daviszhen/pjoin/pkg/engine"
	"github.com/daviszhen/pjoin/pkg/util"
)

// Query ties one source relation, the inner relations and the generated join
// body together. SlotMode selects the slot destination format instead of
// serialized row tuples.
type Query struct {
	Src      *chunk.Chunk
	Inners   []InnerDef
	Spec     engine.JoinSpec
	DstNcols int
	SlotMode bool
}

// Result collects the destination chunks of every launch, keyed by emit
// sequence, plus the accumulated statistics.
type Result struct {
	_chunks *treemap.Map[int, *chunk.Chunk]
	_seq    int

	SourceNitems uint64
	OuterNitems  uint64
	JoinedNitems []uint64
}

func newResult(numRels int) *Result {
	return &Result{
		_chunks: treemap.New[int, *chunk.Chunk](func(a, b int) int {
			return a - b
		}),
		JoinedNitems: make([]uint64, numRels),
	}
}

func (res *Result) append(dst *chunk.Chunk) {
	res._chunks.Insert(res._seq, dst)
	res._seq++
}

func (res *Result) NumChunks() int {
	return res._chunks.Size()
}

// TotalRows counts the emitted rows across every collected chunk.
func (res *Result) TotalRows() int {
	total := 0
	res._chunks.Traversal(func(_ int, c *chunk.Chunk) bool {
		total += c.DestCard()
		return true
	})
	return total
}

// Rows flattens every collected chunk into host rows in emit-sequence order.
func (res *Result) Rows() ([][]chunk.Datum, [][]bool) {
	var values [][]chunk.Datum
	var isnull [][]bool
	for iter := res._chunks.Begin(); iter.IsValid(); iter.Next() {
		c := iter.Value()
		ncols := c.ColumnCount()
		for i := 0; i < c.DestCard(); i++ {
			row := make([]chunk.Datum, ncols)
			nulls := make([]bool, ncols)
			for col := 0; col < ncols; col++ {
				if c.Format() == chunk.FormatSlot {
					row[col], nulls[col] = c.SlotDatum(i, col)
				} else {
					row[col], nulls[col] = c.RefDatum(c.DestRowRef(uint32(i)), col)
				}
			}
			values = append(values, row)
			isnull = append(isnull, nulls)
		}
	}
	return values, isnull
}

// Driver owns the launch/relaunch protocol: it allocates destination buffers,
// relaunches suspended passes with the resume flag, and runs the colocation
// plus right-outer passes once the main pass settles.
type Driver struct {
	_cfg  *util.Config
	_lock *util.ReentryLock
}

func NewDriver(cfg *util.Config) *Driver {
	//keep a private copy; the caller may reuse and mutate its config
	cfg = clone.Clone(cfg).(*util.Config)
	cfg.FillDefaults()
	return &Driver{
		_cfg:  cfg,
		_lock: util.NewReentryLock(),
	}
}

func (d *Driver) newDest(q *Query) *chunk.Chunk {
	if q.SlotMode {
		return chunk.NewDestSlotChunk(q.DstNcols,
			d._cfg.Buffer.DestRowCap, d._cfg.Buffer.DestExtraCap)
	}
	return chunk.NewDestRowChunk(q.DstNcols,
		d._cfg.Buffer.DestRowCap, d._cfg.Buffer.DestByteCap)
}

// collect registers one finished destination chunk. The registry is shared
// by the per-device passes, and a relaunch path re-enters while the owner
// still holds the lock, hence the reentrant one.
func (d *Driver) collect(res *Result, dst *chunk.Chunk) {
	d._lock.Lock()
	defer d._lock.Unlock()
	if dst.DestCard() > 0 {
		res.append(dst)
	}
}

// runMainPass drives one device's main pass to completion, swapping in a
// fresh destination chunk every time the engine suspends.
func (d *Driver) runMainPass(ctx context.Context, ctl *engine.JoinControl,
	rels *engine.MultiRelsSet, src *chunk.Chunk, q *Query, res *Result, device int) error {
	for {
		dst := d.newDest(q)
		if err := engine.Launch(ctx, ctl, rels, src, dst, q.Spec, device); err != nil {
			return errors.Wrap(err, "main pass")
		}
		d.collect(res, dst)
		if ctl.Completed() {
			return nil
		}
		util.Debug("main pass suspended, relaunching",
			zap.Int("device", device),
			zap.Int("chunks", res.NumChunks()))
		ctl.SetResume(true)
	}
}

func (d *Driver) runRightOuterPass(ctx context.Context, ctl *engine.JoinControl,
	rels *engine.MultiRelsSet, q *Query, res *Result, outerDepth int) error {
	for {
		dst := d.newDest(q)
		if err := engine.LaunchRightOuter(ctx, ctl, rels, dst, q.Spec, outerDepth, 0); err != nil {
			return errors.Wrapf(err, "right-outer pass depth %d", outerDepth)
		}
		d.collect(res, dst)
		if ctl.Completed() {
			return nil
		}
		util.Debug("right-outer pass suspended, relaunching",
			zap.Int("outerDepth", outerDepth),
			zap.Int("chunks", res.NumChunks()))
		ctl.SetResume(true)
	}
}

// Run executes the whole join: the main pass on every device over its share
// of the source, then one colocation plus right-outer pass per right-outer
// relation on device 0.
func (d *Driver) Run(ctx context.Context, q *Query) (*Result, error) {
	if q.Src == nil || q.Spec == nil || len(q.Inners) == 0 || q.DstNcols <= 0 {
		return nil, errors.Wrap(engine.ErrLaunchFailed, "incomplete query")
	}
	numDevices := d._cfg.Engine.NumDevices
	rels := BuildRels(numDevices, q.Inners)
	numRels := rels.NumRels()
	res := newResult(numRels)

	srcParts := splitSource(q.Src, numDevices)
	ctls := make([]*engine.JoinControl, numDevices)
	for dev := range ctls {
		ctls[dev] = engine.NewJoinControl(d._cfg.Engine.NumBlocks,
			d._cfg.Engine.BlockSize, d._cfg.Engine.PstackNrooms, numRels)
	}

	g, gctx := errgroup.WithContext(ctx)
	for dev := 0; dev < numDevices; dev++ {
		g.Go(func() error {
			return d.runMainPass(gctx, ctls[dev], rels, srcParts[dev], q, res, dev)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, ctl := range ctls {
		res.SourceNitems += ctl.SourceNitems()
		res.OuterNitems += ctl.OuterNitems()
		for depth := 1; depth <= numRels; depth++ {
			res.JoinedNitems[depth-1] += ctl.StatNitems(depth)
		}
	}

	//right-outer passes run once, on the replica that saw every match
	for depth := 1; depth <= numRels; depth++ {
		if !rels.Rel(depth).RightOuter {
			continue
		}
		rels.ColocateOuterJoinMap(0)
		ctl := engine.NewJoinControl(d._cfg.Engine.NumBlocks,
			d._cfg.Engine.BlockSize, d._cfg.Engine.PstackNrooms, numRels)
		if err := d.runRightOuterPass(ctx, ctl, rels, q, res, depth); err != nil {
			return nil, err
		}
		for dep := depth; dep <= numRels; dep++ {
			res.JoinedNitems[dep-1] += ctl.StatNitems(dep)
		}
	}

	util.Info("join finished",
		zap.Uint64("sourceRows", res.SourceNitems),
		zap.Uint64("visibleRows", res.OuterNitems),
		zap.Int("resultRows", res.TotalRows()),
		zap.Int("chunks", res.NumChunks()))
	return res, nil
}
