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
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/pjoin/pkg/chunk"
	"github.com/daviszhen/pjoin/pkg/util"
)

// run drives the depth state machine of one block until it is done, suspends,
// or aborts. outerDepth is 0 on the main pass and the right-outer relation's
// depth on a right-outer pass; it is the shallowest depth a rewind may reach.
func (bw *blockWorker) run(ctx context.Context, outerDepth int) error {
	bw.st.baseDepth = outerDepth

	depth := outerDepth
	if bw.ctl.Resume() {
		depth = bw.resumeContext()
	}

	for depth >= outerDepth {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch {
		case depth == 0:
			depth = bw.loadSource()
		case depth == outerDepth:
			depth = bw.loadOuter(outerDepth)
		case depth > bw.numRels():
			if bw.dst.Format() == chunk.FormatSlot {
				depth = bw.projectSlot()
			} else {
				depth = bw.projectRow()
			}
		case bw.rels.Rel(depth).Strategy == StrategyNestLoop:
			depth = bw.execNestLoop(depth)
		default:
			depth = bw.execHashJoin(depth)
		}
	}

	switch depth {
	case DepthDone:
		//flush statistics only on a normal exit and stamp the suspend slot
		//so a later resumed launch skips this block
		sb := &bw.ctl._suspend[bw.blockID]
		sb.depth = DepthDone
		if bw.st.baseDepth == 0 {
			bw.ctl._sourceNitems.Add(bw.st.statSourceNitems)
			bw.ctl._outerNitems.Add(bw.st.statNitems[0])
		}
		for d := max(bw.st.baseDepth, 1); d <= bw.numRels(); d++ {
			bw.ctl._statNitems[d-1].Add(bw.st.statNitems[d])
		}
	case DepthSuspended:
		//the suspend context was already written by the projection stage
	case depthAborted:
		return bw.ctl.EvalErr()
	}
	return nil
}

// Launch executes the main pass: every block scans its share of src through
// the shared cursor, joins it against every inner relation and projects the
// full combinations into dst. A nil error with ctl.Completed() == false means
// the destination filled up; relaunch with the resume flag and a fresh dst.
func Launch(ctx context.Context, ctl *JoinControl, rels *MultiRelsSet,
	src, dst *chunk.Chunk, spec JoinSpec, device int) error {
	util.AssertFunc(ctl._numRels == rels.NumRels())
	util.AssertFunc(src != nil && dst != nil)
	if !ctl.Resume() {
		ctl._srcReadPos.Store(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	for blockID := 0; blockID < ctl._numBlocks; blockID++ {
		bw := newBlockWorker(ctl, rels, src, dst, spec, blockID, device)
		g.Go(func() error {
			return bw.run(gctx, 0)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	util.Debug("join pass finished",
		zap.Int("device", device),
		zap.Bool("resumed", ctl.Resume()),
		zap.Bool("completed", ctl.Completed()),
		zap.Uint64("sourceNitems", ctl.SourceNitems()),
		zap.Int("destNitems", dst.DestCard()))
	return nil
}

// LaunchRightOuter executes one right-outer pass over the relation joined at
// outerDepth. Call it after ColocateOuterJoinMap merged every device replica
// into this device's map; the pass emits the inner rows no combination of the
// main pass ever matched.
func LaunchRightOuter(ctx context.Context, ctl *JoinControl, rels *MultiRelsSet,
	dst *chunk.Chunk, spec JoinSpec, outerDepth, device int) error {
	util.AssertFunc(ctl._numRels == rels.NumRels())
	util.AssertFunc(rels.Rel(outerDepth).RightOuter)
	util.AssertFunc(dst != nil)
	if !ctl.Resume() {
		ctl._srcReadPos.Store(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	for blockID := 0; blockID < ctl._numBlocks; blockID++ {
		bw := newBlockWorker(ctl, rels, nil, dst, spec, blockID, device)
		g.Go(func() error {
			return bw.run(gctx, outerDepth)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	util.Debug("right-outer pass finished",
		zap.Int("device", device),
		zap.Int("outerDepth", outerDepth),
		zap.Bool("completed", ctl.Completed()),
		zap.Int("destNitems", dst.DestCard()))
	return nil
}
