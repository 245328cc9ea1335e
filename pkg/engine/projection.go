package engine

import (
	"github.com/daviszhen/pjoin/pkg/chunk"
	"github.com/daviszhen/pjoin/pkg/util"
)

// projectRow materializes up to one lane window of final combinations into a
// row-mode destination chunk. The whole window reserves its rows and tuple
// bytes with one compare-and-swap; if the destination cannot hold it, the
// block suspends without consuming anything.
func (bw *blockWorker) projectRow() int {
	nrels := bw.numRels()
	lanes := bw.lanes()

	if bw.st.readPos[nrels] >= bw.st.writePos[nrels] {
		return bw.rewindStack(nrels)
	}
	nvalids := min(int(bw.st.writePos[nrels]-bw.st.readPos[nrels]), lanes)

	//step 1: run the projection and size every result tuple
	util.Fill(bw.laneSizes, lanes, 0)
	for lane := 0; lane < nvalids; lane++ {
		refs := bw.pstack.read(nrels, bw.st.readPos[nrels]+uint32(lane))
		out := &bw.projOut[lane]
		bw.spec.Project(&bw.kcxt[lane], bw.src, bw.rels, refs, out)
		//row mode carries fixed-width values only
		util.AssertFunc(len(out.Extra) == 0)
		bw.laneSizes[lane] = uint32(chunk.TupleSize(len(out.Values)))
	}
	if d := bw.errorDepth(nrels + 1); d == depthAborted {
		return depthAborted
	}

	//step 2: reserve rows and bytes on the destination in one shot
	total := stairlikeSum(bw.laneSizes, bw.laneOffs)
	baseIndex, baseUsage, ok := bw.dst.TryReserve(uint32(nvalids), total)
	if !ok {
		//no space left on the destination; suspend and bail out so the
		//statistics stay untouched
		bw.suspendContext(nrels + 1)
		return DepthSuspended
	}

	//step 3: write out the tuples
	for lane := 0; lane < nvalids; lane++ {
		out := &bw.projOut[lane]
		bw.dst.WriteRowAt(baseIndex+uint32(lane),
			baseUsage+bw.laneOffs[lane]+bw.laneSizes[lane],
			out.Values, out.IsNull)
	}

	//step 4: make advance the read position
	bw.st.readPos[nrels] += uint32(nvalids)
	return nrels + 1
}

// projectSlot is the slot-mode twin: fixed-width values land in the slot
// arrays, variable payloads in the shared extra arena. Only the extra bytes
// go through the usage half of the reservation.
func (bw *blockWorker) projectSlot() int {
	nrels := bw.numRels()
	lanes := bw.lanes()

	if bw.st.readPos[nrels] >= bw.st.writePos[nrels] {
		return bw.rewindStack(nrels)
	}
	nvalids := min(int(bw.st.writePos[nrels]-bw.st.readPos[nrels]), lanes)

	util.Fill(bw.laneSizes, lanes, 0)
	for lane := 0; lane < nvalids; lane++ {
		refs := bw.pstack.read(nrels, bw.st.readPos[nrels]+uint32(lane))
		out := &bw.projOut[lane]
		bw.spec.Project(&bw.kcxt[lane], bw.src, bw.rels, refs, out)
		bw.laneSizes[lane] = uint32(util.AlignValue8(len(out.Extra)))
	}
	if d := bw.errorDepth(nrels + 1); d == depthAborted {
		return depthAborted
	}

	total := stairlikeSum(bw.laneSizes, bw.laneOffs)
	baseIndex, baseUsage, ok := bw.dst.TryReserve(uint32(nvalids), total)
	if !ok {
		bw.suspendContext(nrels + 1)
		return DepthSuspended
	}

	for lane := 0; lane < nvalids; lane++ {
		out := &bw.projOut[lane]
		bw.dst.WriteSlotAt(baseIndex+uint32(lane),
			baseUsage+bw.laneOffs[lane]+bw.laneSizes[lane],
			out.Values, out.IsNull, out.UseExtra, out.Extra)
	}

	bw.st.readPos[nrels] += uint32(nvalids)
	return nrels + 1
}
