package engine

import (
	"github.com/daviszhen/pjoin/pkg/chunk"
	"github.com/daviszhen/pjoin/pkg/util"
)

// chainEnd marks a lane whose hash chain is exhausted (or that owns no outer
// combination in the current window). Any other non-zero lState value is the
// reference of the last visited chain entry, so a resumed launch continues
// the walk exactly where it stopped.
const chainEnd = ^uint32(0)

// execHashJoin probes the hash-organized inner relation of this depth. Every
// lane owns one outer combination of the current window and advances its
// collision chain by at most one hash-matching entry per phase.
func (bw *blockWorker) execHashJoin(depth int) int {
	rel := bw.rels.Rel(depth)
	kdsHash := rel.Chunk
	lanes := bw.lanes()
	util.AssertFunc(depth >= 1 && depth <= bw.numRels())

	anyAlive := false
	for lane := 0; lane < lanes; lane++ {
		if bw.lState[lane][depth] != chainEnd {
			anyAlive = true
			break
		}
	}
	if !anyAlive {
		//all the lanes reached the end of their hash chain; move to the
		//next outer window. The last window may be narrower than the lane
		//vector, so clamp instead of overshooting the write cursor.
		bw.st.readPos[depth-1] = min(bw.st.readPos[depth-1]+uint32(lanes),
			bw.st.writePos[depth-1])
		for lane := 0; lane < lanes; lane++ {
			bw.lState[lane][depth] = 0
			bw.matched[lane][depth] = false
		}
		return depth
	}

	if bw.st.readPos[depth-1] >= bw.st.writePos[depth-1] {
		//no outer combinations pending; a shallower depth may produce more
		//if this depth still has room for a full window
		util.AssertFunc(bw.st.wipCount[depth] == 0)
		if int(bw.st.writePos[depth])+lanes <= bw.nrooms() {
			if d := bw.rewindStack(depth - 1); d >= bw.st.baseDepth {
				return d
			}
		}
		return depth + 1
	}

	util.Fill(bw.laneFlags, lanes, false)
	util.Fill(bw.laneRefs, lanes, chunk.NullRef)

	inProgress := uint32(0)
	for lane := 0; lane < lanes; lane++ {
		rdIdx := bw.st.readPos[depth-1] + uint32(lane)
		bw.laneXIdx[lane] = rdIdx

		entry := chunk.NullRef
		if bw.lState[lane][depth] == 0 {
			//first touch of the hash slot
			if rdIdx >= bw.st.writePos[depth-1] {
				//a lane without an outer tuple must not generate any
				//LEFT OUTER results
				bw.lState[lane][depth] = chainEnd
				continue
			}
			xRefs := bw.pstack.read(depth-1, rdIdx)
			hash, isNullKeys := bw.spec.HashValue(&bw.kcxt[lane], bw.src, bw.rels, depth, xRefs)
			if !isNullKeys && kdsHash.HashInRange(hash) {
				//NULL keys never match an inner row
				entry = kdsHash.HashFirstRef(hash)
				for entry != chunk.NullRef && kdsHash.RefEntryHash(entry) != hash {
					entry = kdsHash.HashNextRef(entry)
				}
			}
		} else if bw.lState[lane][depth] != chainEnd {
			//walk on from the last visited entry
			hash := kdsHash.RefEntryHash(bw.lState[lane][depth])
			entry = kdsHash.HashNextRef(bw.lState[lane][depth])
			for entry != chunk.NullRef && kdsHash.RefEntryHash(entry) != hash {
				entry = kdsHash.HashNextRef(entry)
			}
		} else {
			continue
		}

		if entry != chunk.NullRef {
			inProgress++
			xRefs := bw.pstack.read(depth-1, rdIdx)
			if bw.spec.EvalJoinQuals(&bw.kcxt[lane], bw.src, bw.rels, depth, xRefs, entry) {
				bw.laneFlags[lane] = true
				bw.laneRefs[lane] = entry
				bw.matched[lane][depth] = true
				if rel.RightOuter {
					bw.rels.SetMatched(bw.device, depth, kdsHash.RefRowID(entry))
				}
			}
			bw.lState[lane][depth] = entry
		} else {
			if rel.LeftOuter && bw.lState[lane][depth] != chainEnd && !bw.matched[lane][depth] {
				//chain exhausted without a match on a LEFT/FULL OUTER depth
				bw.laneFlags[lane] = true
				bw.laneRefs[lane] = chunk.NullRef
			}
			bw.lState[lane][depth] = chainEnd
		}
	}
	if d := bw.errorDepth(depth); d == depthAborted {
		return depthAborted
	}
	return bw.compactJoinResults(depth, int(inProgress))
}
