package engine

import (
	"github.com/daviszhen/pjoin/pkg/util"
)

// rewindStack walks back from the given depth toward the base depth. At the
// time of rewind all the combinations of the visited depths were consumed by
// the deeper side, so their cursor pairs can safely restart at zero. The walk
// stops at a depth with lanes still in progress, or whose shallower neighbor
// still has pending combinations, or at the base depth itself.
func (bw *blockWorker) rewindStack(depth int) int {
	util.AssertFunc(depth >= bw.st.baseDepth && depth <= bw.numRels())
	for {
		bw.st.readPos[depth] = 0
		bw.st.writePos[depth] = 0
		if bw.st.wipCount[depth] > 0 {
			break
		}
		if depth == bw.st.baseDepth ||
			bw.st.readPos[depth-1] < bw.st.writePos[depth-1] {
			break
		}
		depth--
	}
	if depth < bw.numRels() {
		n := bw.numRels() - depth
		for lane := 0; lane < bw.lanes(); lane++ {
			util.Fill(bw.lState[lane][depth+1:], n, 0)
			util.Fill(bw.matched[lane][depth+1:], n, false)
		}
	}
	if bw.st.scanDone && depth == bw.st.baseDepth {
		return DepthDone
	}
	return depth
}
