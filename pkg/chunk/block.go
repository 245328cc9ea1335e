package chunk

import (
	"github.com/daviszhen/pjoin/pkg/util"
)

// blockPage mirrors a paged row-block: a table of line pointers into the
// chunk arena. A zero line pointer is a dead line and must be skipped.
type blockPage struct {
	lines []uint32
}

// NewBlockChunk builds a paged row-block source chunk. partSz is the number
// of lanes assigned to one page when the source loader partitions a thread
// block across pages. Card() counts pages, not rows.
func NewBlockChunk(ncols int, partSz int, pageCap int, rowCap int) *Chunk {
	util.AssertFunc(partSz > 0)
	c := &Chunk{
		_format:   FormatBlock,
		_ncols:    ncols,
		_partSz:   partSz,
		_arena:    util.GAlloc.Alloc(arenaBase + rowCap*TupleSize(ncols)),
		_arenaPos: arenaBase,
		_pages:    make([]blockPage, 0, pageCap),
	}
	return c
}

func (c *Chunk) PartSize() int {
	util.AssertFunc(c._format == FormatBlock)
	return c._partSz
}

// AppendPage stores one page of rows. A nil isnull row entry marks a dead
// line pointer.
func (c *Chunk) AppendPage(rows [][]Datum, nulls [][]bool) {
	util.AssertFunc(c._format == FormatBlock)
	page := blockPage{lines: make([]uint32, len(rows))}
	for i, row := range rows {
		if row == nil {
			page.lines[i] = NullRef
			continue
		}
		util.AssertFunc(len(row) == c._ncols)
		page.lines[i] = c.appendTuple(row, nulls[i])
	}
	c._pages = append(c._pages, page)
	c._nitems++
}

func (c *Chunk) PageNumLines(partID uint32) uint32 {
	util.AssertFunc(c._format == FormatBlock)
	util.AssertFunc(partID < c._nitems)
	return uint32(len(c._pages[partID].lines))
}

// PageLineRef resolves page/line addressing. lineNo is 1-based like the
// original item pointer numbering. Returns NullRef for dead lines.
func (c *Chunk) PageLineRef(partID uint32, lineNo uint32) uint32 {
	util.AssertFunc(c._format == FormatBlock)
	util.AssertFunc(partID < c._nitems)
	util.AssertFunc(lineNo >= 1 && lineNo <= uint32(len(c._pages[partID].lines)))
	return c._pages[partID].lines[lineNo-1]
}
