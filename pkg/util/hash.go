package util

import (
	"unsafe"
)

const (
	M    uint64 = 0xc6a4a7935bd1e995
	SEED uint64 = 0xe17a1465
	R    uint64 = 47
)

func HashBytes(ptr unsafe.Pointer, len uint64) uint64 {
	data64 := ptr
	h := SEED ^ (len * M)

	nBlocks := len / 8
	for i := uint64(0); i < nBlocks; i++ {
		k := Load[uint64](PointerAdd(data64, int(i*8)))
		k *= M
		k ^= k >> R
		k *= M

		h ^= k
		h *= M
	}
	data8 := PointerAdd(data64, int(nBlocks*8))
	switch len & 7 {
	case 7:
		h ^= uint64(Load[byte](PointerAdd(data8, 6))) << 48
		fallthrough
	case 6:
		h ^= uint64(Load[byte](PointerAdd(data8, 5))) << 40
		fallthrough
	case 5:
		h ^= uint64(Load[byte](PointerAdd(data8, 4))) << 32
		fallthrough
	case 4:
		h ^= uint64(Load[byte](PointerAdd(data8, 3))) << 24
		fallthrough
	case 3:
		h ^= uint64(Load[byte](PointerAdd(data8, 2))) << 16
		fallthrough
	case 2:
		h ^= uint64(Load[byte](PointerAdd(data8, 1))) << 8
		fallthrough
	case 1:
		h ^= uint64(Load[byte](data8))
		h *= M
		fallthrough
	default:
	}
	h ^= h >> R
	h *= M
	h ^= h >> R
	return h
}

func HashUint64(v uint64) uint64 {
	return HashBytes(unsafe.Pointer(&v), 8)
}

// crc32 polynomial used by the join key checksum table. Same table layout
// the probe stages replicate once per launch.
const crcPolynomial uint32 = 0xEDB88320

type CRCTable [256]uint32

func NewCRCTable() *CRCTable {
	tab := &CRCTable{}
	for i := 0; i < 256; i++ {
		c := uint32(i)
		for j := 0; j < 8; j++ {
			if c&1 != 0 {
				c = crcPolynomial ^ (c >> 1)
			} else {
				c >>= 1
			}
		}
		tab[i] = c
	}
	return tab
}

func (tab *CRCTable) Init() uint32 {
	return ^uint32(0)
}

func (tab *CRCTable) Update(crc uint32, data []byte) uint32 {
	for _, b := range data {
		crc = tab[byte(crc)^b] ^ (crc >> 8)
	}
	return crc
}

func (tab *CRCTable) Finish(crc uint32) uint32 {
	return ^crc
}
