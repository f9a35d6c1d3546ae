package graph

import (
	"encoding/base64"
	"encoding/binary"
	"hash"
)

// OneDrive publishes a QuickXorHash for every file in its "file.hashes"
// facet. Each input byte is XORed into a 160-bit circular register at a bit
// offset that advances 11 bits per byte; the final digest XORs the input
// length into the register's last 8 bytes. The register is kept as 20 bytes,
// bit k living in byte k/8, which matches the little-endian layout the
// service serializes.
const (
	quickXorSize  = 20
	quickXorBits  = quickXorSize * 8
	quickXorShift = 11
)

type quickXor struct {
	reg    [quickXorSize]byte
	offset int // bit position of the next byte
	length uint64
}

var _ hash.Hash = (*quickXor)(nil)

func newQuickXor() *quickXor {
	return &quickXor{}
}

func (q *quickXor) Write(p []byte) (int, error) {
	for _, b := range p {
		idx, bit := q.offset/8, q.offset%8

		q.reg[idx] ^= b << bit
		if bit > 0 {
			q.reg[(idx+1)%quickXorSize] ^= b >> (8 - bit)
		}

		q.offset = (q.offset + quickXorShift) % quickXorBits
	}

	q.length += uint64(len(p))

	return len(p), nil
}

// Sum appends the digest to b without changing the state.
func (q *quickXor) Sum(b []byte) []byte {
	out := q.reg

	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], q.length)

	for i, v := range n {
		out[quickXorSize-len(n)+i] ^= v
	}

	return append(b, out[:]...)
}

func (q *quickXor) Reset() {
	*q = quickXor{}
}

func (q *quickXor) Size() int {
	return quickXorSize
}

func (q *quickXor) BlockSize() int {
	return 64
}

// encoded returns the digest in the base64 form Graph reports.
func (q *quickXor) encoded() string {
	return base64.StdEncoding.EncodeToString(q.Sum(nil))
}
