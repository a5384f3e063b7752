package types

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// BloomBitLength is the number of bits in a bloom filter (2048).
const BloomBitLength = 8 * BloomLength

// bloomBitPositions computes the 3 bit positions a log's bloom entry sets:
// the first 6 bytes of keccak256(data), split into 3 big-endian uint16s
// mod 2048. This exact derivation is part of the consensus rules, not an
// implementation choice, so it can't be swapped for a generic probabilistic
// bloom filter library.
func bloomBitPositions(data []byte) [3]uint {
	d := sha3.NewLegacyKeccak256()
	d.Write(data)
	h := d.Sum(nil)
	var bits [3]uint
	for i := 0; i < 3; i++ {
		bits[i] = uint(binary.BigEndian.Uint16(h[2*i:])) & 0x7FF // mod 2048
	}
	return bits
}

// BloomAdd sets the 3 bloom bits derived from data in the bloom filter.
func BloomAdd(bloom *Bloom, data []byte) {
	for _, bit := range bloomBitPositions(data) {
		// Ethereum bloom bit ordering is big-endian: bit 0 is the least
		// significant bit of the last byte, bit 2047 the MSB of byte 0.
		byteIdx := BloomLength - 1 - bit/8
		bitIdx := bit % 8
		bloom[byteIdx] |= 1 << bitIdx
	}
}

// LogsBloom computes the bloom filter for a set of logs: the address and
// every topic of each log is folded into the filter.
func LogsBloom(logs []*Log) Bloom {
	var bloom Bloom
	for _, log := range logs {
		BloomAdd(&bloom, log.Address.Bytes())
		for _, topic := range log.Topics {
			BloomAdd(&bloom, topic.Bytes())
		}
	}
	return bloom
}

// BloomContains reports whether all 3 bits derived from data are set in bloom.
func BloomContains(bloom Bloom, data []byte) bool {
	for _, bit := range bloomBitPositions(data) {
		byteIdx := BloomLength - 1 - bit/8
		bitIdx := bit % 8
		if bloom[byteIdx]&(1<<bitIdx) == 0 {
			return false
		}
	}
	return true
}
