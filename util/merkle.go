package util

import (
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// BuildMerkleRoot returns the merkle root of the given transaction hashes. An odd node at any level is
// paired with itself.
func BuildMerkleRoot(hashes []chainhash.Hash) chainhash.Hash {
	if len(hashes) == 0 {
		return chainhash.Hash{}
	}

	level := append([]chainhash.Hash(nil), hashes...)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		next := make([]chainhash.Hash, 0, len(level)/2)

		for i := 0; i < len(level); i += 2 {
			var concat [chainhash.HashSize * 2]byte

			copy(concat[:chainhash.HashSize], level[i][:])
			copy(concat[chainhash.HashSize:], level[i+1][:])

			next = append(next, chainhash.DoubleHashH(concat[:]))
		}

		level = next
	}

	return level[0]
}
