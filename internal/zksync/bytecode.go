package zksync

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	wordSize = 32

	// maxBytecodeWords is exclusive: the word count is stored as a big-endian uint16.
	maxBytecodeWords = 1 << 16

	bytecodeHashVersion = 0x01
)

// HashBytecode computes the versioned content hash the network uses in place of
// raw bytecode: 0x01 0x00 || be_u16(word count) || sha256(bytecode)[4:].
func HashBytecode(bytecode []byte) (common.Hash, error) {
	if len(bytecode)%wordSize != 0 {
		return common.Hash{}, fmt.Errorf("%w: got %d bytes", ErrBytecodeLength, len(bytecode))
	}

	words := len(bytecode) / wordSize
	if words >= maxBytecodeWords {
		return common.Hash{}, fmt.Errorf("%w: got %d words", ErrBytecodeTooLong, words)
	}

	digest := sha256.Sum256(bytecode)

	var hash common.Hash
	hash[0] = bytecodeHashVersion
	hash[1] = 0
	binary.BigEndian.PutUint16(hash[2:4], uint16(words))
	copy(hash[4:], digest[4:])

	return hash, nil
}

// HashBytecodes hashes each bytecode in order.
func HashBytecodes(bytecodes [][]byte) ([]common.Hash, error) {
	hashes := make([]common.Hash, 0, len(bytecodes))
	for i, bytecode := range bytecodes {
		hash, err := HashBytecode(bytecode)
		if err != nil {
			return nil, fmt.Errorf("dependency %d: %w", i, err)
		}
		hashes = append(hashes, hash)
	}

	return hashes, nil
}
