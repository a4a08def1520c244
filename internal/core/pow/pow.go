// Package pow implements the kHeavyHash proof-of-work used by the hashing
// backends: the fixed-shape block constants handed to workers, matrix
// derivation from the pre-PoW hash, and nonce evaluation against a target.
package pow

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"

	"golang.org/x/crypto/sha3"
)

const (
	// HeaderSize is the length of the hashing header: pre-PoW hash, timestamp
	// and 32 bytes of zero padding.
	HeaderSize = 72
	// MatrixSize is the dimension of the square heavyhash matrix.
	MatrixSize = 64
)

var (
	powDomain   = []byte("ProofOfWorkHash")
	heavyDomain = []byte("HeavyHash")
)

// Hash is a 256-bit digest.
type Hash [32]byte

// Header is the fixed 72-byte prefix hashed in front of every nonce.
type Header [HeaderSize]byte

// Matrix is the 64×64 matrix of 4-bit values (stored as uint16) derived from
// the pre-PoW hash.
type Matrix [MatrixSize][MatrixSize]uint16

// Target is a 256-bit little-endian integer, least significant word first.
type Target [4]uint64

// Words returns h as four little-endian 64-bit words, least significant first.
func (h Hash) Words() [4]uint64 {
	var w [4]uint64
	for i := range w {
		w[i] = binary.LittleEndian.Uint64(h[i*8:])
	}
	return w
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// NewHeader lays out the hashing header for a block template.
func NewHeader(prePowHash Hash, timestamp uint64) Header {
	var hdr Header
	copy(hdr[:32], prePowHash[:])
	binary.LittleEndian.PutUint64(hdr[32:40], timestamp)
	return hdr
}

// Meets reports whether h, read as a little-endian 256-bit integer, is less
// than or equal to t.
func (t Target) Meets(h Hash) bool {
	w := h.Words()
	for i := 3; i >= 0; i-- {
		if w[i] != t[i] {
			return w[i] < t[i]
		}
	}
	return true
}

// TargetFromBits expands compact difficulty bits into a target. A negative
// mantissa yields the zero target; bits beyond 256 are discarded.
func TargetFromBits(bits uint32) Target {
	exponent := bits >> 24
	mantissa := bits & 0x00ffffff
	if mantissa > 0x7fffff {
		return Target{}
	}

	v := new(big.Int)
	if exponent <= 3 {
		v.SetUint64(uint64(mantissa >> (8 * (3 - exponent))))
	} else {
		v.SetUint64(uint64(mantissa))
		v.Lsh(v, uint(8*(exponent-3)))
	}

	var t Target
	mask := new(big.Int).SetUint64(^uint64(0))
	for i := range t {
		t[i] = new(big.Int).And(v, mask).Uint64()
		v.Rsh(v, 64)
	}
	return t
}

// State evaluates nonces for one set of block constants. The header is
// absorbed once; each nonce hashes a clone of that sponge. A State may be
// shared by goroutines that only call its methods.
type State struct {
	matrix Matrix
	target Target
	base   sha3.ShakeHash
}

// NewState copies the block constants into a new evaluation state.
func NewState(header *Header, matrix *Matrix, target *Target) *State {
	base := sha3.NewCShake256(nil, powDomain)
	base.Write(header[:])
	return &State{matrix: *matrix, target: *target, base: base}
}

// PowHash is cSHAKE256("ProofOfWorkHash") over header ‖ nonce.
func (s *State) PowHash(nonce uint64) Hash {
	h := s.base.Clone()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], nonce)
	h.Write(buf[:])

	var out Hash
	h.Read(out[:])
	return out
}

// HeavyHash returns the final proof-of-work digest for nonce.
func (s *State) HeavyHash(nonce uint64) Hash {
	return s.matrix.HeavyHash(s.PowHash(nonce))
}

// Check reports whether nonce solves the block.
func (s *State) Check(nonce uint64) bool {
	return s.target.Meets(s.HeavyHash(nonce))
}

// HeavyHash multiplies the nibbles of h by the matrix, folds the product back
// into h and rehashes with cSHAKE256("HeavyHash").
func (m *Matrix) HeavyHash(h Hash) Hash {
	var vec [MatrixSize]uint16
	for i := 0; i < MatrixSize/2; i++ {
		vec[2*i] = uint16(h[i] >> 4)
		vec[2*i+1] = uint16(h[i] & 0x0f)
	}

	var mixed Hash
	for i := 0; i < MatrixSize/2; i++ {
		var sum1, sum2 uint16
		for j, v := range vec {
			sum1 += m[2*i][j] * v
			sum2 += m[2*i+1][j] * v
		}
		mixed[i] = h[i] ^ (byte(sum1>>10)<<4 | byte(sum2>>10))
	}

	x := sha3.NewCShake256(nil, heavyDomain)
	x.Write(mixed[:])
	var out Hash
	x.Read(out[:])
	return out
}
