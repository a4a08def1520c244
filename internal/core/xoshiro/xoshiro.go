// Package xoshiro implements the xoshiro256 family of generators used by the
// miner: xoshiro256** for nonce sampling and xoshiro256++ for deriving the
// per-block heavyhash matrix.
//
// Neither generator is safe for concurrent use.
package xoshiro

import "math/bits"

// jumpPoly advances a generator by 2^128 steps.
var jumpPoly = [4]uint64{0x180ec6d33cfd0aba, 0xd5a61266f0c9392c, 0xa9582618e03fc9aa, 0x39abdc4529b1661c}

type state [4]uint64

func (s *state) advance() {
	t := s[1] << 17
	s[2] ^= s[0]
	s[3] ^= s[1]
	s[1] ^= s[2]
	s[0] ^= s[3]
	s[2] ^= t
	s[3] = bits.RotateLeft64(s[3], 45)
}

// StarStar is xoshiro256**.
type StarStar struct {
	s state
}

// NewStarStar seeds a generator with the given state. An all-zero seed is a
// fixed point of the generator and is replaced by a constant non-zero state.
func NewStarStar(seed [4]uint64) *StarStar {
	return &StarStar{s: nonZero(seed)}
}

// Uint64 returns the next output.
func (x *StarStar) Uint64() uint64 {
	r := bits.RotateLeft64(x.s[1]*5, 7) * 9
	x.s.advance()
	return r
}

// Jump advances the generator by 2^128 outputs. Calling Jump n times on
// copies of one generator yields n non-overlapping streams.
func (x *StarStar) Jump() {
	var acc state
	for _, word := range jumpPoly {
		for b := 0; b < 64; b++ {
			if word&(1<<uint(b)) != 0 {
				acc[0] ^= x.s[0]
				acc[1] ^= x.s[1]
				acc[2] ^= x.s[2]
				acc[3] ^= x.s[3]
			}
			x.Uint64()
		}
	}
	x.s = acc
}

// Clone returns an independent copy of the generator.
func (x *StarStar) Clone() *StarStar {
	c := *x
	return &c
}

// PlusPlus is xoshiro256++.
type PlusPlus struct {
	s state
}

// NewPlusPlus seeds a generator with the given state.
func NewPlusPlus(seed [4]uint64) *PlusPlus {
	return &PlusPlus{s: nonZero(seed)}
}

// Uint64 returns the next output.
func (x *PlusPlus) Uint64() uint64 {
	r := bits.RotateLeft64(x.s[0]+x.s[3], 23) + x.s[0]
	x.s.advance()
	return r
}

func nonZero(seed [4]uint64) state {
	if seed == ([4]uint64{}) {
		return state{0x9e3779b97f4a7c15, 0xbf58476d1ce4e5b9, 0x94d049bb133111eb, 0x2545f4914f6cdd1d}
	}
	return state(seed)
}
