package pow

import (
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"heavyhash.dev/miner/internal/core/xoshiro"
)

const rankEpsilon = 1e-9

// GenerateMatrix derives the block's matrix from its pre-PoW hash: rows of
// nibbles drawn from xoshiro256++ seeded with the hash, redrawn until the
// matrix has full rank.
func GenerateMatrix(prePowHash Hash) *Matrix {
	gen := xoshiro.NewPlusPlus(prePowHash.Words())
	for {
		m := randomMatrix(gen)
		if m.Rank() == MatrixSize {
			return m
		}
	}
}

func randomMatrix(gen *xoshiro.PlusPlus) *Matrix {
	var m Matrix
	for i := range m {
		var val uint64
		for j := range m[i] {
			shift := j % 16
			if shift == 0 {
				val = gen.Uint64()
			}
			m[i][j] = uint16(val>>(4*uint(shift))) & 0x0f
		}
	}
	return &m
}

// Rank computes the rank of m over the reals by Gaussian elimination.
func (m *Matrix) Rank() int {
	var f [MatrixSize][MatrixSize]float64
	for i := range m {
		for j := range m[i] {
			f[i][j] = float64(m[i][j])
		}
	}

	rank := 0
	var selected [MatrixSize]bool
	for i := 0; i < MatrixSize; i++ {
		j := 0
		for ; j < MatrixSize; j++ {
			if !selected[j] && math.Abs(f[j][i]) > rankEpsilon {
				break
			}
		}
		if j == MatrixSize {
			continue
		}

		rank++
		selected[j] = true
		for p := i + 1; p < MatrixSize; p++ {
			f[j][p] /= f[j][i]
		}
		for k := 0; k < MatrixSize; k++ {
			if k != j && math.Abs(f[k][i]) > rankEpsilon {
				for p := i + 1; p < MatrixSize; p++ {
					f[k][p] -= f[j][p] * f[k][i]
				}
			}
		}
	}
	return rank
}

// MatrixCache memoises GenerateMatrix per pre-PoW hash. Returned matrices are
// shared and must not be modified.
type MatrixCache struct {
	cache *lru.Cache[Hash, *Matrix]
}

// NewMatrixCache creates a cache holding up to size matrices.
func NewMatrixCache(size int) (*MatrixCache, error) {
	cache, err := lru.New[Hash, *Matrix](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create matrix cache: %w", err)
	}
	return &MatrixCache{cache: cache}, nil
}

// Get returns the matrix for prePowHash, generating it on a miss.
func (c *MatrixCache) Get(prePowHash Hash) *Matrix {
	if m, ok := c.cache.Get(prePowHash); ok {
		return m
	}
	m := GenerateMatrix(prePowHash)
	c.cache.Add(prePowHash, m)
	return m
}

// Len reports the number of cached matrices.
func (c *MatrixCache) Len() int {
	return c.cache.Len()
}
