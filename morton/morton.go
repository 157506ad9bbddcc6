// Package morton interleaves two 32 bit grid coordinates into a single Z-order key,
// so that cells close to each other on the grid tend to get keys close to each other.
package morton

type Z = uint64

var (
	masks = [...]uint64{
		0x5555555555555555,
		0x3333333333333333,
		0x0F0F0F0F0F0F0F0F,
		0x00FF00FF00FF00FF,
		0x0000FFFF0000FFFF,
		0x00000000FFFFFFFF,
	}
	shifts = [...]uint{1, 2, 4, 8, 16}
)

// spread inserts a zero bit between every bit of the lower 32 bits of v.
func spread(v uint64) uint64 {
	v &= masks[5]
	for i := 4; i >= 0; i-- {
		v = (v | (v << shifts[i])) & masks[i]
	}
	return v
}

// compact is the inverse of spread.
func compact(v uint64) uint64 {
	v &= masks[0]
	for i := 0; i <= 4; i++ {
		v = (v | (v >> shifts[i])) & masks[i+1]
	}
	return v
}

// Encode returns the Z-order key of grid cell (x, y).
func Encode(x, y uint32) Z {
	return spread(uint64(x)) | spread(uint64(y))<<1
}

// Decode returns the grid cell of a Z-order key.
func Decode(z Z) (x, y uint32) {
	return uint32(compact(z)), uint32(compact(z >> 1))
}
