// Package util contains misc internal utilities for bit and integer arithmetic.
package util

import "math/bits"

// BinaryToGray converts a binary index to its reflected binary (Gray) code.
func BinaryToGray(b uint32) uint32 {
	return b ^ (b >> 1)
}

// GrayToBinary converts a reflected binary (Gray) code to a binary index.
//
// Bit i of the output is bit i of the input XOR bit i+1 of the output, which is
// computed by folding successively shifted copies of the code into itself.
func GrayToBinary(g uint32) uint32 {
	g ^= g >> 16
	g ^= g >> 8
	g ^= g >> 4
	g ^= g >> 2
	g ^= g >> 1
	return g
}

// GetBit returns the value of a given bit in a word
func GetBit(w uint32, bitIndex uint) bool {
	return (w>>bitIndex)&1 == 1
}

// SetBit sets or clears the given bit in a word and returns the result
func SetBit(w uint32, bitIndex uint, value bool) uint32 {
	if value {
		return w | (1 << bitIndex)
	}
	return w &^ (1 << bitIndex)
}

// CeilLog2 returns the number of bits needed to address n distinct values,
// ceil(log2(n)).  CeilLog2(1) == 0 and CeilLog2 of n <= 0 is 0.
func CeilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// IsPowerOfTwo returns true if n is a positive power of two
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Clamp limits the input to the range [low, high]
func Clamp(input, low, high float64) float64 {
	if input < low {
		return low
	} else if input > high {
		return high
	}
	return input
}
