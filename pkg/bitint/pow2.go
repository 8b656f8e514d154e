/*
Package bitint provides the power-of-2 helpers used to validate frame
sizes for the radix-2 FFT.

Design Principles:
- Zero Allocations: All operations use stack memory only
- Predictable Performance: O(1) constant time operations
- Real-Time Safe: No locks, syscalls, or blocking operations

Usage:

	// Reject frame sizes the FFT cannot handle
	if !bitint.IsPowerOfTwo(frameSize) { ... }

	// Recursion depth of an N-point transform
	depth := bitint.Log2(2048) // Returns 11

----------------------------------------------------------------------

What this code does:

	IsPowerOfTwo relies on a power of 2 having exactly one bit set.
	Subtracting 1 clears that bit and sets every bit below it, so
	n & (n-1) is zero only for powers of 2.

	- For input 8:
	  8 = 1000, 7 = 0111
	  1000 & 0111 = 0000 (power of 2)

	- For input 12:
	  12 = 1100, 11 = 1011
	  1100 & 1011 = 1000 (not a power of 2)

	Log2 returns the position of the single set bit, which is the
	number of halvings the recursive FFT performs before reaching
	single-element sequences.
*/
package bitint

import "math/bits"

// IsPowerOfTwo checks if n is a power of 2 using bit manipulation.
//
// Examples:
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   Not positive
//	-8     false   Not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns log2(n) for a power of 2 and -1 for anything else.
//
// Examples:
//
//	Input  Output
//	1      0
//	2048   11
//	1000   -1
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}

// NextPowerOfTwo returns the smallest power of 2 >= size. Used to suggest a
// valid frame size when configuration is rejected.
//
// Examples:
//
//	Input  Output  Explanation
//	4      4      Already power of 2 (preserved)
//	5      8      Next power after 5
//	0      1      Handle zero case
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}
