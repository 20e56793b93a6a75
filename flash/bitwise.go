// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash

// IsBitSubset reports whether every bit set in a is also set in b at the same
// position. Only the first len(a) bytes of b are considered; a longer than b
// is never a subset.
//
// NOR programming can only clear bits, so data that is a bit subset of the
// current content can be programmed without erasing first.
func IsBitSubset(a, b []byte) bool {
	if len(a) > len(b) {
		return false
	}

	for i, v := range a {
		if v&^b[i] != 0 {
			return false
		}
	}

	return true
}

// IsSet reports whether bit n of v is set.
func IsSet(v byte, n uint) bool {
	return (v>>n)&1 == 1
}
