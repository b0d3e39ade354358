// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mismatch

// baseAlphabet orders the five substitution-matrix row bases, per spec §3:
// row index is reference-base index A=0, C=1, G=2, T=3, N=4.
const baseAlphabet = "ACGTN"

// SubstitutionLookup is the CRAM 5x4 substitution table: SubstitutionLookup[r][code]
// yields the read base for substitution code 0..3 against reference-base
// row r (spec §3 "Substitution Lookup").
type SubstitutionLookup [5][4]byte

// BuildSubstitutionLookup decodes the CRAM compression header's 5-byte SM
// preservation map entry into a SubstitutionLookup. Each row byte encodes a
// Lehmer-ranked permutation of the 4 bases other than bases[r] (spec §3,
// §4.4 "Substitution-matrix Lehmer decode"): the byte value, read as an
// integer in the factorial number system, selects successive elements from
// the shrinking pool of remaining bases.
func BuildSubstitutionLookup(sm [5]byte) SubstitutionLookup {
	var lookup SubstitutionLookup
	for r := 0; r < 5; r++ {
		pool := otherBases(r)
		k := int(sm[r])
		d0 := k / 6 % 4
		rem := k % 6
		d1 := rem / 2 % 3
		d2 := rem % 2

		var perm [4]byte
		perm[0] = pickAndRemove(&pool, d0)
		perm[1] = pickAndRemove(&pool, d1)
		perm[2] = pickAndRemove(&pool, d2)
		perm[3] = pickAndRemove(&pool, 0)
		lookup[r] = perm
	}
	return lookup
}

// otherBases returns the 4 bases of baseAlphabet other than row r, in
// baseAlphabet order.
func otherBases(r int) []byte {
	out := make([]byte, 0, 4)
	for i := 0; i < len(baseAlphabet); i++ {
		if i == r {
			continue
		}
		out = append(out, baseAlphabet[i])
	}
	return out
}

func pickAndRemove(pool *[]byte, idx int) byte {
	if idx >= len(*pool) {
		idx = len(*pool) - 1
	}
	v := (*pool)[idx]
	*pool = append((*pool)[:idx], (*pool)[idx+1:]...)
	return v
}

// RefBaseRow maps an uppercase reference base letter to its substitution
// matrix row index, defaulting to the N row (4) for any unrecognized byte.
func RefBaseRow(b byte) int {
	switch b {
	case 'A':
		return 0
	case 'C':
		return 1
	case 'G':
		return 2
	case 'T':
		return 3
	default:
		return 4
	}
}
