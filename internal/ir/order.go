package ir

import (
	"slices"
	"strconv"
	"strings"
)

// CompareModuleIDs orders module ids deterministically.
//
// Two ids that both parse as base-10 integers compare numerically, so the
// loader's numeric ids sort 2 < 10. Anything else compares bytewise, and
// numeric ids sort before non-numeric ones.
func CompareModuleIDs(a, b ModuleID) int {
	an, aErr := strconv.ParseInt(string(a), 10, 64)
	bn, bErr := strconv.ParseInt(string(b), 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return strings.Compare(string(a), string(b))
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	default:
		return strings.Compare(string(a), string(b))
	}
}

// SortModuleIDs sorts ids in place using CompareModuleIDs.
func SortModuleIDs(ids []ModuleID) {
	slices.SortFunc(ids, CompareModuleIDs)
}
