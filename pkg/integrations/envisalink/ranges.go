package envisalink

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseRangeString parses zone and partition specs like "1-8,16-29" into a
// sorted set. Every number must lie within [min, max]. It returns false for
// empty or malformed specs.
func ParseRangeString(sequence string, min int, max int) ([]int, bool) {
	if sequence == "" {
		return nil, false
	}
	for _, c := range sequence {
		if !strings.ContainsRune("1234567890,- ", c) {
			return nil, false
		}
	}
	sequence = strings.ReplaceAll(sequence, " ", "")

	set := map[int]struct{}{}
	for _, segment := range strings.Split(sequence, ",") {
		bounds := strings.Split(segment, "-")
		numbers := make([]int, 0, len(bounds))
		for _, b := range bounds {
			n, err := strconv.Atoi(b)
			if err != nil || n < min || n > max {
				return nil, false
			}
			numbers = append(numbers, n)
		}
		switch len(numbers) {
		case 1:
			set[numbers[0]] = struct{}{}
		case 2:
			// A reversed range contributes nothing.
			for i := numbers[0]; i <= numbers[1]; i++ {
				set[i] = struct{}{}
			}
		default:
			return nil, false
		}
	}
	if len(set) == 0 {
		return nil, false
	}

	result := make([]int, 0, len(set))
	for n := range set {
		result = append(result, n)
	}
	sort.Ints(result)
	return result, true
}

// GenerateRangeString is the inverse of ParseRangeString: consecutive runs
// are collapsed into "A-B" segments.
func GenerateRangeString(numbers []int) string {
	if len(numbers) == 0 {
		return ""
	}
	sorted := append([]int{}, numbers...)
	sort.Ints(sorted)

	segments := []string{}
	start, prev := sorted[0], sorted[0]
	flush := func() {
		if start == prev {
			segments = append(segments, strconv.Itoa(start))
		} else {
			segments = append(segments, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, n := range sorted[1:] {
		if n == prev {
			continue
		}
		if n == prev+1 {
			prev = n
			continue
		}
		flush()
		start, prev = n, n
	}
	flush()
	return strings.Join(segments, ",")
}
