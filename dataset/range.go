package dataset

import (
	"fmt"

	"github.com/pkg/errors"
)

// Range is a half-open interval of row positions [From, To).
type Range struct {
	From int64
	To   int64
}

func Pick(from, to int64) Range {
	return Range{From: from, To: to}
}

func (r Range) Len() int64 { return r.To - r.From }

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.From, r.To)
}

// ValidateRanges checks that ranges are non-empty, contiguous, start at
// zero and end at numRows. An empty table is covered by the single range [0, 0).
func ValidateRanges(ranges []Range, numRows int64) error {
	if len(ranges) == 0 {
		return errors.New("no ranges")
	}
	if numRows == 0 {
		if len(ranges) != 1 || ranges[0] != Pick(0, 0) {
			return errors.Errorf("empty table must be covered by [0, 0), got %v", ranges)
		}
		return nil
	}

	var cursor int64
	for i, r := range ranges {
		if r.From != cursor {
			return errors.Errorf("range %d %s does not start at %d", i, r, cursor)
		}
		if r.Len() <= 0 {
			return errors.Errorf("range %d %s is empty", i, r)
		}
		cursor = r.To
	}
	if cursor != numRows {
		return errors.Errorf("ranges end at %d, table has %d rows", cursor, numRows)
	}
	return nil
}
