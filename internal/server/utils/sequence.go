package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"kestrel/internal/mailstore"
)

// ErrBadSelector is returned for sequence sets that do not parse
var ErrBadSelector = errors.New("invalid message selector")

// Bound is one end of a sequence range; Star stands for the largest value
// in the mailbox (message count or highest UID).
type Bound struct {
	Value uint64
	Star  bool
}

func (b Bound) resolve(max uint64) uint64 {
	if b.Star {
		return max
	}
	return b.Value
}

func (b Bound) String() string {
	if b.Star {
		return "*"
	}
	return strconv.FormatUint(b.Value, 10)
}

// SeqRange is a single number (From == To) or an inclusive range A:B
type SeqRange struct {
	From, To Bound
}

// SequenceSet is a parsed comma separated selector such as "1,3:5,7:*"
type SequenceSet []SeqRange

// ParseSequenceSet parses a selector made of numbers, "*" and ranges A:B
func ParseSequenceSet(s string) (SequenceSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty selector: %w", ErrBadSelector)
	}

	var set SequenceSet
	for _, item := range strings.Split(s, ",") {
		lo, hi, isRange := strings.Cut(item, ":")
		from, err := parseBound(lo)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", item, err)
		}
		to := from
		if isRange {
			if to, err = parseBound(hi); err != nil {
				return nil, fmt.Errorf("%q: %w", item, err)
			}
		}
		set = append(set, SeqRange{From: from, To: to})
	}
	return set, nil
}

func parseBound(s string) (Bound, error) {
	if s == "*" {
		return Bound{Star: true}, nil
	}
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return Bound{}, ErrBadSelector
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return Bound{}, ErrBadSelector
	}
	return Bound{Value: n}, nil
}

// HasStar reports whether any bound of the set is "*"
func (set SequenceSet) HasStar() bool {
	for _, r := range set {
		if r.From.Star || r.To.Star {
			return true
		}
	}
	return false
}

func (set SequenceSet) String() string {
	items := make([]string, len(set))
	for i, r := range set {
		if r.From == r.To {
			items[i] = r.From.String()
		} else {
			items[i] = r.From.String() + ":" + r.To.String()
		}
	}
	return strings.Join(items, ",")
}

// contains reports whether n lies in any range once "*" is replaced by max.
// Ranges are order independent: 5:2 is the same as 2:5.
func (set SequenceSet) contains(n, max uint64) bool {
	for _, r := range set {
		lo, hi := r.From.resolve(max), r.To.resolve(max)
		if lo > hi {
			lo, hi = hi, lo
		}
		if n >= lo && n <= hi {
			return true
		}
	}
	return false
}

// upper returns the largest position the set can address
func (set SequenceSet) upper(max uint64) uint64 {
	var top uint64
	for _, r := range set {
		lo, hi := r.From.resolve(max), r.To.resolve(max)
		if lo > top {
			top = lo
		}
		if hi > top {
			top = hi
		}
	}
	return top
}

// ResolveSeq selects entries by 1-based position within snap, in
// enumeration order. The scan ends after the highest addressed position, and
// each position is returned at most once.
func ResolveSeq(set SequenceSet, snap mailstore.Snapshot) []mailstore.Entry {
	count := uint64(snap.Len())
	top := set.upper(count)

	var out []mailstore.Entry
	for _, e := range snap {
		pos := uint64(e.Seq)
		if pos > top {
			break
		}
		if set.contains(pos, count) {
			out = append(out, e)
		}
	}
	return out
}

// ResolveUID selects entries whose UID lies in the set, in enumeration
// order. UIDs absent from the snapshot are skipped.
func ResolveUID(set SequenceSet, snap mailstore.Snapshot) []mailstore.Entry {
	maxUID := snap.MaxUID()

	var out []mailstore.Entry
	for _, e := range snap {
		if set.contains(e.UID, maxUID) {
			out = append(out, e)
		}
	}
	return out
}
