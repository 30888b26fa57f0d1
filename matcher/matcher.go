// Package matcher streams longest-match candidates from a suffix
// array against a second buffer: given T_old's suffix array, T_new,
// and a minimum match length L, it walks T_new left to right and
// emits (oldPos, newPos, length) whenever the match at the current
// position is good enough to be worth a control entry, or once a
// cumulative n² guard forces progress regardless.
//
// The core loop (the scsc/oldscore bookkeeping below) is the search
// loop from Colin Percival's bsdiff, carried over unchanged: a rolling
// count of how many bytes of T_new already matched T_old under the
// *previous* emitted match's offset, so the decision to emit a new
// match only fires once it beats that baseline by more than L bytes.
package matcher

import (
	"bytes"
	"context"
)

// GuardBudget is the n² guard: once the cumulative match length seen
// across a Matcher's lifetime exceeds this many bytes, the next
// candidate is emitted regardless of how it scores against the
// rolling baseline, to guarantee forward progress on pathological
// inputs.
const GuardBudget = 1 << 26

// DefaultMinLength is the match length threshold L used when the
// caller doesn't override it.
const DefaultMinLength = 16

// Matcher streams matches of newb against old, using old's suffix
// array sa. Not safe for concurrent use; a single Matcher drives a
// single bsdiff run.
type Matcher struct {
	sa        []int32
	old       []byte
	newb      []byte
	minLength int

	scan       int
	pendingLen int
	lastOffset int
	cumMatch   int64
}

// New creates a Matcher. sa must be a suffix array of old (as built by
// package suffixarray). minLength <= 0 uses DefaultMinLength.
func New(sa []int32, old, newb []byte, minLength int) *Matcher {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}

	return &Matcher{sa: sa, old: old, newb: newb, minLength: minLength}
}

// SetLastOffset updates the old-minus-new offset the rolling score is
// measured against. The bsdiff writer calls this after finalizing the
// extended boundaries of the previously emitted match, since the
// match this Matcher found may not be the one ultimately recorded
// once backward/forward extension and overlap arbitration run.
func (m *Matcher) SetLastOffset(offset int) { m.lastOffset = offset }

// Next returns the next match. ok is false once a previous call's
// match already reached the end of newb, meaning there is nothing
// left to scan. err is non-nil only if ctx is canceled mid-scan.
//
// Every call that does scan at least one position returns ok=true,
// including the final one where the scan exhausts newb without ever
// tripping the emit condition below: that call still reports
// whatever (pos, length) its last search found, at newPos == len(newb),
// so the caller's trailing extra-bytes bookkeeping has a well-defined
// end boundary to work from, matching bsdiff's own handling of the
// scan-reaches-newsize case as just another iteration of the same loop.
func (m *Matcher) Next(ctx context.Context) (oldPos, newPos, length int, ok bool, err error) {
	m.scan += m.pendingLen
	if m.scan >= len(m.newb) {
		return 0, 0, 0, false, nil
	}

	scsc := m.scan
	oldscore := 0
	var pos, curLen int

	for ; m.scan < len(m.newb); m.scan++ {
		select {
		case <-ctx.Done():
			return 0, 0, 0, false, ctx.Err()
		default:
		}

		pos, curLen = m.search(m.newb[m.scan:])

		for ; scsc < m.scan+curLen; scsc++ {
			if m.matchesAtOffset(scsc) {
				oldscore++
			}
		}

		m.cumMatch += int64(curLen)

		if curLen > oldscore+m.minLength || m.cumMatch > GuardBudget {
			break
		}

		if curLen == oldscore && curLen != 0 {
			// The previous offset already explains every byte of this
			// match: skip past it and restart the rolling count (the
			// loop's increment supplies the match's last byte).
			m.scan += curLen - 1
			oldscore = 0
			continue
		}

		if m.matchesAtOffset(m.scan) {
			oldscore--
		}
	}

	m.pendingLen = curLen

	return pos, m.scan, curLen, true, nil
}

// matchesAtOffset reports whether new[i] equals old[i+lastOffset],
// the per-byte test the rolling score is built from.
func (m *Matcher) matchesAtOffset(i int) bool {
	j := i + m.lastOffset

	return j >= 0 && j < len(m.old) && i < len(m.newb) && m.old[j] == m.newb[i]
}

// search binary-searches sa for the old suffix with the longest common
// prefix with newSuffix, mirroring bsdiff's search(): narrow to a
// 2-wide window by lexicographic comparison, then pick whichever
// boundary suffix matches longer.
func (m *Matcher) search(newSuffix []byte) (pos, length int) {
	if len(m.sa) == 0 {
		return 0, 0
	}
	if len(m.sa) == 1 {
		return int(m.sa[0]), matchLen(m.old[m.sa[0]:], newSuffix)
	}

	st, en := 0, len(m.sa)-1
	for en-st >= 2 {
		mid := st + (en-st)/2
		if bytes.Compare(m.old[m.sa[mid]:], newSuffix) < 0 {
			st = mid
		} else {
			en = mid
		}
	}

	lx := matchLen(m.old[m.sa[st]:], newSuffix)
	ly := matchLen(m.old[m.sa[en]:], newSuffix)
	if lx > ly {
		return int(m.sa[st]), lx
	}

	return int(m.sa[en]), ly
}

func matchLen(a, b []byte) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}

	return n
}
