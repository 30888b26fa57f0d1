// Package suffixarray builds the suffix array bsdiff's matcher
// searches, following divsufsort 2.0's two-stage construction.
//
// Stage one classifies every suffix as S-type or L-type (the classic
// induced-sorting classification: suffix i is S-type iff T[i:] is
// lexicographically smaller than T[i+1:], treating the position past
// the last byte as an implicit, unique smallest character, which makes
// the final real byte's suffix always L-type) and collects the
// B*-positions, the S-type positions immediately preceded by an
// L-type position. B*-positions are bucket-sorted by their leading
// byte.
//
// Stage two, sssort, sorts the B*-substrings within each bucket — each
// substring running from a B*-position to the following one inclusive
// (or to the end of the text for the last one) — in suffix order
// (see cmpSubstr), using an iterative, stack-bounded ternary
// quicksort above InsertionThreshold and insertion sort at or below it.
// Any B*-substrings sssort leaves tied (byte-identical over their
// bounded span) are resolved by trsort, which treats the sorted bucket
// ranks as a reduced string — one "character" per B*-position, in text
// order — and runs prefix-doubling rank refinement (the tandem
// repeat / Larsson-Sadakane technique divsufsort's own trsort
// implements) until every B*-suffix has a distinct, final rank. This
// is the one documented substitution: divsufsort's trsort resolves
// ties through a group-local worklist against SA/ISA; rank-doubling
// over the reduced string is the same algorithm restated non-
// recursively and is what this package builds instead.
//
// With every B*-suffix in its true final order, they are placed at
// the tails of their single-byte buckets and the rest of the array is
// filled by the standard two-pass induced sort (L-type suffixes
// left to right, then S-type suffixes right to left), seeding the
// last real byte's suffix manually since this package does not
// materialize divsufsort's trailing sentinel.
//
// divsufsort's own "offset by one" SA layout artifact carries no
// algorithmic consequence worth preserving and is dropped: Build
// returns a plain 0-based []int32 permutation of [0, n), exactly the
// object the matcher needs.
package suffixarray

import (
	"bytes"
	"context"
	"sort"

	"github.com/patchkit/archivepatch/errs"
	"github.com/patchkit/archivepatch/internal/pool"
)

// InsertionThreshold is the suffix (and substring-sort run) count at
// or below which this package uses a direct insertion-style comparison
// sort instead of bucket-sort-then-sssort-then-trsort.
const InsertionThreshold = 8

// ssBlockSize bounds the partition size above which sssort's pivot
// selection switches from median-of-three to a sampled median sized by
// approxIsqrt, mirroring divsufsort's large-partition sampling.
const ssBlockSize = 1024

// Stack sizes for sssort's and trsort's explicit, non-recursive
// partition work, matching divsufsort's own named tuning constants.
const (
	ssStackSize     = 16 // sssort's explicit quicksort task stack
	smergeStackSize = 32 // sssort's large-partition pivot sample count
	trStackSize     = 64 // sssort's introsort recursion-depth budget
)

// lgTable is divsufsort's floor(log2(i)) lookup table, used to budget
// sssort's introsort recursion-depth limit without a runtime log call.
var lgTable = [256]int{
	-1, 0, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 3, 3, 3, 3,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5,
	5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
}

// sqqTable is divsufsort's sqrt(i)*16 lookup table, used by
// approxIsqrt to size sssort's large-partition pivot sample without a
// floating-point sqrt.
var sqqTable = [256]int{
	0, 16, 22, 27, 32, 35, 39, 42, 45, 48, 50, 53, 55, 57, 59, 61,
	64, 65, 67, 69, 71, 73, 75, 76, 78, 80, 81, 83, 84, 86, 87, 89,
	90, 91, 93, 94, 96, 97, 98, 99, 101, 102, 103, 104, 106, 107, 108, 109,
	110, 112, 113, 114, 115, 116, 117, 118, 119, 120, 121, 122, 123, 124, 125, 126,
	128, 128, 129, 130, 131, 132, 133, 134, 135, 136, 137, 138, 139, 140, 141, 142,
	143, 144, 144, 145, 146, 147, 148, 149, 150, 151, 151, 152, 153, 154, 155, 155,
	156, 157, 158, 159, 160, 160, 161, 162, 163, 163, 164, 165, 166, 167, 167, 168,
	169, 170, 170, 171, 172, 173, 173, 174, 175, 176, 176, 177, 178, 178, 179, 180,
	181, 181, 182, 183, 183, 184, 185, 185, 186, 187, 187, 188, 189, 189, 190, 191,
	192, 192, 193, 193, 194, 195, 195, 196, 197, 197, 198, 199, 199, 200, 201, 201,
	202, 203, 203, 204, 204, 205, 206, 206, 207, 208, 208, 209, 209, 210, 211, 211,
	212, 212, 213, 214, 214, 215, 215, 216, 217, 217, 218, 218, 219, 219, 220, 221,
	221, 222, 222, 223, 224, 224, 225, 225, 226, 226, 227, 227, 228, 229, 229, 230,
	230, 231, 231, 232, 232, 233, 234, 234, 235, 235, 236, 236, 237, 237, 238, 238,
	239, 240, 240, 241, 241, 242, 242, 243, 243, 244, 244, 245, 245, 246, 246, 247,
	247, 248, 248, 249, 249, 250, 250, 251, 251, 252, 252, 253, 253, 254, 254, 255,
}

// maxLength is the hard upper bound this package enforces: reject any
// n where 4*(n+1) >= 2^31, keeping the array's in-memory footprint
// (4 bytes/entry) under 2GiB.
const maxLength = (1<<31)/4 - 2

// CheckLength reports errs.ErrInputTooLarge if n would violate the
// 2GiB suffix-array layout bound (4 bytes/entry), without requiring
// the caller to have allocated a buffer of that size first.
func CheckLength(n int) error {
	if 4*(int64(n)+1) >= 1<<31 || n > maxLength {
		return errs.ErrInputTooLarge
	}

	return nil
}

// Array owns a suffix array's backing storage for the lifetime of one
// bsdiff run. Release returns that storage to the shared pool
// (internal/pool) so later builds can reuse it.
type Array struct {
	sa      []int32
	release func()
}

// SA returns the built suffix array: a permutation of [0, n) such
// that T[SA[i]:] <= T[SA[i+1]:] lexicographically for all i.
func (a *Array) SA() []int32 { return a.sa }

// Len returns len(SA()).
func (a *Array) Len() int { return len(a.sa) }

// Release returns the array's backing storage to the pool. The Array
// must not be used afterward.
func (a *Array) Release() {
	if a.release != nil {
		a.release()
		a.release = nil
	}
	a.sa = nil
}

// Build constructs the suffix array of t, the input the matcher will
// binary-search against. It returns errs.ErrInputTooLarge for inputs
// over the 2GiB layout bound, and respects ctx cancellation once per
// bucket during sssort and once per doubling round during trsort,
// this algorithm's natural checkpoints for cooperative cancellation.
func Build(ctx context.Context, t []byte) (*Array, error) {
	n := len(t)
	if err := CheckLength(n); err != nil {
		return nil, err
	}

	sa, release := pool.GetInt32Slice(n)

	if n <= InsertionThreshold {
		for i := range sa {
			sa[i] = int32(i)
		}
		sortByDirectComparison(t, sa)
		return &Array{sa: sa, release: release}, nil
	}

	if err := sortByDivSufSort(ctx, t, sa); err != nil {
		release()
		return nil, err
	}

	return &Array{sa: sa, release: release}, nil
}

// sortByDirectComparison sorts sa by plain suffix comparison; used
// for inputs small enough that bucketing isn't worth it, and as the
// fallback when no B*-position exists at all (every suffix is
// S-type, e.g. a non-decreasing byte run).
func sortByDirectComparison(t []byte, sa []int32) {
	sort.Slice(sa, func(i, j int) bool {
		return lessSuffix(t, sa[i], sa[j])
	})
}

func lessSuffix(t []byte, a, b int32) bool {
	for int(a) < len(t) && int(b) < len(t) {
		if t[a] != t[b] {
			return t[a] < t[b]
		}
		a++
		b++
	}

	return int(a) >= len(t) && int(b) < len(t)
}

// sortByDivSufSort builds sa via the bucket-sort / sssort / trsort /
// induce pipeline described in the package doc comment.
func sortByDivSufSort(ctx context.Context, t []byte, sa []int32) error {
	n := len(t)
	for i := range sa {
		sa[i] = -1
	}

	isS := classifyTypes(t)
	bStar := findBStarPositions(isS)
	bucketStart, bucketEnd := bucketBoundaries(t)

	if len(bStar) == 0 {
		for i := range sa {
			sa[i] = int32(i)
		}
		sortByDirectComparison(t, sa)
		return nil
	}

	groups := groupBStarByByte(t, bStar)
	for c := 0; c < 256; c++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if len(groups[c]) > 1 {
			sssort(t, bStar, groups[c])
		}
	}

	m := len(bStar)
	rank, releaseRank := pool.GetInt32Slice(m)
	defer releaseRank()

	var cur int32 = -1
	for c := 0; c < 256; c++ {
		g := groups[c]
		for gi, idx := range g {
			if gi == 0 || cmpSubstr(t, bStar, g[gi-1], idx) != 0 {
				cur++
			}
			rank[idx] = cur
		}
	}

	if err := trsort(ctx, rank); err != nil {
		return err
	}

	sortedBStarIdx, releaseSorted := pool.GetInt32Slice(m)
	defer releaseSorted()
	for i, r := range rank {
		sortedBStarIdx[r] = int32(i)
	}

	tail := bucketEnd
	for i := m - 1; i >= 0; i-- {
		pos := bStar[sortedBStarIdx[i]]
		c := t[pos]
		tail[c]--
		sa[tail[c]] = pos
	}

	// The last real byte's suffix is always L-type (nothing follows it
	// but the implicit, unique smallest character) and is never a
	// B*-position, so it has no other source of placement.
	head := bucketStart
	last := t[n-1]
	sa[head[last]] = int32(n - 1)
	head[last]++

	for i := 0; i < n; i++ {
		if sa[i] < 0 {
			continue
		}
		p := sa[i] - 1
		if p < 0 {
			continue
		}
		if !isS[p] {
			c := t[p]
			sa[head[c]] = p
			head[c]++
		}
	}

	tailS := bucketEnd
	for i := n - 1; i >= 0; i-- {
		if sa[i] < 0 {
			continue
		}
		p := sa[i] - 1
		if p < 0 {
			continue
		}
		if isS[p] {
			c := t[p]
			tailS[c]--
			sa[tailS[c]] = p
		}
	}

	return nil
}

// classifyTypes returns, for each position in t, whether its suffix is
// S-type (true) or L-type (false). The position past the last byte is
// treated as an implicit, unique smallest character, which is why the
// last real position is always L-type.
func classifyTypes(t []byte) []bool {
	n := len(t)
	isS := make([]bool, n)
	if n == 0 {
		return isS
	}

	isS[n-1] = false
	for i := n - 2; i >= 0; i-- {
		switch {
		case t[i] < t[i+1]:
			isS[i] = true
		case t[i] > t[i+1]:
			isS[i] = false
		default:
			isS[i] = isS[i+1]
		}
	}

	return isS
}

// findBStarPositions returns, in ascending text order, every position
// whose suffix is S-type and whose predecessor's suffix is L-type.
func findBStarPositions(isS []bool) []int32 {
	var bStar []int32
	for i := 1; i < len(isS); i++ {
		if isS[i] && !isS[i-1] {
			bStar = append(bStar, int32(i))
		}
	}

	return bStar
}

// bucketBoundaries returns, per byte value, the half-open [start, end)
// range that byte's suffixes occupy in a fully sorted SA.
func bucketBoundaries(t []byte) (start, end [256]int32) {
	var count [256]int32
	for _, b := range t {
		count[b]++
	}

	var sum int32
	for c := 0; c < 256; c++ {
		start[c] = sum
		sum += count[c]
		end[c] = sum
	}

	return start, end
}

// groupBStarByByte buckets B*-positions (by index into bStar) by their
// leading byte.
func groupBStarByByte(t []byte, bStar []int32) [256][]int32 {
	var groups [256][]int32
	for idx, pos := range bStar {
		c := t[pos]
		groups[c] = append(groups[c], int32(idx))
	}

	return groups
}

// substrBounds returns the [start, end) byte range of the B*-substring
// at bStar[idx]: from that position through the following B*-position
// inclusive, or through the end of t for the last one.
func substrBounds(bStar []int32, idx int32, n int) (start, end int) {
	start = int(bStar[idx])
	if int(idx)+1 < len(bStar) {
		end = int(bStar[idx+1]) + 1
		if end > n {
			end = n
		}
	} else {
		end = n
	}

	return start, end
}

// cmpSubstr compares the B*-substrings at bStar indices a and b in the
// order of the suffixes they start. Substrings that differ within their
// common length compare lexicographically. When one's bytes are a
// prefix of the other's, the last substring (running to the end of t)
// sorts first; otherwise the longer one does, because the shorter one
// ends on an S-type byte where the longer continues with an L-type byte
// of the same value. Equal-length non-last substrings tie.
func cmpSubstr(t []byte, bStar []int32, a, b int32) int {
	sa, ea := substrBounds(bStar, a, len(t))
	sb, eb := substrBounds(bStar, b, len(t))

	k := min(ea-sa, eb-sb)
	if bytes.Equal(t[sa:sa+k], t[sb:sb+k]) {
		switch {
		case ea == eb:
			return 0
		case ea == len(t):
			return -1
		case eb == len(t):
			return 1
		case ea-sa == eb-sb:
			return 0
		case ea-sa > eb-sb:
			return -1
		default:
			return 1
		}
	}

	return bytes.Compare(t[sa:ea], t[sb:eb])
}

// sssort sorts group (indices into bStar, sharing a leading byte) by
// B*-substring, insertion-sorting runs at or below InsertionThreshold
// and otherwise running an iterative, stack-bounded ternary quicksort.
func sssort(t []byte, bStar, group []int32) {
	if len(group) <= InsertionThreshold {
		insertionSortGroup(t, bStar, group)
		return
	}

	type task struct{ lo, hi, depth int }

	stack := make([]task, 0, ssStackSize)
	stack = append(stack, task{0, len(group), introsortDepthLimit(len(group))})

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		lo, hi, depth := top.lo, top.hi, top.depth

		for {
			n := hi - lo
			if n <= InsertionThreshold || depth <= 0 {
				insertionSortGroup(t, bStar, group[lo:hi])
				break
			}

			pivot := choosePivot(t, bStar, group, lo, hi)
			lt, gt := partition3(t, bStar, group, lo, hi, pivot)
			depth--

			if lt-lo < hi-gt {
				if lt > lo {
					stack = append(stack, task{lo, lt, depth})
				}
				lo = gt
			} else {
				if hi > gt {
					stack = append(stack, task{gt, hi, depth})
				}
				hi = lt
			}
		}
	}
}

func insertionSortGroup(t []byte, bStar, group []int32) {
	for i := 1; i < len(group); i++ {
		v := group[i]
		j := i - 1
		for j >= 0 && cmpSubstr(t, bStar, group[j], v) > 0 {
			group[j+1] = group[j]
			j--
		}
		group[j+1] = v
	}
}

// choosePivot picks a pivot value (a bStar index) for group[lo:hi]:
// median-of-three for ordinary partitions, a sampled median sized by
// approxIsqrt (capped at smergeStackSize samples) once a partition
// exceeds ssBlockSize.
func choosePivot(t []byte, bStar, group []int32, lo, hi int) int32 {
	n := hi - lo
	if n <= ssBlockSize {
		mid := lo + n/2
		return medianOf3(t, bStar, group, lo, mid, hi-1)
	}

	samples := approxIsqrt(n)
	if samples > smergeStackSize {
		samples = smergeStackSize
	}
	if samples < 3 {
		samples = 3
	}

	stride := n / samples
	if stride == 0 {
		stride = 1
	}

	picked := make([]int32, 0, samples)
	for i := 0; i < samples && lo+i*stride < hi; i++ {
		picked = append(picked, group[lo+i*stride])
	}
	sort.Slice(picked, func(i, j int) bool {
		return cmpSubstr(t, bStar, picked[i], picked[j]) < 0
	})

	return picked[len(picked)/2]
}

func medianOf3(t []byte, bStar, group []int32, a, b, c int) int32 {
	va, vb, vc := group[a], group[b], group[c]
	if cmpSubstr(t, bStar, va, vb) > 0 {
		va, vb = vb, va
	}
	if cmpSubstr(t, bStar, vb, vc) > 0 {
		vb, vc = vc, vb
	}
	if cmpSubstr(t, bStar, va, vb) > 0 {
		va, vb = vb, va
	}

	return vb
}

// partition3 performs a Dutch-flag 3-way partition of group[lo:hi]
// against pivot, returning the [lt, gt) range equal to pivot.
func partition3(t []byte, bStar, group []int32, lo, hi int, pivot int32) (lt, gt int) {
	lt = lo
	i := lo
	gt = hi

	for i < gt {
		switch c := cmpSubstr(t, bStar, group[i], pivot); {
		case c < 0:
			group[lt], group[i] = group[i], group[lt]
			lt++
			i++
		case c > 0:
			gt--
			group[i], group[gt] = group[gt], group[i]
		default:
			i++
		}
	}

	return lt, gt
}

// introsortDepthLimit bounds sssort's explicit-stack recursion depth
// at roughly 2*log2(n), capped at trStackSize, falling back to
// insertion sort once exhausted rather than risking quadratic blowup
// on an adversarial ordering.
func introsortDepthLimit(n int) int {
	limit := 2 * approxLog2(n)
	if limit > trStackSize {
		limit = trStackSize
	}
	if limit < 1 {
		limit = 1
	}

	return limit
}

func approxLog2(n int) int {
	lg := 0
	for n > 255 {
		n >>= 8
		lg += 8
	}
	if n < 0 {
		return 0
	}

	return lg + lgTable[n]
}

func approxIsqrt(n int) int {
	if n <= 0 {
		return 0
	}
	if n < 256 {
		return sqqTable[n] >> 4
	}

	shift := 0
	x := n
	for x >= 256 {
		x >>= 2
		shift++
	}

	return (sqqTable[x] >> 4) << shift
}

// trsort resolves ties sssort left among B*-substrings by treating
// their per-bucket ranks as a reduced string (one character per
// B*-position, in text order) and running prefix-doubling rank
// refinement until every rank is distinct: divsufsort's own trsort is
// this same tandem repeat / Larsson-Sadakane technique, worked group
// by group against SA/ISA instead of as one global pass.
func trsort(ctx context.Context, rank []int32) error {
	m := len(rank)
	if m <= 1 {
		return nil
	}

	order, releaseOrder := pool.GetInt32Slice(m)
	defer releaseOrder()
	for i := range order {
		order[i] = int32(i)
	}

	next, releaseNext := pool.GetInt32Slice(m)
	defer releaseNext()

	rankAt := func(i int32, k int) int32 {
		j := int(i) + k
		if j >= m {
			return -1
		}

		return rank[j]
	}

	for k := 1; ; k *= 2 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sort.Slice(order, func(i, j int) bool {
			a, b := order[i], order[j]
			if rank[a] != rank[b] {
				return rank[a] < rank[b]
			}

			return rankAt(a, k) < rankAt(b, k)
		})

		next[order[0]] = 0
		for i := 1; i < m; i++ {
			prev, cur := order[i-1], order[i]
			same := rank[prev] == rank[cur] && rankAt(prev, k) == rankAt(cur, k)
			if same {
				next[cur] = next[prev]
			} else {
				next[cur] = next[prev] + 1
			}
		}
		copy(rank, next)

		if rank[order[m-1]] == int32(m-1) {
			return nil
		}
		if k >= m {
			return nil
		}
	}
}
