package analytics

import (
	"fmt"
	"math"
	"sort"
)

// dataset is a training design matrix with, per feature, the row indices of
// defined values in ascending order and the rows where the value is missing.
// It is read-only once built and shared by every tree of a fit.
type dataset struct {
	X       [][]float64
	sorted  [][]int
	missing [][]int
}

func newDataset(X [][]float64) (*dataset, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("empty training set")
	}
	nf := len(X[0])
	if nf == 0 {
		return nil, fmt.Errorf("training set has no features")
	}
	d := &dataset{X: X, sorted: make([][]int, nf), missing: make([][]int, nf)}
	for i, row := range X {
		if len(row) != nf {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), nf)
		}
	}
	for f := 0; f < nf; f++ {
		for i, row := range X {
			if math.IsNaN(row[f]) {
				d.missing[f] = append(d.missing[f], i)
			} else {
				d.sorted[f] = append(d.sorted[f], i)
			}
		}
		idx := d.sorted[f]
		sort.SliceStable(idx, func(a, b int) bool { return X[idx[a]][f] < X[idx[b]][f] })
	}
	return d, nil
}

func (d *dataset) rows() int     { return len(d.X) }
func (d *dataset) features() int { return len(d.sorted) }

// treeParams controls growth. maxDepth 0 grows until no split improves the loss.
type treeParams struct {
	maxDepth       int
	minChildWeight float64
	lambda         float64
}

type treeNode struct {
	leaf        bool
	value       float64
	feature     int
	threshold   float64
	defaultLeft bool
	left, right int32
}

// regTree is a binary regression tree stored as a flat node array, root at 0.
// Rows with value < threshold go left; missing values follow defaultLeft.
type regTree struct {
	nodes []treeNode
}

func (t *regTree) predict(x []float64) float64 {
	i := int32(0)
	for {
		n := &t.nodes[i]
		if n.leaf {
			return n.value
		}
		v := x[n.feature]
		left := n.defaultLeft
		if !math.IsNaN(v) {
			left = v < n.threshold
		}
		if left {
			i = n.left
		} else {
			i = n.right
		}
	}
}

func (t *regTree) depth() int {
	var walk func(i int32) int
	walk = func(i int32) int {
		n := t.nodes[i]
		if n.leaf {
			return 0
		}
		return 1 + max(walk(n.left), walk(n.right))
	}
	return walk(0)
}

// treeBuilder grows one tree fitting target with per-row weights. A weight of
// zero excludes the row; an integer weight above one counts a bootstrap
// duplicate. Leaf values minimize weighted squared error with L2 penalty lambda:
// sum(w*target)/(sum(w)+lambda).
type treeBuilder struct {
	d      *dataset
	target []float64
	weight []float64
	feats  []int
	p      treeParams
	member []int32
	stamps int32
	nodes  []treeNode
}

type split struct {
	gain        float64
	feature     int
	threshold   float64
	defaultLeft bool
}

func growTree(d *dataset, target, weight []float64, feats []int, p treeParams) *regTree {
	b := &treeBuilder{
		d:      d,
		target: target,
		weight: weight,
		feats:  feats,
		p:      p,
		member: make([]int32, d.rows()),
	}
	rows := make([]int, 0, d.rows())
	for i, w := range weight {
		if w > 0 {
			rows = append(rows, i)
		} else {
			b.member[i] = -1
		}
	}
	b.grow(rows, b.stamp(), 0)
	return &regTree{nodes: b.nodes}
}

func (b *treeBuilder) stamp() int32 {
	s := b.stamps
	b.stamps++
	return s
}

func (b *treeBuilder) grow(rows []int, stamp int32, depth int) int32 {
	idx := int32(len(b.nodes))
	b.nodes = append(b.nodes, treeNode{leaf: true})

	sum, cnt := 0.0, 0.0
	for _, r := range rows {
		sum += b.weight[r] * b.target[r]
		cnt += b.weight[r]
	}
	value := 0.0
	if cnt+b.p.lambda > 0 {
		value = sum / (cnt + b.p.lambda)
	}

	depthReached := b.p.maxDepth > 0 && depth >= b.p.maxDepth
	if depthReached || cnt < 2*b.p.minChildWeight || len(rows) < 2 {
		b.nodes[idx].value = value
		return idx
	}
	best, ok := b.bestSplit(stamp, sum, cnt)
	if !ok {
		b.nodes[idx].value = value
		return idx
	}

	var left, right []int
	for _, r := range rows {
		v := b.d.X[r][best.feature]
		goLeft := best.defaultLeft
		if !math.IsNaN(v) {
			goLeft = v < best.threshold
		}
		if goLeft {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	ls, rs := b.stamp(), b.stamp()
	for _, r := range left {
		b.member[r] = ls
	}
	for _, r := range right {
		b.member[r] = rs
	}
	l := b.grow(left, ls, depth+1)
	r := b.grow(right, rs, depth+1)
	b.nodes[idx] = treeNode{
		feature:     best.feature,
		threshold:   best.threshold,
		defaultLeft: best.defaultLeft,
		left:        l,
		right:       r,
	}
	return idx
}

// bestSplit scans every candidate threshold of every allowed feature. Missing
// values are tried on both sides and the better direction becomes the default.
func (b *treeBuilder) bestSplit(stamp int32, sum, cnt float64) (split, bool) {
	lambda, mcw := b.p.lambda, b.p.minChildWeight
	score := func(s, c float64) float64 { return s * s / (c + lambda) }
	parent := score(sum, cnt)

	best := split{}
	found := false
	consider := func(ls, lc, rs, rc float64, f int, thr float64, defLeft bool) {
		if lc < mcw || rc < mcw || lc == 0 || rc == 0 {
			return
		}
		gain := score(ls, lc) + score(rs, rc) - parent
		if gain > best.gain {
			best = split{gain: gain, feature: f, threshold: thr, defaultLeft: defLeft}
			found = true
		}
	}

	for _, f := range b.feats {
		mSum, mCnt := 0.0, 0.0
		for _, r := range b.d.missing[f] {
			if b.member[r] == stamp {
				mSum += b.weight[r] * b.target[r]
				mCnt += b.weight[r]
			}
		}
		dSum, dCnt := sum-mSum, cnt-mCnt

		lSum, lCnt := 0.0, 0.0
		prev := -1
		for _, r := range b.d.sorted[f] {
			if b.member[r] != stamp {
				continue
			}
			if prev >= 0 {
				pv, cv := b.d.X[prev][f], b.d.X[r][f]
				if cv > pv {
					thr := pv/2 + cv/2
					if thr <= pv {
						thr = cv
					}
					rSum, rCnt := dSum-lSum, dCnt-lCnt
					consider(lSum+mSum, lCnt+mCnt, rSum, rCnt, f, thr, true)
					if mCnt > 0 {
						consider(lSum, lCnt, rSum+mSum, rCnt+mCnt, f, thr, false)
					}
				}
			}
			lSum += b.weight[r] * b.target[r]
			lCnt += b.weight[r]
			prev = r
		}
	}
	return best, found
}
