package services

import (
	"errors"
	"fmt"

	"github.com/fishset/fishdedup/config"
	"github.com/fishset/fishdedup/models"
)

var (
	ErrInvalidThreshold = errors.New("threshold must be between 0 and 100")
	ErrUnknownStrategy  = errors.New("unknown grouping strategy")
)

// PairProgress is called as comparisons advance. done and total are in the
// grouper's own unit: pairs for greedy, images for union-find.
type PairProgress func(done, total int64)

// Grouper partitions the keys of a FingerprintTable into groups of images
// whose similarity meets the threshold (a percentage, merge on >=).
type Grouper interface {
	Group(table *FingerprintTable, threshold float64) ([]models.Group, error)
}

func NewGrouper(strategy string, progress PairProgress) (Grouper, error) {
	switch strategy {
	case "", config.StrategyGreedy:
		return &GreedyGrouper{Progress: progress}, nil
	case config.StrategyUnionFind:
		return &UnionFindGrouper{Progress: progress}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// GreedyGrouper is the single-pass, first-match merge over all unordered
// pairs in table order. An image is marked used only when it joins a group
// as the second element of a pair; pairs touching a used image are skipped.
// The result depends on enumeration order and is not the same as connected
// components: given sim(a,b) and sim(b,c) above threshold but not sim(a,c),
// c stays alone because (b,c) is skipped once b is used.
type GreedyGrouper struct {
	Progress PairProgress
}

func (g *GreedyGrouper) Group(table *FingerprintTable, threshold float64) ([]models.Group, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}

	keys := table.Keys()
	n := len(keys)
	total := int64(n) * int64(n-1) / 2
	var done int64

	used := make(map[string]bool)
	var groups []*memberSet

	for i := 0; i < n; i++ {
		a := keys[i]
		fa := table.prints[a]
		for j := i + 1; j < n; j++ {
			b := keys[j]
			if used[a] || used[b] {
				continue
			}
			sim, err := fa.Similarity(table.prints[b])
			if err != nil {
				return nil, fmt.Errorf("comparing %s and %s: %w", a, b, err)
			}
			if sim < threshold {
				continue
			}

			merged := false
			for _, grp := range groups {
				if grp.has(a) || grp.has(b) {
					grp.add(a)
					grp.add(b)
					merged = true
					break
				}
			}
			if !merged {
				grp := newMemberSet()
				grp.add(a)
				grp.add(b)
				groups = append(groups, grp)
			}
			used[b] = true
		}

		done += int64(n - i - 1)
		if g.Progress != nil {
			g.Progress(done, total)
		}
	}

	return withSingletons(keys, groups), nil
}

// UnionFindGrouper merges every pair above threshold into connected
// components. Candidates come from a BK-tree so only fingerprints within the
// threshold's Hamming radius are compared.
type UnionFindGrouper struct {
	Progress PairProgress
}

func (g *UnionFindGrouper) Group(table *FingerprintTable, threshold float64) ([]models.Group, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}

	keys := table.Keys()
	n := len(keys)
	if n == 0 {
		return nil, nil
	}

	radius := maxDistance(threshold, table.prints[keys[0]].Bits())
	sets := newDisjointSet(n)
	tree := &bkTree{}

	for i, k := range keys {
		fp := table.prints[k]
		if radius >= 0 {
			matches, err := tree.search(fp, radius)
			if err != nil {
				return nil, fmt.Errorf("searching neighbours of %s: %w", k, err)
			}
			for _, m := range matches {
				sets.union(i, m)
			}
		}
		if err := tree.insert(fp, i); err != nil {
			return nil, fmt.Errorf("indexing %s: %w", k, err)
		}
		if g.Progress != nil {
			g.Progress(int64(i+1), int64(n))
		}
	}

	var groups []models.Group
	byRoot := make(map[int]int)
	for i, k := range keys {
		root := sets.find(i)
		idx, ok := byRoot[root]
		if !ok {
			idx = len(groups)
			byRoot[root] = idx
			groups = append(groups, models.Group{})
		}
		groups[idx].Members = append(groups[idx].Members, k)
	}
	return groups, nil
}

func checkThreshold(threshold float64) error {
	if threshold < 0 || threshold > 100 {
		return fmt.Errorf("%w: got %g", ErrInvalidThreshold, threshold)
	}
	return nil
}

// maxDistance is the largest Hamming distance whose similarity still meets
// threshold, or -1 if none does. It walks SimilarityPercent itself so the
// radius agrees with the >= comparison to the last bit of float rounding.
func maxDistance(threshold float64, bits int) int {
	d := -1
	for k := 0; k <= bits; k++ {
		if SimilarityPercent(k, bits) < threshold {
			break
		}
		d = k
	}
	return d
}

type memberSet struct {
	order []string
	set   map[string]struct{}
}

func newMemberSet() *memberSet {
	return &memberSet{set: make(map[string]struct{})}
}

func (m *memberSet) has(k string) bool {
	_, ok := m.set[k]
	return ok
}

func (m *memberSet) add(k string) {
	if m.has(k) {
		return
	}
	m.set[k] = struct{}{}
	m.order = append(m.order, k)
}

// withSingletons converts merged sets to groups and appends every key that
// never got merged as its own group, in table order.
func withSingletons(keys []string, merged []*memberSet) []models.Group {
	groups := make([]models.Group, 0, len(merged))
	grouped := make(map[string]struct{})
	for _, m := range merged {
		groups = append(groups, models.Group{Members: m.order})
		for _, k := range m.order {
			grouped[k] = struct{}{}
		}
	}
	for _, k := range keys {
		if _, ok := grouped[k]; !ok {
			groups = append(groups, models.Group{Members: []string{k}})
		}
	}
	return groups
}

type disjointSet struct {
	parent []int
	rank   []int
}

func newDisjointSet(n int) *disjointSet {
	ds := &disjointSet{parent: make([]int, n), rank: make([]int, n)}
	for i := range ds.parent {
		ds.parent[i] = i
	}
	return ds
}

func (ds *disjointSet) find(x int) int {
	for ds.parent[x] != x {
		ds.parent[x] = ds.parent[ds.parent[x]]
		x = ds.parent[x]
	}
	return x
}

func (ds *disjointSet) union(a, b int) {
	ra, rb := ds.find(a), ds.find(b)
	if ra == rb {
		return
	}
	switch {
	case ds.rank[ra] < ds.rank[rb]:
		ds.parent[ra] = rb
	case ds.rank[ra] > ds.rank[rb]:
		ds.parent[rb] = ra
	default:
		ds.parent[rb] = ra
		ds.rank[ra]++
	}
}
