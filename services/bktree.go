package services

// bkTree indexes fingerprints by Hamming distance. Each child edge is labelled
// with its distance to the parent, which lets a radius search prune whole
// subtrees by the triangle inequality.
type bkTree struct {
	root *bkNode
}

type bkNode struct {
	fp       Fingerprint
	index    int
	children map[int]*bkNode
}

func (t *bkTree) insert(fp Fingerprint, index int) error {
	if t.root == nil {
		t.root = &bkNode{fp: fp, index: index}
		return nil
	}

	node := t.root
	for {
		d, err := fp.Distance(node.fp)
		if err != nil {
			return err
		}
		child, ok := node.children[d]
		if !ok {
			if node.children == nil {
				node.children = make(map[int]*bkNode)
			}
			node.children[d] = &bkNode{fp: fp, index: index}
			return nil
		}
		node = child
	}
}

// search returns the indexes of every fingerprint within radius of fp.
func (t *bkTree) search(fp Fingerprint, radius int) ([]int, error) {
	if t.root == nil {
		return nil, nil
	}

	var out []int
	stack := []*bkNode{t.root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		d, err := fp.Distance(node.fp)
		if err != nil {
			return nil, err
		}
		if d <= radius {
			out = append(out, node.index)
		}
		for cd, child := range node.children {
			if cd >= d-radius && cd <= d+radius {
				stack = append(stack, child)
			}
		}
	}
	return out, nil
}
