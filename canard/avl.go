package canard

// This file defines an intrusive AVL tree. Items embed a treeNode and point
// it back at themselves so that lookups never allocate.

// treeNode is a node of an AVL tree owned by the item it is embedded in.
type treeNode[T any] struct {
	up *treeNode[T]
	lr [2]*treeNode[T]
	// Balance factor.
	bf    int8
	owner T
}

// search looks up the node for which cmp returns zero. cmp returns a positive
// value if the sought item sorts after the argument. If no node matches and
// factory is non-nil, the node returned by factory is inserted at the position
// where the search ended.
func search[T any](root **treeNode[T], cmp func(T) int, factory func() *treeNode[T]) *treeNode[T] {
	if root == nil || cmp == nil {
		panic(ErrInvalidArgument)
	}
	var up *treeNode[T]
	n := root
	for *n != nil {
		c := cmp((*n).owner)
		if c == 0 {
			return *n
		}
		up = *n
		n = &up.lr[b2i(c > 0)]
	}
	if factory == nil {
		return nil
	}
	out := factory()
	*n = out
	out.up = up
	out.lr = [2]*treeNode[T]{}
	out.bf = 0
	if rt := retraceOnGrowth(out); rt != nil {
		*root = rt
	}
	return out
}

// retraceOnGrowth restores balance after insertion and returns the new root
// if it changed.
func retraceOnGrowth[T any](added *treeNode[T]) *treeNode[T] {
	c := added
	p := added.up
	for p != nil {
		r := p.lr[1] == c // c is the right child of parent
		c = adjustBalance(p, r)
		p = c.up
		if c.bf == 0 {
			// The height change of the subtree made this parent perfectly balanced,
			// so upper balance factors are unchanged.
			break
		}
	}
	if p == nil {
		return c
	}
	return nil
}

func adjustBalance[T any](x *treeNode[T], increment bool) *treeNode[T] {
	out := x
	newBf := x.bf - 1
	if increment {
		newBf = x.bf + 1
	}
	if newBf >= -1 && newBf <= 1 {
		x.bf = newBf // Balancing not needed, just update the balance factor.
		return out
	}
	r := newBf < 0 // bf<0 if left-heavy --> right rotation is needed.
	sign := bsign(r)
	z := x.lr[b2i(!r)]
	if z.bf*sign <= 0 {
		// Parent and child are heavy on the same side or the child is balanced.
		out = z
		rotate(x, r)
		if z.bf == 0 {
			x.bf = -sign
			z.bf = sign
		} else {
			x.bf = 0
			z.bf = 0
		}
		return out
	}
	// Otherwise, the child needs to be rotated in the opposite direction first.
	y := z.lr[b2i(r)]
	out = y
	rotate(z, !r)
	rotate(x, r)
	switch {
	case y.bf*sign < 0:
		x.bf = sign
		y.bf = 0
		z.bf = 0
	case y.bf*sign > 0:
		x.bf = 0
		y.bf = 0
		z.bf = -sign
	default:
		x.bf = 0
		z.bf = 0
	}
	return out
}

func rotate[T any](x *treeNode[T], r bool) {
	z := x.lr[b2i(!r)]
	if x.up != nil {
		x.up.lr[b2i(x.up.lr[1] == x)] = z
	}
	z.up = x.up
	x.up = z
	x.lr[b2i(!r)] = z.lr[b2i(r)]
	if x.lr[b2i(!r)] != nil {
		x.lr[b2i(!r)].up = x
	}
	z.lr[b2i(r)] = x
}

func findExtremum[T any](root *treeNode[T], max bool) *treeNode[T] {
	var result *treeNode[T]
	r := b2i(max)
	for c := root; c != nil; c = c.lr[r] {
		result = c
	}
	return result
}

func remove[T any](root **treeNode[T], node *treeNode[T]) {
	if root == nil || node == nil {
		return
	}
	var p *treeNode[T] // The lowest parent node that suffered a shortening of its subtree.
	r := false         // Which side of the above was shortened.
	// Update the topology first and remember where retracing starts.
	if node.lr[0] != nil && node.lr[1] != nil {
		re := findExtremum(node.lr[1], false)
		re.bf = node.bf
		re.lr[0] = node.lr[0]
		re.lr[0].up = re
		if re.up != node {
			p = re.up // Retracing starts with the ex-parent of our replacement node.
			p.lr[0] = re.lr[1]
			if p.lr[0] != nil {
				p.lr[0].up = p
			}
			re.lr[1] = node.lr[1]
			re.lr[1].up = re
			r = false
		} else {
			// Deleting the parent of the replacement node shortens its right subtree.
			p = re
			r = true
		}
		re.up = node.up
		if re.up != nil {
			re.up.lr[b2i(re.up.lr[1] == node)] = re
		} else {
			*root = re
		}
	} else {
		p = node.up
		rr := b2i(node.lr[1] != nil)
		if node.lr[rr] != nil {
			node.lr[rr].up = p
		}
		if p != nil {
			r = p.lr[1] == node
			p.lr[b2i(r)] = node.lr[rr]
			if p.lr[b2i(r)] != nil {
				p.lr[b2i(r)].up = p
			}
		} else {
			*root = node.lr[rr]
		}
	}
	node.up = nil
	node.lr = [2]*treeNode[T]{}
	node.bf = 0
	if p == nil {
		return
	}
	// Climb up adjusting balance factors until the root is reached or a parent absorbs the height delta.
	var c *treeNode[T]
	for {
		c = adjustBalance(p, !r)
		p = c.up
		if c.bf != 0 || p == nil {
			break
		}
		r = p.lr[1] == c
	}
	if p == nil {
		*root = c
	}
}

// traverse visits nodes in order.
func (n *treeNode[T]) traverse(fn func(T)) {
	if n == nil {
		return
	}
	n.lr[0].traverse(fn)
	fn(n.owner)
	n.lr[1].traverse(fn)
}

// height is used by tests to check balance.
func (n *treeNode[T]) height() int {
	if n == nil {
		return 0
	}
	return 1 + max(n.lr[0].height(), n.lr[1].height())
}

//go:inline
func bsign(b bool) int8 {
	if b {
		return 1
	}
	return -1
}

//go:inline
func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
