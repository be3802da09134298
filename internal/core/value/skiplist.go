package value

import "math/rand/v2"

const (
	skiplistMaxLevel = 32
	skiplistP        = 0.25
)

// Member is a sorted set element.
type Member struct {
	Member string
	Score  float64
}

// less orders by score, then lexicographically by member.
func (m Member) less(score float64, member string) bool {
	return m.Score < score || (m.Score == score && m.Member < member)
}

type skiplistLevel struct {
	forward *skiplistNode
	span    int
}

type skiplistNode struct {
	Member
	backward *skiplistNode
	level    []skiplistLevel
}

// skiplist keeps members in (score, member) order. Each forward pointer
// carries the number of level-0 nodes it skips so ranks are O(log n).
type skiplist struct {
	header *skiplistNode
	tail   *skiplistNode
	length int
	level  int
}

func newSkiplist() *skiplist {
	return &skiplist{
		header: &skiplistNode{level: make([]skiplistLevel, skiplistMaxLevel)},
		level:  1,
	}
}

func randomLevel() int {
	lv := 1
	for lv < skiplistMaxLevel && float64(rand.Uint32()&0xFFFF) < skiplistP*0xFFFF {
		lv++
	}
	return lv
}

// insert adds a node. The caller guarantees member is not already present.
func (sl *skiplist) insert(member string, score float64) *skiplistNode {
	var update [skiplistMaxLevel]*skiplistNode
	var rank [skiplistMaxLevel]int

	x := sl.header
	for i := sl.level - 1; i >= 0; i-- {
		if i < sl.level-1 {
			rank[i] = rank[i+1]
		}
		for x.level[i].forward != nil && x.level[i].forward.less(score, member) {
			rank[i] += x.level[i].span
			x = x.level[i].forward
		}
		update[i] = x
	}

	lv := randomLevel()
	if lv > sl.level {
		for i := sl.level; i < lv; i++ {
			rank[i] = 0
			update[i] = sl.header
			update[i].level[i].span = sl.length
		}
		sl.level = lv
	}

	x = &skiplistNode{
		Member: Member{Member: member, Score: score},
		level:  make([]skiplistLevel, lv),
	}
	for i := 0; i < lv; i++ {
		x.level[i].forward = update[i].level[i].forward
		update[i].level[i].forward = x
		x.level[i].span = update[i].level[i].span - (rank[0] - rank[i])
		update[i].level[i].span = rank[0] - rank[i] + 1
	}
	for i := lv; i < sl.level; i++ {
		update[i].level[i].span++
	}

	if update[0] != sl.header {
		x.backward = update[0]
	}
	if x.level[0].forward != nil {
		x.level[0].forward.backward = x
	} else {
		sl.tail = x
	}
	sl.length++
	return x
}

func (sl *skiplist) deleteNode(x *skiplistNode, update *[skiplistMaxLevel]*skiplistNode) {
	for i := 0; i < sl.level; i++ {
		if update[i].level[i].forward == x {
			update[i].level[i].span += x.level[i].span - 1
			update[i].level[i].forward = x.level[i].forward
		} else {
			update[i].level[i].span--
		}
	}
	if x.level[0].forward != nil {
		x.level[0].forward.backward = x.backward
	} else {
		sl.tail = x.backward
	}
	for sl.level > 1 && sl.header.level[sl.level-1].forward == nil {
		sl.level--
	}
	sl.length--
}

// delete removes the node matching (score, member).
func (sl *skiplist) delete(member string, score float64) bool {
	var update [skiplistMaxLevel]*skiplistNode
	x := sl.header
	for i := sl.level - 1; i >= 0; i-- {
		for x.level[i].forward != nil && x.level[i].forward.less(score, member) {
			x = x.level[i].forward
		}
		update[i] = x
	}
	x = x.level[0].forward
	if x != nil && x.Score == score && x.Member.Member == member {
		sl.deleteNode(x, &update)
		return true
	}
	return false
}

// rank returns the 1-based rank of (score, member), or 0 if absent.
func (sl *skiplist) rank(member string, score float64) int {
	r := 0
	x := sl.header
	for i := sl.level - 1; i >= 0; i-- {
		for x.level[i].forward != nil && !x.level[i].forward.Member.greater(score, member) {
			r += x.level[i].span
			x = x.level[i].forward
		}
		if x != sl.header && x.Score == score && x.Member.Member == member {
			return r
		}
	}
	return 0
}

// byRank returns the node at the 1-based rank.
func (sl *skiplist) byRank(rank int) *skiplistNode {
	traversed := 0
	x := sl.header
	for i := sl.level - 1; i >= 0; i-- {
		for x.level[i].forward != nil && traversed+x.level[i].span <= rank {
			traversed += x.level[i].span
			x = x.level[i].forward
		}
		if traversed == rank {
			return x
		}
	}
	return nil
}

// greater reports whether m sorts strictly after (score, member).
func (m Member) greater(score float64, member string) bool {
	return m.Score > score || (m.Score == score && m.Member > member)
}
