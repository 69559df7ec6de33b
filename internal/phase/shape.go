package phase

import (
	"fmt"
	"time"
)

// Range is an inclusive block of question numbers answered as one unit.
type Range struct {
	Start int
	End   int
}

func (r Range) contains(n int) bool { return n >= r.Start && n <= r.End }

// Shape describes one phase.
type Shape struct {
	Phase         Phase
	QuestionCount int
	Blocks        []Range
	ItemLimit     time.Duration
	BlockLimit    time.Duration
	Values        []string
}

var (
	likert = []string{"1", "2", "3", "4", "5"}
	choice = []string{"A", "B", "C", "D"}
)

var shapes = map[Phase]Shape{
	A: {
		Phase:         A,
		QuestionCount: 240,
		ItemLimit:     10 * time.Second,
		Values:        likert,
	},
	B: {
		Phase:         B,
		QuestionCount: 10,
		Blocks:        []Range{{Start: 8, End: 9}},
		ItemLimit:     60 * time.Second,
		BlockLimit:    120 * time.Second,
		Values:        choice,
	},
	C: {
		Phase:         C,
		QuestionCount: 10,
		Blocks:        []Range{{Start: 8, End: 10}},
		ItemLimit:     240 * time.Second,
		BlockLimit:    720 * time.Second,
		Values:        choice,
	},
}

// ShapeOf returns the static shape of p.
func ShapeOf(p Phase) (Shape, error) {
	s, ok := shapes[p]
	if !ok {
		return Shape{}, fmt.Errorf("%w %q", ErrUnknownPhase, p)
	}
	return s, nil
}

// MustShape is ShapeOf for phases known to be valid.
func MustShape(p Phase) Shape {
	s, err := ShapeOf(p)
	if err != nil {
		panic(err)
	}
	return s
}

// TotalQuestions is the number of answer slots across all phases.
func TotalQuestions() int {
	n := 0
	for _, p := range All() {
		n += shapes[p].QuestionCount
	}
	return n
}

func (s Shape) blockOf(n int) (Range, bool) {
	for _, r := range s.Blocks {
		if r.contains(n) {
			return r, true
		}
	}
	return Range{}, false
}

// UnitAt resolves a navigable index. Indices inside a block other than its
// first question are rejected with *BlockMemberError.
func (s Shape) UnitAt(index int) (Unit, error) {
	if index < 1 || index > s.QuestionCount {
		return Unit{}, fmt.Errorf("%w: type %s has questions 1-%d, got %d", ErrOutOfRange, s.Phase, s.QuestionCount, index)
	}
	r, ok := s.blockOf(index)
	if !ok {
		return Unit{
			Phase:     s.Phase,
			Index:     index,
			Kind:      KindIndividual,
			Members:   []int{index},
			TimeLimit: s.ItemLimit,
		}, nil
	}
	if index != r.Start {
		return Unit{}, &BlockMemberError{Phase: s.Phase, Index: index, BlockStart: r.Start}
	}
	members := make([]int, 0, r.End-r.Start+1)
	for n := r.Start; n <= r.End; n++ {
		members = append(members, n)
	}
	return Unit{
		Phase:     s.Phase,
		Index:     index,
		Kind:      KindBlock,
		Members:   members,
		TimeLimit: s.BlockLimit,
	}, nil
}

// UnitFor returns the unit that owns questionNumber.
func (s Shape) UnitFor(questionNumber int) (Unit, error) {
	if questionNumber < 1 || questionNumber > s.QuestionCount {
		return Unit{}, fmt.Errorf("%w: type %s has questions 1-%d, got %d", ErrOutOfRange, s.Phase, s.QuestionCount, questionNumber)
	}
	if r, ok := s.blockOf(questionNumber); ok {
		return s.UnitAt(r.Start)
	}
	return s.UnitAt(questionNumber)
}

// First returns the first unit of the phase.
func (s Shape) First() Unit {
	u, _ := s.UnitAt(1)
	return u
}

// Next returns the unit after index, skipping indices only reachable through
// a block. ok is false when index is the last unit of the phase.
func (s Shape) Next(index int) (Unit, bool) {
	next := index + 1
	if r, inBlock := s.blockOf(index); inBlock {
		next = r.End + 1
	}
	if next > s.QuestionCount {
		return Unit{}, false
	}
	u, err := s.UnitAt(next)
	if err != nil {
		return Unit{}, false
	}
	return u, true
}

// Units lists every navigable unit in order.
func (s Shape) Units() []Unit {
	var out []Unit
	u, ok := s.First(), true
	for ok {
		out = append(out, u)
		u, ok = s.Next(u.Index)
	}
	return out
}

// ValidValue reports whether v is an allowed answer for this phase.
func (s Shape) ValidValue(v string) bool {
	for _, allowed := range s.Values {
		if v == allowed {
			return true
		}
	}
	return false
}
