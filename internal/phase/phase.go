// Package phase holds the static shape of the three test phases: how many
// questions each has, which indices are grouped into blocks, and how long a
// test-taker gets for each unit.
package phase

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Phase identifies one test section. Complete is a terminal pseudo-phase used
// for session positions and admin jump targets; it has no shape.
type Phase string

const (
	A        Phase = "A"
	B        Phase = "B"
	C        Phase = "C"
	Complete Phase = "COMPLETE"
)

var (
	ErrUnknownPhase = errors.New("unknown phase")
	ErrOutOfRange   = errors.New("unit index out of range")
	ErrNotMember    = errors.New("question number does not belong to this unit")
)

// BlockMemberError is returned when a caller addresses an index that is only
// reachable through the block that contains it.
type BlockMemberError struct {
	Phase      Phase
	Index      int
	BlockStart int
}

func (e *BlockMemberError) Error() string {
	return fmt.Sprintf("type %s question %d is accessed via question %d as a block", e.Phase, e.Index, e.BlockStart)
}

// Parse accepts A, B or C in any case.
func Parse(s string) (Phase, error) {
	switch p := Phase(strings.ToUpper(strings.TrimSpace(s))); p {
	case A, B, C:
		return p, nil
	}
	return "", fmt.Errorf("%w %q: must be A, B, or C", ErrUnknownPhase, s)
}

// ParseTarget accepts the admin jump targets B, C or COMPLETE in any case.
func ParseTarget(s string) (Phase, error) {
	switch p := Phase(strings.ToUpper(strings.TrimSpace(s))); p {
	case B, C, Complete:
		return p, nil
	}
	return "", fmt.Errorf("%w %q: must be B, C, or COMPLETE", ErrUnknownPhase, s)
}

// Rank orders phases A < B < C < COMPLETE. Unknown phases rank -1.
func (p Phase) Rank() int {
	switch p {
	case A:
		return 0
	case B:
		return 1
	case C:
		return 2
	case Complete:
		return 3
	}
	return -1
}

// Next returns the phase that follows p. COMPLETE follows itself.
func (p Phase) Next() Phase {
	switch p {
	case A:
		return B
	case B:
		return C
	}
	return Complete
}

// Before lists the answerable phases strictly preceding p.
func (p Phase) Before() []Phase {
	var out []Phase
	for _, q := range All() {
		if q.Rank() < p.Rank() {
			out = append(out, q)
		}
	}
	return out
}

// All returns the answerable phases in order.
func All() []Phase {
	return []Phase{A, B, C}
}

// UnitKind distinguishes single questions from blocks.
type UnitKind string

const (
	KindIndividual UnitKind = "INDIVIDUAL"
	KindBlock      UnitKind = "BLOCK"
)

// Unit is the smallest navigable step within a phase.
type Unit struct {
	Phase     Phase
	Index     int
	Kind      UnitKind
	Members   []int
	TimeLimit time.Duration
}

// IsBlock reports whether the unit groups several questions.
func (u Unit) IsBlock() bool { return u.Kind == KindBlock }

// Has reports whether questionNumber belongs to the unit.
func (u Unit) Has(questionNumber int) bool {
	for _, m := range u.Members {
		if m == questionNumber {
			return true
		}
	}
	return false
}
