package approval

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Status reports whether an allowance covers a required amount
type Status string

const (
	StatusSufficient   Status = "sufficient"
	StatusInsufficient Status = "insufficient"
)

// Approval is the sufficiency state of one (token, spender) pair
type Approval struct {
	Token     common.Address
	Spender   common.Address
	Allowance *big.Int
	Required  *big.Int
}

// Status returns the sufficiency classification of this approval
func (a Approval) Status() Status {
	if a.Sufficient() {
		return StatusSufficient
	}
	return StatusInsufficient
}

// Sufficient reports whether the current allowance covers the requirement
func (a Approval) Sufficient() bool {
	if a.Allowance == nil {
		return false
	}
	if a.Required == nil {
		return a.Allowance.Sign() > 0
	}
	return a.Allowance.Cmp(a.Required) >= 0
}

// State is the allowance snapshot for one operation selection. It is
// created when an operation is selected, refreshed when the quantity
// changes, and discarded when the operation is cleared.
type State struct {
	approvals []Approval
}

// NewState builds a state from freshly-read approvals
func NewState(approvals []Approval) *State {
	return &State{approvals: approvals}
}

// All returns every tracked approval
func (s *State) All() []Approval {
	if s == nil {
		return nil
	}
	return s.approvals
}

// Missing returns the approvals whose allowance is insufficient
func (s *State) Missing() []Approval {
	if s == nil {
		return nil
	}
	var missing []Approval
	for _, a := range s.approvals {
		if !a.Sufficient() {
			missing = append(missing, a)
		}
	}
	return missing
}

// Ready reports whether every tracked approval is sufficient
func (s *State) Ready() bool {
	return s != nil && len(s.Missing()) == 0
}
