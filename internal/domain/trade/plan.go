package trade

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"hermes/internal/domain/market"
	"hermes/internal/domain/option"
)

// Settings carry the user's execution preferences into plan construction
type Settings struct {
	SlippageBps uint64
	Deadline    time.Duration
	Receiver    common.Address
}

// MinimumOut applies the slippage tolerance to a derived output amount
func (s Settings) MinimumOut(amount *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(int64(10000-s.SlippageBps)))
	return out.Quo(out, big.NewInt(10000))
}

// MaximumIn applies the slippage tolerance to a derived input amount
func (s Settings) MaximumIn(amount *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(int64(10000+s.SlippageBps)))
	return out.Quo(out, big.NewInt(10000))
}

// Plan is a fully-parameterized trading action. Exactly one of the two
// amounts is fixed by user input; the other is derived from a fresh pool
// snapshot before the plan is considered complete.
type Plan struct {
	ID        uuid.UUID
	Operation Operation
	Option    *option.Terms

	// Path holds the swap hops, or the touched tokens for direct calls
	Path []common.Address

	InputAmount  *big.Int
	OutputAmount *big.Int

	// SecondaryAmount is the caller-supplied second side of liquidity
	// operations; nil otherwise
	SecondaryAmount *big.Int

	// Pool is the reserve snapshot the derived amount was computed from;
	// nil for direct protocol calls
	Pool *market.Pool

	// Spender is the contract that pulls the input tokens
	Spender common.Address

	// Approvals lists every (token, spender) allowance the plan depends
	// on, the spent token first, extras (liquidity token, option token)
	// after it
	Approvals []ApprovalTarget

	Call      *CallParameters
	CreatedAt time.Time
}

// ApprovalTarget is one (token, spender) pair a plan needs allowance for.
// A nil Required means any positive allowance is acceptable.
type ApprovalTarget struct {
	Token    common.Address
	Spender  common.Address
	Required *big.Int
}

// ApprovalTargets enumerates every allowance the plan depends on
func (p *Plan) ApprovalTargets() []ApprovalTarget {
	return p.Approvals
}

// ExtraTokensToApprove returns the approval tokens beyond the first,
// e.g. the pair's liquidity token for removals
func (p *Plan) ExtraTokensToApprove() []common.Address {
	if len(p.Approvals) <= 1 {
		return nil
	}
	extras := make([]common.Address, 0, len(p.Approvals)-1)
	for _, t := range p.Approvals[1:] {
		extras = append(extras, t.Token)
	}
	return extras
}

// CallParameters is the terminal artifact handed to the executor. It is
// opaque beyond this engine's boundary.
type CallParameters struct {
	Contract        common.Address
	Method          string
	Args            []interface{}
	Value           *big.Int
	TokensToApprove []common.Address
}

// Outcome classifies a submission attempt
type Outcome string

const (
	OutcomeSubmitted    Outcome = "submitted"
	OutcomeUserRejected Outcome = "user_rejected"
	OutcomeReverted     Outcome = "reverted"
	OutcomeNetworkError Outcome = "network_error"
)

// Submission records one transaction submission attempt
type Submission struct {
	ID          uuid.UUID      `json:"id"`
	PlanID      uuid.UUID      `json:"plan_id"`
	Operation   Operation      `json:"operation"`
	Hash        common.Hash    `json:"hash"`
	From        common.Address `json:"from"`
	Outcome     Outcome        `json:"outcome"`
	Error       string         `json:"error,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
}
