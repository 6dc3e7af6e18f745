package trade

// Operation is the user-selected trading intent. NONE is both the initial
// and terminal state of an order selection; every other value is transient
// and produces exactly one plan before the selection returns to NONE.
type Operation string

const (
	OperationNone                 Operation = "none"
	OperationLong                 Operation = "long"
	OperationShort                Operation = "short"
	OperationWrite                Operation = "write"
	OperationCloseLong            Operation = "close_long"
	OperationCloseShort           Operation = "close_short"
	OperationAddLiquidity         Operation = "add_liquidity"
	OperationAddLiquidityCustom   Operation = "add_liquidity_custom"
	OperationRemoveLiquidity      Operation = "remove_liquidity"
	OperationRemoveLiquidityClose Operation = "remove_liquidity_close"
	OperationMint                 Operation = "mint"
	OperationExercise             Operation = "exercise"
	OperationRedeem               Operation = "redeem"
	OperationClose                Operation = "close"
)

// Valid checks if the operation is a known value
func (o Operation) Valid() bool {
	switch o {
	case OperationNone, OperationLong, OperationShort, OperationWrite,
		OperationCloseLong, OperationCloseShort,
		OperationAddLiquidity, OperationAddLiquidityCustom,
		OperationRemoveLiquidity, OperationRemoveLiquidityClose,
		OperationMint, OperationExercise, OperationRedeem, OperationClose:
		return true
	}
	return false
}

// Direct reports whether the operation is a plain protocol call routed to
// the position manager, bypassing the AMM entirely.
func (o Operation) Direct() bool {
	switch o {
	case OperationMint, OperationExercise, OperationRedeem, OperationClose:
		return true
	}
	return false
}

// Liquidity reports whether the operation manages pool liquidity
func (o Operation) Liquidity() bool {
	switch o {
	case OperationAddLiquidity, OperationAddLiquidityCustom,
		OperationRemoveLiquidity, OperationRemoveLiquidityClose:
		return true
	}
	return false
}

// String returns string representation
func (o Operation) String() string {
	return string(o)
}
