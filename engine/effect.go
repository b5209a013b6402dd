package engine

// =============================================================================
// BALANCE-EFFECT MATRIX
// =============================================================================
//
// The sign a transaction applies to an account depends on both the
// transaction kind and the account kind:
//
//   kind          asset source   liability source   destination
//   income        +amount        0                  -
//   purchase      -amount        +amount (charge)   -
//   bill_payment  -amount        0                  -
//   transfer      -amount        -amount            +amount
//   card_payment  -amount        0                  -amount (debt drops)
//
// Everything that moves a balance (posting, reversal, edit, catch-up) goes
// through these two functions so the convention lives in exactly one place.

// SourceEffect returns the signed multiplier applied to the source account's
// balance: +1, -1 or 0 (kind does not apply to that account kind).
func SourceEffect(kind TransactionKind, acct AccountKind) int64 {
	if acct == KindLiability {
		// A purchase on a card charges it; balance here means debt.
		if kind == TxPurchase {
			return 1
		}
		if kind == TxTransfer {
			return -1
		}
		return 0
	}

	switch kind {
	case TxIncome:
		return 1
	case TxPurchase, TxBillPayment, TxTransfer, TxCardPayment:
		return -1
	}
	return 0
}

// DestEffect returns the signed multiplier applied to the destination
// account. Only transfer and card_payment have destinations.
func DestEffect(kind TransactionKind) int64 {
	switch kind {
	case TxTransfer:
		return 1
	case TxCardPayment:
		return -1
	}
	return 0
}

// scaled multiplies an amount by a matrix multiplier.
func scaled(amount Money, mult int64) Money {
	switch mult {
	case 1:
		return amount
	case -1:
		return amount.Neg()
	default:
		return ZeroMoney()
	}
}

// SourceDelta and DestDelta are the Money-valued forms of the matrix.
func SourceDelta(kind TransactionKind, acct AccountKind, amount Money) Money {
	return scaled(amount, SourceEffect(kind, acct))
}

func DestDelta(kind TransactionKind, amount Money) Money {
	return scaled(amount, DestEffect(kind))
}

// =============================================================================
// SUMMARY ROUTING
// =============================================================================

// SummaryField names the period-summary total a transaction kind feeds.
type SummaryField string

const (
	FieldIncome        SummaryField = "income"
	FieldBills         SummaryField = "bills"
	FieldDiscretionary SummaryField = "discretionary"
	FieldNone          SummaryField = "" // transfer/card payment: count only
)

func SummaryFieldFor(kind TransactionKind) SummaryField {
	switch kind {
	case TxIncome:
		return FieldIncome
	case TxBillPayment:
		return FieldBills
	case TxPurchase:
		return FieldDiscretionary
	default:
		return FieldNone
	}
}

// summaryDelta builds the additive increment a transaction contributes to
// its period. sign is +1 on apply, -1 on reversal.
func summaryDelta(periodID PeriodID, kind TransactionKind, amount Money, sign int64, countDelta int) SummaryDelta {
	d := SummaryDelta{PeriodID: periodID, Count: countDelta}
	switch SummaryFieldFor(kind) {
	case FieldIncome:
		d.Income = scaled(amount, sign)
	case FieldBills:
		d.Bills = scaled(amount, sign)
	case FieldDiscretionary:
		d.Discretionary = scaled(amount, sign)
	}
	return d
}
