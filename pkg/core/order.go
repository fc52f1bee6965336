package core

// Restriction controls how the remainder of a limit order is handled after
// matching.
type Restriction int

// Order placement restrictions
const (
	// NoRestriction rests any unfilled remainder on the book.
	NoRestriction Restriction = iota
	// ImmediateOrCancel fills what it can and discards the remainder.
	ImmediateOrCancel
	// FillOrKill aborts the whole order unless it can be filled in full.
	FillOrKill
	// PostOrAbort aborts the order if it would fill anything; it must rest
	// as a pure maker.
	PostOrAbort
)

// String returns the restriction as string.
func (r Restriction) String() string {
	switch r {
	case NoRestriction:
		return "NO_RESTRICTION"
	case ImmediateOrCancel:
		return "IMMEDIATE_OR_CANCEL"
	case FillOrKill:
		return "FILL_OR_KILL"
	case PostOrAbort:
		return "POST_OR_ABORT"
	default:
		return "UNKNOWN"
	}
}

func (r Restriction) valid() bool {
	return r >= NoRestriction && r <= PostOrAbort
}

// Order is a resting maker order. It is owned by exactly one TickLevel and
// removed on full fill, cancel or expiry eviction. Quantity is the mutable
// remaining size and stays positive while the order rests.
type Order struct {
	ID              uint64
	Price           uint64
	Quantity        uint64
	IsBid           bool
	Owner           string
	ExpireTimestamp int64

	// LockedQuote is the quote amount still locked for a resting bid. The
	// notional lock truncates once at placement while each fill truncates
	// its own notional, so the per-fill sums can run short of the lock;
	// tracking the residual here lets the final fill, cancel and eviction
	// paths release it exactly. Zero for asks.
	LockedQuote uint64
}

// Expired reports whether the order is past its expiry at the given unix
// millisecond timestamp.
func (o *Order) Expired(now int64) bool {
	return o.ExpireTimestamp <= now
}

// IsBidOrderID recovers the side encoded in an order id.
func IsBidOrderID(id uint64) bool {
	return id < MinAskOrderID
}
