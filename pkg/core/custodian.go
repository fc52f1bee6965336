package core

// Custodian is the balance service the order book settles against. The book
// never holds funds itself: placing an order locks the user's balance here,
// fills move locked funds between users, cancels unlock.
//
// All amounts are scaled integer units of the named asset. Implementations
// must be safe for the single-writer access pattern the book uses; they do
// not need internal locking beyond what their storage requires.
type Custodian interface {
	// AvailableBalance returns the user's spendable balance of asset.
	AvailableBalance(user, asset string) uint64

	// LockedBalance returns the user's balance of asset held by open orders.
	LockedBalance(user, asset string) uint64

	// IncreaseAvailable credits amount to the user's available balance.
	IncreaseAvailable(user, asset string, amount uint64)

	// DecreaseAvailable debits amount from the user's available balance.
	// Returns ErrInsufficientFunds when the balance is smaller than amount.
	DecreaseAvailable(user, asset string, amount uint64) error

	// LockBalance moves amount from available to locked. Returns
	// ErrInsufficientFunds when the available balance is smaller than amount.
	LockBalance(user, asset string, amount uint64) error

	// UnlockBalance moves amount from locked back to available. Returns
	// ErrInsufficientFunds when the locked balance is smaller than amount.
	UnlockBalance(user, asset string, amount uint64) error

	// DecreaseLocked debits amount from the user's locked balance without
	// crediting available, used when locked funds are paid out to a
	// counterparty. Returns ErrInsufficientFunds when the locked balance is
	// smaller than amount.
	DecreaseLocked(user, asset string, amount uint64) error
}
