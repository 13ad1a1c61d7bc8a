// Package ledger holds the primary entity state derived from chain events:
// accounts, users, symbols, and the append-only audit records persisted
// alongside the aggregation buckets.
package ledger

import "math/big"

// Account is one trading sub-account, keyed by its chain address within an
// account source. Balance totals are 10^18-scaled and monotone: each field
// only ever grows by the corresponding event amounts.
type Account struct {
	ID            string // Chain address
	UserID        string
	AccountSource string

	Deposit     *big.Int
	Withdraw    *big.Int
	Allocated   *big.Int
	Deallocated *big.Int

	QuotesCount    int64
	PositionsCount int64

	Timestamp             int64
	UpdateTimestamp       int64
	LastActivityTimestamp int64
	Transaction           string
}

// User is the owner identity behind one or more accounts.
type User struct {
	ID            string
	AccountSource string

	Timestamp             int64
	LastActivityTimestamp int64
	Transaction           string
}

// Registry is the in-memory entity store, owned by the event processing
// goroutine. Accounts and users are keyed by address within their account
// source so deployments sharing an address never collide.
type Registry struct {
	accounts map[string]*Account
	users    map[string]*User
}

func NewRegistry() *Registry {
	return &Registry{
		accounts: make(map[string]*Account),
		users:    make(map[string]*User),
	}
}

func entityKey(address, source string) string {
	return address + "_" + source
}

// GetAccount returns the account or nil.
func (r *Registry) GetAccount(address, source string) *Account {
	return r.accounts[entityKey(address, source)]
}

// GetOrCreateAccount returns the account for address, creating it together
// with its owning user on first sight. The boolean reports creation.
func (r *Registry) GetOrCreateAccount(address, source string, timestamp int64, tx string) (*Account, bool) {
	key := entityKey(address, source)
	if a, ok := r.accounts[key]; ok {
		return a, false
	}

	a := &Account{
		ID:                    address,
		UserID:                address,
		AccountSource:         source,
		Deposit:               new(big.Int),
		Withdraw:              new(big.Int),
		Allocated:             new(big.Int),
		Deallocated:           new(big.Int),
		Timestamp:             timestamp,
		UpdateTimestamp:       timestamp,
		LastActivityTimestamp: timestamp,
		Transaction:           tx,
	}
	r.accounts[key] = a
	r.GetOrCreateUser(address, source, timestamp, tx)
	return a, true
}

// GetUser returns the user or nil.
func (r *Registry) GetUser(address, source string) *User {
	return r.users[entityKey(address, source)]
}

// GetOrCreateUser returns the user for address, creating it on first sight.
func (r *Registry) GetOrCreateUser(address, source string, timestamp int64, tx string) (*User, bool) {
	key := entityKey(address, source)
	if u, ok := r.users[key]; ok {
		return u, false
	}

	u := &User{
		ID:                    address,
		AccountSource:         source,
		Timestamp:             timestamp,
		LastActivityTimestamp: timestamp,
		Transaction:           tx,
	}
	r.users[key] = u
	return u, true
}

// Touch refreshes the activity timestamps of an account and its user.
func (r *Registry) Touch(a *Account, timestamp int64) {
	a.UpdateTimestamp = timestamp
	a.LastActivityTimestamp = timestamp
	if u := r.GetUser(a.UserID, a.AccountSource); u != nil {
		u.LastActivityTimestamp = timestamp
	}
}

// Accounts returns every tracked account, in map order.
func (r *Registry) Accounts() []*Account {
	out := make([]*Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	return out
}
