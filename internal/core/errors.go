package core

import "fmt"

// MissingEntityError reports an event that references an entity the ledger
// has never seen. The whole event is rejected without side effects.
type MissingEntityError struct {
	Entity string
	ID     string
	Ref    string
}

func (e *MissingEntityError) Error() string {
	return fmt.Sprintf("core: event %s references unknown %s %s", e.Ref, e.Entity, e.ID)
}

// ConsistencyError reports a structurally invalid event payload, such as
// mismatched parallel arrays in a funding charge.
type ConsistencyError struct {
	Ref    string
	Reason string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("core: event %s is inconsistent: %s", e.Ref, e.Reason)
}

// OrderError reports an event arriving out of chain order.
type OrderError struct {
	Partition string
	Ref       string
	Reason    string
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("core: event %s out of order on %s: %s", e.Ref, e.Partition, e.Reason)
}
