package core

import "fmt"

// BlockOrderValidator enforces chain order per partition: block numbers must
// never decrease, and within one block the log index must strictly ascend.
// Not thread-safe; only accessed from the single processing goroutine.
type BlockOrderValidator struct {
	lastBlock map[string]uint64
	lastIndex map[string]uint32
	seen      map[string]bool
}

func NewBlockOrderValidator() *BlockOrderValidator {
	return &BlockOrderValidator{
		lastBlock: make(map[string]uint64),
		lastIndex: make(map[string]uint32),
		seen:      make(map[string]bool),
	}
}

// Validate checks one event's chain coordinates. Duplicates are allowed to
// sit behind the high-water mark; new events are not.
func (v *BlockOrderValidator) Validate(partition string, blockNumber uint64, logIndex uint32, ref string, isDuplicate bool) error {
	if !v.seen[partition] {
		v.seen[partition] = true
		v.lastBlock[partition] = blockNumber
		v.lastIndex[partition] = logIndex
		return nil
	}

	lastBlock := v.lastBlock[partition]
	lastIndex := v.lastIndex[partition]

	if blockNumber < lastBlock || (blockNumber == lastBlock && logIndex <= lastIndex) {
		if isDuplicate {
			return nil
		}
		return &OrderError{
			Partition: partition,
			Ref:       ref,
			Reason: fmt.Sprintf("got block %d index %d after block %d index %d",
				blockNumber, logIndex, lastBlock, lastIndex),
		}
	}

	v.lastBlock[partition] = blockNumber
	v.lastIndex[partition] = logIndex
	return nil
}

// HighWaterMark returns the latest accepted coordinates for a partition.
func (v *BlockOrderValidator) HighWaterMark(partition string) (blockNumber uint64, logIndex uint32, ok bool) {
	if !v.seen[partition] {
		return 0, 0, false
	}
	return v.lastBlock[partition], v.lastIndex[partition], true
}

// Restore seeds a partition's high-water mark during recovery.
func (v *BlockOrderValidator) Restore(partition string, blockNumber uint64, logIndex uint32) {
	v.seen[partition] = true
	v.lastBlock[partition] = blockNumber
	v.lastIndex[partition] = logIndex
}
