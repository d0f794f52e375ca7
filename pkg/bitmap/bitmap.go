// Package bitmap implements ConcurrentBitMap: an atomically-updated set of
// up to 64 boolean flags with change-detection callbacks, used to combine
// multi-source boolean signals such as per-caller connection requests.
package bitmap

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/newtron-network/btgovernor/pkg/bterrors"
)

const maxIndex = 63

// IndexError reports an out-of-range bit index.
type IndexError struct {
	Index int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("bitmap: index %d out of range [0,%d]", e.Index, maxIndex)
}

func (e *IndexError) Unwrap() error { return bterrors.ErrInvalidState }

// AmbiguousError reports that UniqueIndex was called with zero or more than
// one bit set.
type AmbiguousError struct {
	Word uint64
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("bitmap: uniqueIndex ambiguous, word=%#x (%d bits set)", e.Word, bits.OnesCount64(e.Word))
}

func (e *AmbiguousError) Unwrap() error { return bterrors.ErrInvalidState }

// ChangeFunc is invoked after a mutation, receiving the resulting word.
type ChangeFunc func(word uint64)

// BitMap holds up to 64 boolean flags behind a single mutex; a mutation
// fires exactly one of its two registered callbacks depending on whether
// the any-bit-set predicate flipped.
type BitMap struct {
	mu    sync.Mutex
	word  uint64

	changed    ChangeFunc
	notChanged ChangeFunc
}

// New returns an empty BitMap.
func New() *BitMap {
	return &BitMap{}
}

// OnChange registers the callbacks fired on mutation. Either may be nil.
func (b *BitMap) OnChange(changed, notChanged ChangeFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changed = changed
	b.notChanged = notChanged
}

func validate(index int) error {
	if index < 0 || index > maxIndex {
		return &IndexError{Index: index}
	}
	return nil
}

// Set mutates bit index in cumulative mode: OR-in when value is true,
// AND-NOT when false.
func (b *BitMap) Set(index int, value bool) error {
	if err := validate(index); err != nil {
		return err
	}
	b.mu.Lock()
	before := b.word != 0
	if value {
		b.word |= 1 << uint(index)
	} else {
		b.word &^= 1 << uint(index)
	}
	after := b.word != 0
	word := b.word
	changed, notChanged := b.changed, b.notChanged
	b.mu.Unlock()

	fireChange(before, after, word, changed, notChanged)
	return nil
}

// SetExclusive mutates bit index in exclusive mode: setting it true clears
// every other bit first; setting it false just clears that bit.
func (b *BitMap) SetExclusive(index int, value bool) error {
	if err := validate(index); err != nil {
		return err
	}
	b.mu.Lock()
	before := b.word != 0
	if value {
		b.word = 1 << uint(index)
	} else {
		b.word &^= 1 << uint(index)
	}
	after := b.word != 0
	word := b.word
	changed, notChanged := b.changed, b.notChanged
	b.mu.Unlock()

	fireChange(before, after, word, changed, notChanged)
	return nil
}

func fireChange(before, after bool, word uint64, changed, notChanged ChangeFunc) {
	if before != after {
		if changed != nil {
			changed(word)
		}
		return
	}
	if notChanged != nil {
		notChanged(word)
	}
}

// Word returns the current bitmap value.
func (b *BitMap) Word() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.word
}

// AnySet reports whether any bit is set.
func (b *BitMap) AnySet() bool {
	return b.Word() != 0
}

// IsSet reports whether a single bit is set.
func (b *BitMap) IsSet(index int) bool {
	if index < 0 || index > maxIndex {
		return false
	}
	return b.Word()&(1<<uint(index)) != 0
}

// Clear resets every bit to false, firing changed if the map was nonzero.
func (b *BitMap) Clear() {
	b.mu.Lock()
	before := b.word != 0
	b.word = 0
	changed, notChanged := b.changed, b.notChanged
	b.mu.Unlock()
	fireChange(before, false, 0, changed, notChanged)
}

// UniqueIndex returns the single set bit, failing if zero or more than one
// bit is set.
func (b *BitMap) UniqueIndex() (int, error) {
	word := b.Word()
	if bits.OnesCount64(word) != 1 {
		return -1, &AmbiguousError{Word: word}
	}
	return bits.TrailingZeros64(word), nil
}
