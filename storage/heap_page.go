package storage

import (
	"sync"

	"github.com/HITGYA/Mit-6.830/common"
)

// HeapPage is a slotted page of fixed-width tuples.
//
// Layout: header bitmap (one bit per slot, 1 = used) | numSlots slots of desc.Size() bytes | zero padding
//
// numSlots = floor(pageSize*8 / (tupleWidth*8 + 1)) and the header is ceil(numSlots/8) bytes. Empty
// slots serialize as zeros. The in-memory tuple array always agrees with the header bitmap.
type HeapPage struct {
	mu sync.RWMutex

	pid      common.PageID
	desc     *TupleDesc
	numSlots int
	header   []byte
	tuples   []*Tuple

	dirtier common.TransactionID
	oldData []byte
}

var _ Page = (*HeapPage)(nil)

// NumSlotsFor returns how many tuples of desc fit on one page.
func NumSlotsFor(desc *TupleDesc) int {
	return (common.PageSize() * 8) / (desc.Size()*8 + 1)
}

// HeaderSizeFor returns the size in bytes of the slot bitmap for desc.
func HeaderSizeFor(desc *TupleDesc) int {
	return common.CeilDiv(NumSlotsFor(desc), 8)
}

// EmptyPageData returns the serialized form of a page with no tuples.
func EmptyPageData() []byte {
	return make([]byte, common.PageSize())
}

// NewHeapPage parses a page image. Occupied slots are decoded with desc; the bytes of empty slots are
// skipped. A slot that fails to decode makes the whole page unreadable.
func NewHeapPage(pid common.PageID, data []byte, desc *TupleDesc) (*HeapPage, error) {
	if len(data) != common.PageSize() {
		return nil, common.NewError(common.CorruptPageError, "%s: image is %d bytes, want %d", pid, len(data), common.PageSize())
	}
	numSlots := NumSlotsFor(desc)
	headerSize := common.CeilDiv(numSlots, 8)
	hp := &HeapPage{
		pid:      pid,
		desc:     desc,
		numSlots: numSlots,
		header:   append([]byte(nil), data[:headerSize]...),
		tuples:   make([]*Tuple, numSlots),
		oldData:  append([]byte(nil), data...),
	}

	bm := hp.bitmap()
	width := desc.Size()
	offset := headerSize
	for i := 0; i < numSlots; i++ {
		if bm.LoadBit(i) {
			t, err := ParseTuple(desc, data[offset:offset+width])
			if err != nil {
				return nil, common.NewError(common.CorruptPageError, "%s slot %d: %v", pid, i, err)
			}
			t.SetRecordID(common.RecordID{PageID: pid, Slot: int32(i)})
			hp.tuples[i] = t
		}
		offset += width
	}
	return hp, nil
}

func (hp *HeapPage) bitmap() Bitmap {
	return AsBitmap(hp.header, hp.numSlots)
}

func (hp *HeapPage) ID() common.PageID {
	return hp.pid
}

func (hp *HeapPage) TupleDesc() *TupleDesc {
	return hp.desc
}

// NumSlots returns the capacity of the page in tuples.
func (hp *HeapPage) NumSlots() int {
	return hp.numSlots
}

// PageData serializes the page: header, then every slot in order, then zero padding.
func (hp *HeapPage) PageData() []byte {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	return hp.pageDataLocked()
}

func (hp *HeapPage) pageDataLocked() []byte {
	data := make([]byte, common.PageSize())
	copy(data, hp.header)
	width := hp.desc.Size()
	offset := len(hp.header)
	for _, t := range hp.tuples {
		if t != nil {
			t.WriteTo(data[offset : offset+width])
		}
		offset += width
	}
	return data
}

// InsertTuple stores t in the first free slot and sets its RecordID to that slot.
func (hp *HeapPage) InsertTuple(t *Tuple) error {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	if hp.numSlots == 0 {
		return common.NewError(common.PageFullError, "%s: tuples of %d bytes do not fit on a page", hp.pid, hp.desc.Size())
	}
	if !hp.desc.Equals(t.TupleDesc()) {
		return common.NewError(common.SchemaMismatchError, "%s: tuple schema [%s] does not match page schema [%s]", hp.pid, t.TupleDesc(), hp.desc)
	}
	bm := hp.bitmap()
	slot := bm.FindFirstZero(0)
	if slot == -1 {
		return common.NewError(common.PageFullError, "%s: no free slot", hp.pid)
	}
	bm.SetBit(slot, true)
	t.SetRecordID(common.RecordID{PageID: hp.pid, Slot: int32(slot)})
	hp.tuples[slot] = t
	return nil
}

// DeleteTuple frees the slot named by t's RecordID.
func (hp *HeapPage) DeleteTuple(t *Tuple) error {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	rid := t.RecordID()
	if rid.IsNil() || rid.PageID != hp.pid {
		return common.NewError(common.TupleNotFoundError, "tuple %s is not on %s", rid, hp.pid)
	}
	slot := int(rid.Slot)
	if slot < 0 || slot >= hp.numSlots {
		return common.NewError(common.TupleNotFoundError, "%s: slot %d out of range", hp.pid, slot)
	}
	bm := hp.bitmap()
	if !bm.SetBit(slot, false) {
		return common.NewError(common.TupleNotFoundError, "%s: slot %d is already empty", hp.pid, slot)
	}
	hp.tuples[slot] = nil
	return nil
}

// NumEmptySlots returns the number of free slots.
func (hp *HeapPage) NumEmptySlots() int {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	bm := hp.bitmap()
	return hp.numSlots - bm.CountOnes()
}

// IsSlotUsed reports whether slot i holds a tuple.
func (hp *HeapPage) IsSlotUsed(i int) bool {
	if i < 0 || i >= hp.numSlots {
		return false
	}
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	bm := hp.bitmap()
	return bm.LoadBit(i)
}

// Tuples returns the stored tuples in slot order.
func (hp *HeapPage) Tuples() []*Tuple {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	result := make([]*Tuple, 0, len(hp.tuples))
	for _, t := range hp.tuples {
		if t != nil {
			result = append(result, t)
		}
	}
	return result
}

func (hp *HeapPage) MarkDirty(dirty bool, tid common.TransactionID) {
	hp.mu.Lock()
	defer hp.mu.Unlock()
	if dirty {
		common.Assert(tid != common.InvalidTransactionID, "page dirtied by an invalid transaction")
		hp.dirtier = tid
	} else {
		hp.dirtier = common.InvalidTransactionID
	}
}

func (hp *HeapPage) Dirtier() common.TransactionID {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	return hp.dirtier
}

func (hp *HeapPage) IsDirty() bool {
	return hp.Dirtier() != common.InvalidTransactionID
}

func (hp *HeapPage) BeforeImageData() []byte {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	return append([]byte(nil), hp.oldData...)
}

// BeforeImage parses the before image into a separate, clean page.
func (hp *HeapPage) BeforeImage() (*HeapPage, error) {
	return NewHeapPage(hp.pid, hp.BeforeImageData(), hp.desc)
}

func (hp *HeapPage) SetBeforeImage() {
	hp.mu.Lock()
	defer hp.mu.Unlock()
	hp.oldData = hp.pageDataLocked()
}
