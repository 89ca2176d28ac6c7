package storage

import (
	"github.com/HITGYA/Mit-6.830/common"
)

// Page is a unit of storage held by the buffer pool. Every page can serialize itself, track which
// transaction dirtied it, and reproduce the image it had when last clean.
//
// Pages never mark themselves dirty. The buffer pool sets and clears the dirty state around
// inserts, deletes, flushes and rollbacks.
type Page interface {
	// ID returns the identity of the page.
	ID() common.PageID

	// PageData serializes the page into a freshly allocated buffer of common.PageSize() bytes.
	PageData() []byte

	// MarkDirty sets or clears the dirty state. tid is ignored when dirty is false.
	MarkDirty(dirty bool, tid common.TransactionID)

	// Dirtier returns the transaction that dirtied the page, or InvalidTransactionID if clean.
	Dirtier() common.TransactionID

	// IsDirty reports whether the page has unflushed modifications.
	IsDirty() bool

	// BeforeImageData returns the serialized page as of the last SetBeforeImage (or load).
	BeforeImageData() []byte

	// SetBeforeImage captures the current contents as the new before image.
	SetBeforeImage()
}
