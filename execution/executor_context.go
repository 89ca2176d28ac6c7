package execution

import (
	"github.com/HITGYA/Mit-6.830/catalog"
	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/storage"
)

// ExecutorContext holds all the state and resources required for query execution.
// It is passed to every Executor on Init.
type ExecutorContext struct {
	tid        common.TransactionID
	bufferPool *storage.BufferPool
	catalog    *catalog.Catalog
}

func NewExecutorContext(tid common.TransactionID, bufferPool *storage.BufferPool, catalog *catalog.Catalog) *ExecutorContext {
	return &ExecutorContext{
		tid:        tid,
		bufferPool: bufferPool,
		catalog:    catalog,
	}
}

func (ctx *ExecutorContext) TransactionID() common.TransactionID {
	return ctx.tid
}

func (ctx *ExecutorContext) BufferPool() *storage.BufferPool {
	return ctx.bufferPool
}

func (ctx *ExecutorContext) Catalog() *catalog.Catalog {
	return ctx.catalog
}
