package logging

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/HITGYA/Mit-6.830/common"
)

// LogRecord is the in-memory representation of one log entry. Fields are unexported to keep records
// immutable outside the logging package.
//
// Header layout: Size (4) | Checksum (4) | Type (2) | Reserved (2) | type-dependent payload
//
// BeginTransaction, Commit, Abort: txnID (8)
// Update: txnID (8) | PageID (8) | ImageLen (4) | BeforeImage | AfterImage
// Checkpoint: opaque payload
type LogRecord struct {
	data []byte
}

// MaxLogRecordSize bounds the size field accepted when reading a log back.
const MaxLogRecordSize = 1 << 24

const logRecordHeaderSize = 12

const (
	offsetSize           = 0
	offsetChecksum       = offsetSize + 4
	offsetType           = offsetChecksum + 4
	offsetTxnID          = logRecordHeaderSize
	offsetPageID         = offsetTxnID + 8
	offsetImageLen       = offsetPageID + common.PageIDSize
	offsetImages         = offsetImageLen + 4
	offsetCheckpointData = logRecordHeaderSize
)

var ErrCorruptedLogRecord = errors.New("log record corrupted: checksum mismatch")

// IsNil returns true if the underlying log data is empty.
func (r LogRecord) IsNil() bool {
	return len(r.data) == 0
}

// Size returns the total size of the log record in bytes.
func (r LogRecord) Size() int {
	return len(r.data)
}

// RecordType returns the type identifier for this log record.
func (r LogRecord) RecordType() LogRecordType {
	return LogRecordType(binary.LittleEndian.Uint16(r.data[offsetType:]))
}

// TxnID returns the transaction that wrote this record.
func (r LogRecord) TxnID() common.TransactionID {
	common.Assert(r.RecordType() != LogCheckpoint, "checkpoint records carry no transaction")
	return common.TransactionID(binary.LittleEndian.Uint64(r.data[offsetTxnID:]))
}

// PageID returns the page an update record describes.
func (r LogRecord) PageID() common.PageID {
	common.Assert(r.RecordType() == LogUpdate, "log type %s does not support PageID()", r.RecordType())
	var pid common.PageID
	pid.LoadFrom(r.data[offsetPageID:])
	return pid
}

func (r LogRecord) imageLen() int {
	return int(binary.LittleEndian.Uint32(r.data[offsetImageLen:]))
}

// BeforeImage returns the page image as of its last clean state.
func (r LogRecord) BeforeImage() []byte {
	common.Assert(r.RecordType() == LogUpdate, "log type %s does not support BeforeImage()", r.RecordType())
	n := r.imageLen()
	return r.data[offsetImages : offsetImages+n]
}

// AfterImage returns the page image that is about to be written.
func (r LogRecord) AfterImage() []byte {
	common.Assert(r.RecordType() == LogUpdate, "log type %s does not support AfterImage()", r.RecordType())
	n := r.imageLen()
	return r.data[offsetImages+n : offsetImages+2*n]
}

// CheckpointData returns the payload of a checkpoint record.
func (r LogRecord) CheckpointData() []byte {
	common.Assert(r.RecordType() == LogCheckpoint, "CheckpointData() can only be called on checkpoint records")
	return r.data[offsetCheckpointData:]
}

// Bytes returns the serialized record with its size and checksum filled in.
func (r LogRecord) Bytes() []byte {
	return r.data
}

func newRecord(t LogRecordType, payloadSize int) LogRecord {
	r := LogRecord{data: make([]byte, logRecordHeaderSize+payloadSize)}
	binary.LittleEndian.PutUint32(r.data[offsetSize:], uint32(len(r.data)))
	binary.LittleEndian.PutUint16(r.data[offsetType:], uint16(t))
	return r
}

// seal computes the checksum over everything after the checksum field.
func (r LogRecord) seal() LogRecord {
	checksum := crc32.ChecksumIEEE(r.data[offsetChecksum+4:])
	binary.LittleEndian.PutUint32(r.data[offsetChecksum:], checksum)
	return r
}

func newTxnRecord(t LogRecordType, tid common.TransactionID) LogRecord {
	r := newRecord(t, 8)
	binary.LittleEndian.PutUint64(r.data[offsetTxnID:], uint64(tid))
	return r.seal()
}

// NewBeginTransactionRecord creates a LogBeginTransaction record.
func NewBeginTransactionRecord(tid common.TransactionID) LogRecord {
	return newTxnRecord(LogBeginTransaction, tid)
}

// NewCommitRecord creates a LogCommit record.
func NewCommitRecord(tid common.TransactionID) LogRecord {
	return newTxnRecord(LogCommit, tid)
}

// NewAbortRecord creates a LogAbort record.
func NewAbortRecord(tid common.TransactionID) LogRecord {
	return newTxnRecord(LogAbort, tid)
}

// NewUpdateRecord creates a LogUpdate record holding both images of pid.
func NewUpdateRecord(tid common.TransactionID, pid common.PageID, before, after []byte) LogRecord {
	common.Assert(len(before) == len(after), "before and after images must be the same size")
	r := newRecord(LogUpdate, 8+common.PageIDSize+4+len(before)+len(after))
	binary.LittleEndian.PutUint64(r.data[offsetTxnID:], uint64(tid))
	pid.WriteTo(r.data[offsetPageID:])
	binary.LittleEndian.PutUint32(r.data[offsetImageLen:], uint32(len(before)))
	copy(r.data[offsetImages:], before)
	copy(r.data[offsetImages+len(before):], after)
	return r.seal()
}

// NewCheckpointRecord creates a LogCheckpoint record with an opaque payload.
func NewCheckpointRecord(payload []byte) LogRecord {
	r := newRecord(LogCheckpoint, len(payload))
	copy(r.data[offsetCheckpointData:], payload)
	return r.seal()
}

// AsVerifiedLogRecord parses the record at the front of data and verifies its checksum.
func AsVerifiedLogRecord(data []byte) (LogRecord, error) {
	if len(data) < logRecordHeaderSize {
		return LogRecord{}, ErrCorruptedLogRecord
	}
	recordLen := int(binary.LittleEndian.Uint32(data))
	if recordLen < logRecordHeaderSize || recordLen > len(data) {
		return LogRecord{}, ErrCorruptedLogRecord
	}
	storedChecksum := binary.LittleEndian.Uint32(data[offsetChecksum:])
	if storedChecksum != crc32.ChecksumIEEE(data[offsetChecksum+4:recordLen]) {
		return LogRecord{}, ErrCorruptedLogRecord
	}
	return LogRecord{data: data[:recordLen]}, nil
}
