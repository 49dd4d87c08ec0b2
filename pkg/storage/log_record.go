package storage

import "github.com/mnohosten/laura-db/pkg/errkind"

var errShortRecord = errkind.New(errkind.Corruption, "log_record", "truncated log record")

// LogRecordType enumerates the record kinds carried in the write-ahead log
// (§4.7), matching the original source's log_record.h exactly so the body
// layouts in §6 line up one-to-one.
type LogRecordType uint8

const (
	LogInvalid LogRecordType = iota
	LogInsert
	LogMarkDelete
	LogApplyDelete
	LogRollbackDelete
	LogUpdate
	LogBegin
	LogCommit
	LogAbort
	LogNewPage
	LogCreateDatabase
	LogCheckpoint
)

func (t LogRecordType) String() string {
	switch t {
	case LogInsert:
		return "INSERT"
	case LogMarkDelete:
		return "MARKDELETE"
	case LogApplyDelete:
		return "APPLYDELETE"
	case LogRollbackDelete:
		return "ROLLBACKDELETE"
	case LogUpdate:
		return "UPDATE"
	case LogBegin:
		return "BEGIN"
	case LogCommit:
		return "COMMIT"
	case LogAbort:
		return "ABORT"
	case LogNewPage:
		return "NEWPAGE"
	case LogCreateDatabase:
		return "CREATE_DATABASE"
	case LogCheckpoint:
		return "CHECKPOINT"
	default:
		return "INVALID"
	}
}

// logHeaderSize is the 20-byte fixed header (size, lsn, txn_id, prev_lsn,
// type) every record carries ahead of its type-specific body (§4.7/§6).
const logHeaderSize = 20

// LogRecord is the in-memory representation of one WAL entry. Size is
// computed lazily by Encode; callers never set it directly.
type LogRecord struct {
	LSN     uint64
	TxnID   uint64
	PrevLSN uint64
	Type    LogRecordType

	// Body fields; which are populated depends on Type.
	RID          RID
	Tuple        []byte // INSERT/MARKDELETE/APPLYDELETE/ROLLBACKDELETE
	OldTuple     []byte // UPDATE
	NewTuple     []byte // UPDATE
	PrevPageID   PageID // NEWPAGE
	NewPageID    PageID // NEWPAGE
	DatabaseName string // CREATE_DATABASE
}

func NewInsertRecord(txnID uint64, rid RID, tuple []byte) *LogRecord {
	return &LogRecord{Type: LogInsert, TxnID: txnID, RID: rid, Tuple: tuple}
}

func NewDeleteRecord(kind LogRecordType, txnID uint64, rid RID, tuple []byte) *LogRecord {
	return &LogRecord{Type: kind, TxnID: txnID, RID: rid, Tuple: tuple}
}

func NewUpdateRecord(txnID uint64, rid RID, oldTuple, newTuple []byte) *LogRecord {
	return &LogRecord{Type: LogUpdate, TxnID: txnID, RID: rid, OldTuple: oldTuple, NewTuple: newTuple}
}

func NewBeginRecord(txnID uint64) *LogRecord  { return &LogRecord{Type: LogBegin, TxnID: txnID} }
func NewCommitRecord(txnID uint64) *LogRecord { return &LogRecord{Type: LogCommit, TxnID: txnID} }
func NewAbortRecord(txnID uint64) *LogRecord  { return &LogRecord{Type: LogAbort, TxnID: txnID} }

func NewNewPageRecord(txnID uint64, prevPageID, newPageID PageID) *LogRecord {
	return &LogRecord{Type: LogNewPage, TxnID: txnID, PrevPageID: prevPageID, NewPageID: newPageID}
}

func NewCreateDatabaseRecord(name string) *LogRecord {
	return &LogRecord{Type: LogCreateDatabase, DatabaseName: name}
}

func NewCheckpointRecord() *LogRecord { return &LogRecord{Type: LogCheckpoint} }

// bodyLen reports the serialized body size per §6's type-specific layout.
func (r *LogRecord) bodyLen() int {
	switch r.Type {
	case LogInsert, LogMarkDelete, LogApplyDelete, LogRollbackDelete:
		return 8 + 4 + len(r.Tuple)
	case LogUpdate:
		return 8 + 4 + len(r.OldTuple) + 4 + len(r.NewTuple)
	case LogNewPage:
		return 4 + 4
	case LogBegin, LogCommit, LogAbort, LogCheckpoint:
		return 0
	case LogCreateDatabase:
		return 8 + len(r.DatabaseName)
	default:
		return 0
	}
}

// Encode serializes the record to the 20-byte header (size, lsn, txn_id,
// prev_lsn, type — 4 bytes each) followed by the type-specific body (§6).
func (r *LogRecord) Encode() []byte {
	size := logHeaderSize + r.bodyLen()
	buf := make([]byte, size)

	putUint32(buf[0:4], uint32(size))
	putUint32(buf[4:8], uint32(r.LSN))
	putUint32(buf[8:12], uint32(r.TxnID))
	putUint32(buf[12:16], uint32(r.PrevLSN))
	putUint32(buf[16:20], uint32(r.Type))

	body := buf[logHeaderSize:]
	switch r.Type {
	case LogInsert, LogMarkDelete, LogApplyDelete, LogRollbackDelete:
		ridBuf := r.RID.Encode()
		copy(body[0:8], ridBuf[:])
		putUint32(body[8:12], uint32(len(r.Tuple)))
		copy(body[12:], r.Tuple)
	case LogUpdate:
		ridBuf := r.RID.Encode()
		copy(body[0:8], ridBuf[:])
		off := 8
		putUint32(body[off:off+4], uint32(len(r.OldTuple)))
		off += 4
		copy(body[off:off+len(r.OldTuple)], r.OldTuple)
		off += len(r.OldTuple)
		putUint32(body[off:off+4], uint32(len(r.NewTuple)))
		off += 4
		copy(body[off:off+len(r.NewTuple)], r.NewTuple)
	case LogNewPage:
		putUint32(body[0:4], uint32(r.PrevPageID))
		putUint32(body[4:8], uint32(r.NewPageID))
	case LogCreateDatabase:
		putUint64(body[0:8], uint64(len(r.DatabaseName)))
		copy(body[8:], r.DatabaseName)
	}
	return buf
}

// DecodeLogRecord parses one record starting at buf[0], returning the
// record and the number of bytes it consumed.
func DecodeLogRecord(buf []byte) (*LogRecord, int, error) {
	if len(buf) < logHeaderSize {
		return nil, 0, errShortRecord
	}
	size := getUint32(buf[0:4])
	if int(size) > len(buf) || size < logHeaderSize {
		return nil, 0, errShortRecord
	}
	r := &LogRecord{
		LSN:     uint64(getUint32(buf[4:8])),
		TxnID:   uint64(getUint32(buf[8:12])),
		PrevLSN: uint64(getUint32(buf[12:16])),
		Type:    LogRecordType(getUint32(buf[16:20])),
	}
	body := buf[logHeaderSize:size]
	switch r.Type {
	case LogInsert, LogMarkDelete, LogApplyDelete, LogRollbackDelete:
		r.RID = DecodeRID(body[0:8])
		n := getUint32(body[8:12])
		r.Tuple = append([]byte(nil), body[12:12+n]...)
	case LogUpdate:
		r.RID = DecodeRID(body[0:8])
		off := 8
		oldLen := getUint32(body[off : off+4])
		off += 4
		r.OldTuple = append([]byte(nil), body[off:off+int(oldLen)]...)
		off += int(oldLen)
		newLen := getUint32(body[off : off+4])
		off += 4
		r.NewTuple = append([]byte(nil), body[off:off+int(newLen)]...)
	case LogNewPage:
		r.PrevPageID = PageID(getUint32(body[0:4]))
		r.NewPageID = PageID(getUint32(body[4:8]))
	case LogCreateDatabase:
		n := getUint64(body[0:8])
		r.DatabaseName = string(body[8 : 8+n])
	}
	return r, int(size), nil
}
