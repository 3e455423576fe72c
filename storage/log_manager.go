package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogType represents the kind of operation a LogRecord describes.
type LogType byte

const (
	LogInsert LogType = iota
	LogDelete
	LogUpdate
	LogCommit
	LogAbort
	LogCheckpoint
)

func (lt LogType) String() string {
	switch lt {
	case LogInsert:
		return "INSERT"
	case LogDelete:
		return "DELETE"
	case LogUpdate:
		return "UPDATE"
	case LogCommit:
		return "COMMIT"
	case LogAbort:
		return "ABORT"
	case LogCheckpoint:
		return "CHECKPOINT"
	default:
		return "UNKNOWN"
	}
}

// LogRecord is a single WAL entry. Nothing in this package replays these
// records; the manager only records and flushes them for a layer above.
type LogRecord struct {
	LSN        uint64
	PrevLSN    uint64
	TxnID      uint64
	Type       LogType
	PageID     PageID
	Offset     uint16
	Length     uint16
	BeforeData []byte
	AfterData  []byte
}

// Serialize converts LogRecord to bytes.
// Format: LSN(8) | PrevLSN(8) | TxnID(8) | Type(1) | PageID(8) | Offset(2) | Length(2) |
//
//	BeforeDataLen(2) | BeforeData | AfterDataLen(2) | AfterData
func (lr *LogRecord) Serialize() []byte {
	beforeLen := len(lr.BeforeData)
	afterLen := len(lr.AfterData)
	size := 37 + 2 + beforeLen + 2 + afterLen

	buf := make([]byte, size)
	offset := 0

	binary.LittleEndian.PutUint64(buf[offset:], lr.LSN)
	offset += 8
	binary.LittleEndian.PutUint64(buf[offset:], lr.PrevLSN)
	offset += 8
	binary.LittleEndian.PutUint64(buf[offset:], lr.TxnID)
	offset += 8
	buf[offset] = byte(lr.Type)
	offset += 1
	binary.LittleEndian.PutUint64(buf[offset:], uint64(lr.PageID))
	offset += 8
	binary.LittleEndian.PutUint16(buf[offset:], lr.Offset)
	offset += 2
	binary.LittleEndian.PutUint16(buf[offset:], lr.Length)
	offset += 2

	binary.LittleEndian.PutUint16(buf[offset:], uint16(beforeLen))
	offset += 2
	if beforeLen > 0 {
		copy(buf[offset:], lr.BeforeData)
		offset += beforeLen
	}

	binary.LittleEndian.PutUint16(buf[offset:], uint16(afterLen))
	offset += 2
	if afterLen > 0 {
		copy(buf[offset:], lr.AfterData)
	}

	return buf
}

// DeserializeLogRecord reconstructs a LogRecord from Serialize's output.
func DeserializeLogRecord(data []byte) (*LogRecord, error) {
	minSize := 37 + 2 + 2
	if len(data) < minSize {
		return nil, ErrLogCorrupted("DeserializeLogRecord",
			fmt.Errorf("data too short for log record: %d bytes (need at least %d)", len(data), minSize))
	}

	lr := &LogRecord{}
	offset := 0

	lr.LSN = binary.LittleEndian.Uint64(data[offset:])
	offset += 8
	lr.PrevLSN = binary.LittleEndian.Uint64(data[offset:])
	offset += 8
	lr.TxnID = binary.LittleEndian.Uint64(data[offset:])
	offset += 8
	lr.Type = LogType(data[offset])
	offset += 1
	lr.PageID = PageID(binary.LittleEndian.Uint64(data[offset:]))
	offset += 8
	lr.Offset = binary.LittleEndian.Uint16(data[offset:])
	offset += 2
	lr.Length = binary.LittleEndian.Uint16(data[offset:])
	offset += 2

	if offset+2 > len(data) {
		return nil, ErrLogCorrupted("DeserializeLogRecord", errors.New("data too short for before data length"))
	}
	beforeLen := binary.LittleEndian.Uint16(data[offset:])
	offset += 2
	if beforeLen > 0 {
		if offset+int(beforeLen) > len(data) {
			return nil, ErrLogCorrupted("DeserializeLogRecord",
				fmt.Errorf("invalid before data length: need %d bytes, have %d", beforeLen, len(data)-offset))
		}
		lr.BeforeData = make([]byte, beforeLen)
		copy(lr.BeforeData, data[offset:offset+int(beforeLen)])
		offset += int(beforeLen)
	}

	if offset+2 > len(data) {
		return nil, ErrLogCorrupted("DeserializeLogRecord", errors.New("data too short for after data length"))
	}
	afterLen := binary.LittleEndian.Uint16(data[offset:])
	offset += 2
	if afterLen > 0 {
		if offset+int(afterLen) > len(data) {
			return nil, ErrLogCorrupted("DeserializeLogRecord",
				fmt.Errorf("invalid after data length: need %d bytes, have %d", afterLen, len(data)-offset))
		}
		lr.AfterData = make([]byte, afterLen)
		copy(lr.AfterData, data[offset:offset+int(afterLen)])
	}

	return lr, nil
}

// LogManager is a real, working append-only WAL writer: LSN allocation,
// buffering, fsync-on-flush, and record serialization. Nothing in this
// package calls into it; it exists so a layer above the buffer pool (a
// future transaction manager) has something concrete to append to.
type LogManager struct {
	logFile       *os.File
	currentLSN    uint64
	flushedLSN    uint64
	buffer        []byte
	bufferSize    int
	maxBufferSize int
	mutex         sync.Mutex
}

const DefaultLogBufferSize = 4096

// NewLogManager opens (creating if needed) logFileName in append mode and
// recovers currentLSN/flushedLSN from any existing content.
func NewLogManager(logFileName string) (*LogManager, error) {
	file, err := os.OpenFile(logFileName, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrFileNotFound("NewLogManager", logFileName, err)
		}
		return nil, ErrInternal("NewLogManager", "failed to open log file", err)
	}

	lm := &LogManager{
		logFile:       file,
		buffer:        make([]byte, 0, DefaultLogBufferSize),
		maxBufferSize: DefaultLogBufferSize,
	}

	fileInfo, err := file.Stat()
	if err == nil && fileInfo.Size() > 0 {
		records, err := lm.readLogsFromFile()
		if err == nil && len(records) > 0 {
			lastRecord := records[len(records)-1]
			lm.currentLSN = lastRecord.LSN
			lm.flushedLSN = lastRecord.LSN
		}
	}

	return lm, nil
}

// AppendLog assigns record the next LSN, buffers it, and flushes if the
// buffer has filled.
func (lm *LogManager) AppendLog(record *LogRecord) (uint64, error) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	lm.currentLSN++
	record.LSN = lm.currentLSN

	data := record.Serialize()

	sizeBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeBytes, uint32(len(data)))
	lm.buffer = append(lm.buffer, sizeBytes...)
	lm.buffer = append(lm.buffer, data...)
	lm.bufferSize += len(sizeBytes) + len(data)

	if lm.bufferSize >= lm.maxBufferSize {
		return record.LSN, lm.flushInternal()
	}

	return record.LSN, nil
}

// Flush writes buffered log records to disk.
func (lm *LogManager) Flush() error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	return lm.flushInternal()
}

// FlushToLSN flushes all log records up to and including lsn.
func (lm *LogManager) FlushToLSN(lsn uint64) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lsn <= lm.flushedLSN {
		return nil
	}
	if lsn > lm.currentLSN {
		return fmt.Errorf("cannot flush to LSN %d: current LSN is %d", lsn, lm.currentLSN)
	}
	return lm.flushInternal()
}

func (lm *LogManager) flushInternal() error {
	if lm.bufferSize == 0 {
		return nil
	}

	if _, err := lm.logFile.Write(lm.buffer); err != nil {
		return fmt.Errorf("failed to write to log file: %w", err)
	}
	if err := lm.logFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}

	lm.flushedLSN = lm.currentLSN
	lm.buffer = lm.buffer[:0]
	lm.bufferSize = 0

	return nil
}

// GetCurrentLSN returns the LSN of the most recently appended record.
func (lm *LogManager) GetCurrentLSN() uint64 {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	return lm.currentLSN
}

// GetFlushedLSN returns the LSN of the most recently flushed record.
func (lm *LogManager) GetFlushedLSN() uint64 {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	return lm.flushedLSN
}

// ReadAllLogs reads and deserializes every record in the log file.
func (lm *LogManager) ReadAllLogs() ([]*LogRecord, error) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if err := lm.flushInternal(); err != nil {
		return nil, err
	}

	return lm.readLogsFromFile()
}

func (lm *LogManager) readLogsFromFile() ([]*LogRecord, error) {
	if _, err := lm.logFile.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to start: %w", err)
	}

	records := make([]*LogRecord, 0)

	for {
		sizeBytes := make([]byte, 4)
		n, err := lm.logFile.Read(sizeBytes)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record size: %w", err)
		}
		if n != 4 {
			break
		}

		recordSize := binary.LittleEndian.Uint32(sizeBytes)
		if recordSize == 0 || recordSize > 1024*1024 {
			break
		}

		recordData := make([]byte, recordSize)
		n, err = lm.logFile.Read(recordData)
		if err != nil {
			return nil, fmt.Errorf("failed to read record data: %w", err)
		}
		if n != int(recordSize) {
			break
		}

		record, err := DeserializeLogRecord(recordData)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	if _, err := lm.logFile.Seek(0, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("failed to seek to end: %w", err)
	}

	return records, nil
}

// Close flushes any buffered records and closes the log file.
func (lm *LogManager) Close() error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if err := lm.flushInternal(); err != nil {
		return err
	}
	if lm.logFile != nil {
		return lm.logFile.Close()
	}
	return nil
}
