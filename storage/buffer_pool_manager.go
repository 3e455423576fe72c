package storage

import (
	"sync"
	"time"
)

// BufferPoolManager owns a fixed set of frames and mediates every
// page-granular read and write against a DiskManager. It composes the
// extendible hash table (page table), the LRU-K replacer (eviction policy),
// and a free list.
type BufferPoolManager struct {
	mu sync.Mutex

	poolSize   uint32
	frames     []*Frame
	freeList   []FrameID
	pageTable  *ExtendibleHashTable[PageID, FrameID]
	replacer   *LRUKReplacer
	disk       DiskManager
	log        *LogManager
	metrics    *Metrics
	nextPageID PageID
}

// NewBufferPoolManager constructs a pool of poolSize frames backed by disk.
// replacerK is the LRU-K history-to-cache promotion threshold. logManager
// may be nil; the pool holds it but never calls into it.
func NewBufferPoolManager(poolSize uint32, disk DiskManager, replacerK int, logManager *LogManager) *BufferPoolManager {
	bucketCapacity := DefaultConfig().BucketCapacity
	freeList := make([]FrameID, poolSize)
	frames := make([]*Frame, poolSize)
	for i := range frames {
		frames[i] = newFrame()
		freeList[i] = FrameID(i)
	}

	return &BufferPoolManager{
		poolSize:  poolSize,
		frames:    frames,
		freeList:  freeList,
		pageTable: NewExtendibleHashTable[PageID, FrameID](bucketCapacity, HashPageID),
		replacer:  NewLRUKReplacer(int(poolSize), replacerK),
		disk:      disk,
		log:       logManager,
		metrics:   NewMetrics(),
	}
}

// SetLogManager installs a log manager to be held (but never invoked) by
// the pool, for a future layer to append to.
func (bpm *BufferPoolManager) SetLogManager(lm *LogManager) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	bpm.log = lm
}

// LogManager returns the held log manager, or nil if none was configured.
func (bpm *BufferPoolManager) LogManager() *LogManager {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	return bpm.log
}

// Metrics returns the pool's metrics collector.
func (bpm *BufferPoolManager) Metrics() *Metrics {
	return bpm.metrics
}

// grabVictim returns a frame id to reuse: from the free list if one exists,
// else from the replacer. If the victim is an eviction (not a free-list
// frame) and its data is dirty, its current contents must be flushed to disk
// before reuse; if that write fails, the frame is left untouched (still
// mapped to its old page, still holding its unflushed bytes) and grabVictim
// reports failure rather than losing the write or reusing a stale frame.
// Caller must hold bpm.mu.
func (bpm *BufferPoolManager) grabVictim() (FrameID, bool) {
	if n := len(bpm.freeList); n > 0 {
		fid := bpm.freeList[n-1]
		bpm.freeList = bpm.freeList[:n-1]
		return fid, true
	}

	fid, ok := bpm.replacer.Evict()
	if !ok {
		return 0, false
	}

	frame := bpm.frames[fid]
	if frame.isDirty {
		if err := bpm.disk.WritePage(frame.pageID, frame.Data()); err != nil {
			bpm.metrics.RecordDiskError(err)
			return 0, false
		}
		bpm.metrics.RecordDirtyPageFlush()
	}
	bpm.pageTable.Remove(frame.pageID)
	bpm.metrics.RecordPageEviction()

	return fid, true
}

// NewPage creates a fresh logical page, pins it, and returns its id and
// frame. ok is false if every frame is pinned or if writing back a dirty
// victim fails.
func (bpm *BufferPoolManager) NewPage() (PageID, *Frame, bool) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.grabVictim()
	if !ok {
		return InvalidPageID, nil, false
	}

	id := bpm.nextPageID
	bpm.nextPageID++

	frame := bpm.frames[fid]
	frame.reset()
	frame.pageID = id
	frame.pinCount = 1

	bpm.pageTable.Insert(id, fid)
	bpm.replacer.RecordAccess(fid)
	bpm.replacer.SetEvictable(fid, false)

	return id, frame, true
}

// FetchPage returns a pinned reference to the frame holding pageID, loading
// it from disk if it is not already resident. ok is false if pageID is not
// resident and no frame could be freed to load it, or if writing back a dirty
// victim or reading the page from disk fails.
func (bpm *BufferPoolManager) FetchPage(pageID PageID) (*Frame, bool) {
	start := time.Now()
	defer func() { bpm.metrics.RecordPageFetchLatency(time.Since(start)) }()

	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if fid, ok := bpm.pageTable.Find(pageID); ok {
		bpm.metrics.RecordCacheHit()
		frame := bpm.frames[fid]
		frame.pinCount++
		bpm.replacer.RecordAccess(fid)
		bpm.replacer.SetEvictable(fid, false)
		return frame, true
	}

	bpm.metrics.RecordCacheMiss()

	fid, ok := bpm.grabVictim()
	if !ok {
		return nil, false
	}

	data, err := bpm.disk.ReadPage(pageID)
	if err != nil {
		bpm.metrics.RecordDiskError(err)
		bpm.frames[fid].reset()
		bpm.freeList = append(bpm.freeList, fid)
		return nil, false
	}

	frame := bpm.frames[fid]
	frame.reset()
	frame.pageID = pageID
	frame.pinCount = 1
	copy(frame.data[:], data)

	bpm.pageTable.Insert(pageID, fid)
	bpm.replacer.RecordAccess(fid)
	bpm.replacer.SetEvictable(fid, false)

	return frame, true
}

// UnpinPage releases one hold on pageID. isDirty, if true, marks the frame
// dirty; the dirty flag is sticky and never cleared here. Returns false if
// the page is not resident or already fully unpinned.
func (bpm *BufferPoolManager) UnpinPage(pageID PageID, isDirty bool) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.pageTable.Find(pageID)
	if !ok {
		return false
	}

	frame := bpm.frames[fid]
	if frame.pinCount == 0 {
		return false
	}

	if isDirty {
		frame.isDirty = true
	}

	frame.pinCount--
	if frame.pinCount == 0 {
		bpm.replacer.SetEvictable(fid, true)
	}

	return true
}

// FlushPage writes pageID to disk unconditionally and clears its dirty
// flag. Returns false iff pageID is not resident or the write failed; in the
// failure case the page stays marked dirty since the write never landed.
func (bpm *BufferPoolManager) FlushPage(pageID PageID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.pageTable.Find(pageID)
	if !ok {
		return false
	}

	start := time.Now()
	frame := bpm.frames[fid]
	if err := bpm.disk.WritePage(pageID, frame.Data()); err != nil {
		bpm.metrics.RecordDiskError(err)
		return false
	}
	frame.isDirty = false
	bpm.metrics.RecordPageFlushLatency(time.Since(start))

	return true
}

// FlushAllPages writes every resident page to disk and clears its dirty
// flag.
func (bpm *BufferPoolManager) FlushAllPages() {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	for _, frame := range bpm.frames {
		if frame.pageID == InvalidPageID {
			continue
		}
		if err := bpm.disk.WritePage(frame.pageID, frame.Data()); err != nil {
			bpm.metrics.RecordDiskError(err)
			continue
		}
		frame.isDirty = false
	}
}

// DeletePage removes pageID from the pool and asks the disk manager to
// deallocate it. Returns true if the page was absent or was successfully
// deleted; false if it is resident and pinned.
func (bpm *BufferPoolManager) DeletePage(pageID PageID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.pageTable.Find(pageID)
	if !ok {
		return true
	}

	frame := bpm.frames[fid]
	if frame.pinCount > 0 {
		return false
	}

	bpm.pageTable.Remove(pageID)
	bpm.replacer.Remove(fid)
	frame.reset()
	bpm.freeList = append(bpm.freeList, fid)

	if err := bpm.disk.DeallocatePage(pageID); err != nil {
		bpm.metrics.RecordDiskError(err)
	}

	return true
}
