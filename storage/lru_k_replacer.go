package storage

import (
	"container/list"
	"fmt"
	"sync"
)

// FatalError signals a caller-bug invariant violation (an out-of-range
// frame id, or removing a frame the replacer still considers pinned). These
// are not part of normal control flow; callers recover from a panic of this
// type only in tests that deliberately probe the boundary.
type FatalError struct {
	Op  string
	Msg string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func fatalf(op, format string, args ...any) {
	panic(&FatalError{Op: op, Msg: fmt.Sprintf(format, args...)})
}

// lruKFrameState tracks one frame's access bookkeeping inside the replacer.
type lruKFrameState struct {
	accessCount int
	isEvictable bool
	elem        *list.Element // element in whichever queue currently holds it
}

// LRUKReplacer selects an eviction victim using the LRU-K policy: frames
// with fewer than k recorded accesses ("cold") are preferred for eviction
// over frames with k or more ("warm"), and each group is ordered so the
// least-recently-useful frame within it is evicted first.
type LRUKReplacer struct {
	mu         sync.Mutex
	k          int
	numFrames  int
	evictable  int
	states     map[FrameID]*lruKFrameState
	historyList *list.List // cold frames, most-recent-insertion at front
	cacheList   *list.List // warm frames, most-recently-used at front
}

// NewLRUKReplacer creates a replacer for numFrames distinct frame ids, using
// k as the history-to-cache promotion threshold.
func NewLRUKReplacer(numFrames int, k int) *LRUKReplacer {
	if k < 1 {
		k = 1
	}
	return &LRUKReplacer{
		k:           k,
		numFrames:   numFrames,
		states:      make(map[FrameID]*lruKFrameState),
		historyList: list.New(),
		cacheList:   list.New(),
	}
}

func (r *LRUKReplacer) checkBounds(op string, frameID FrameID) {
	if uint64(frameID) >= uint64(r.numFrames) {
		fatalf(op, "frame id %d out of range [0, %d)", frameID, r.numFrames)
	}
}

// RecordAccess registers an access to frameID: a new frame is pushed to the
// front of the history queue, the k-th access promotes it to the front of the
// cache queue, and later accesses move it to the front of the cache queue. A
// frame still in history keeps its position on repeat accesses.
func (r *LRUKReplacer) RecordAccess(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkBounds("RecordAccess", frameID)

	st, ok := r.states[frameID]
	if !ok {
		st = &lruKFrameState{}
		r.states[frameID] = st
	}

	// Saturate the stored count at k+1: only <k, ==k, and >k are ever
	// distinguished, so counting further would just risk overflow.
	if st.accessCount < r.k+1 {
		st.accessCount++
	}

	switch {
	case st.accessCount < r.k:
		if st.elem == nil {
			st.elem = r.historyList.PushFront(frameID)
		}
	case st.accessCount == r.k:
		if st.elem != nil {
			r.historyList.Remove(st.elem)
		}
		st.elem = r.cacheList.PushFront(frameID)
	default: // > k, including the saturated case: reposition on every access
		r.cacheList.MoveToFront(st.elem)
	}
}

// SetEvictable toggles whether frameID may be chosen by Evict. It maintains
// the invariant that Size() equals the number of evictable frames: moving a
// frame from non-evictable to evictable increments the count, and the
// reverse decrements it.
func (r *LRUKReplacer) SetEvictable(frameID FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkBounds("SetEvictable", frameID)

	st, ok := r.states[frameID]
	if !ok {
		return
	}
	if st.isEvictable && !evictable {
		st.isEvictable = false
		r.evictable--
	} else if !st.isEvictable && evictable {
		st.isEvictable = true
		r.evictable++
	}
}

// Evict returns a victim frame id and true, or (0, false) if no frame is
// currently evictable. History is scanned before cache, and each queue is
// scanned back-to-front so the least-recently-useful evictable frame wins.
func (r *LRUKReplacer) Evict() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evictable == 0 {
		return 0, false
	}

	if fid, ok := r.evictFrom(r.historyList); ok {
		return fid, true
	}
	if fid, ok := r.evictFrom(r.cacheList); ok {
		return fid, true
	}
	return 0, false
}

// evictFrom scans q from back to front for the first evictable frame,
// removing all replacer state for it. Caller must hold r.mu.
func (r *LRUKReplacer) evictFrom(q *list.List) (FrameID, bool) {
	for e := q.Back(); e != nil; e = e.Prev() {
		fid := e.Value.(FrameID)
		st := r.states[fid]
		if !st.isEvictable {
			continue
		}
		q.Remove(e)
		delete(r.states, fid)
		r.evictable--
		return fid, true
	}
	return 0, false
}

// Remove drops all replacer state for frameID unconditionally. It panics if
// the frame is currently tracked and not evictable, since that indicates a
// caller is trying to remove a pinned frame's history.
func (r *LRUKReplacer) Remove(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkBounds("Remove", frameID)

	st, ok := r.states[frameID]
	if !ok {
		return
	}
	if !st.isEvictable {
		fatalf("Remove", "frame %d is not evictable", frameID)
	}
	if st.accessCount < r.k {
		r.historyList.Remove(st.elem)
	} else {
		r.cacheList.Remove(st.elem)
	}
	delete(r.states, frameID)
	r.evictable--
}

// Size returns the number of frames currently eligible for eviction.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictable
}
