// Package internal
//
// This file provides the FIFO wait queue used by a contested lock.
//
// The queue combines a binary heap with a hash map. Every entry is pushed with
// a monotonically increasing ticket, so the heap order is the arrival order and
// the head of the heap is always the longest waiting entry. The map makes it
// possible to drop an entry from the middle of the queue (a waiter whose wait
// was abandoned) without scanning.
//
//  1. Time Complexity:
//     - O(log n) for Push, Pop and Remove
//     - O(1) for Peek and key lookups
//
//  2. Concurrency Considerations:
//     - Not thread-safe, the owning lock guards it with its own mutex
package internal

import (
	"container/heap"
	"sort"
)

// entry is one queued value with its ticket (the arrival order)
type entry[T any] struct {
	ticket uint64
	value  T
	index  int // index in the heap, maintained by the heap package
}

// WaitQueue is a FIFO queue with O(log n) removal by ticket
type WaitQueue[T any] struct {
	items      []*entry[T]
	itemsMap   map[uint64]*entry[T]
	nextTicket uint64
}

// NewWaitQueue creates a new empty wait queue
func NewWaitQueue[T any]() *WaitQueue[T] {
	return &WaitQueue[T]{
		items:    make([]*entry[T], 0),
		itemsMap: make(map[uint64]*entry[T]),
	}
}

// --------------------------------------------------------------------------
// heap.Interface (not meant to be called directly)
// --------------------------------------------------------------------------

func (q *WaitQueue[T]) Len() int { return len(q.items) }

func (q *WaitQueue[T]) Less(i, j int) bool {
	return q.items[i].ticket < q.items[j].ticket
}

func (q *WaitQueue[T]) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *WaitQueue[T]) Push(x any) {
	e := x.(*entry[T])
	e.index = len(q.items)
	q.items = append(q.items, e)
	q.itemsMap[e.ticket] = e
}

func (q *WaitQueue[T]) Pop() any {
	old := q.items
	n := len(old)
	e := old[n-1]
	old[n-1] = nil // Avoid memory leak
	e.index = -1
	q.items = old[:n-1]
	delete(q.itemsMap, e.ticket)
	return e
}

// --------------------------------------------------------------------------
// Queue operations
// --------------------------------------------------------------------------

// Enqueue appends a value at the tail of the queue and returns its ticket
func (q *WaitQueue[T]) Enqueue(value T) uint64 {
	q.nextTicket++
	heap.Push(q, &entry[T]{ticket: q.nextTicket, value: value})
	return q.nextTicket
}

// Dequeue removes and returns the value at the head of the queue
func (q *WaitQueue[T]) Dequeue() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	e := heap.Pop(q).(*entry[T])
	return e.value, true
}

// Peek returns the value at the head of the queue without removing it
func (q *WaitQueue[T]) Peek() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[0].value, true
}

// Remove drops the entry with the given ticket, wherever it is in the queue
func (q *WaitQueue[T]) Remove(ticket uint64) (T, bool) {
	e, ok := q.itemsMap[ticket]
	if !ok {
		var zero T
		return zero, false
	}
	heap.Remove(q, e.index)
	return e.value, true
}

// Values returns all queued values in arrival order
func (q *WaitQueue[T]) Values() []T {
	sorted := make([]*entry[T], len(q.items))
	copy(sorted, q.items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ticket < sorted[j].ticket })

	values := make([]T, len(sorted))
	for i, e := range sorted {
		values[i] = e.value
	}
	return values
}
