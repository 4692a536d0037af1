package internal

import (
	"testing"
)

// TestNewWaitQueue tests the creation of a new WaitQueue
func TestNewWaitQueue(t *testing.T) {
	q := NewWaitQueue[string]()

	if q == nil {
		t.Fatal("NewWaitQueue() returned nil")
	}

	if q.Len() != 0 {
		t.Errorf("New queue should be empty, but has length %d", q.Len())
	}

	if _, ok := q.Peek(); ok {
		t.Error("Peek() on an empty queue should return false")
	}

	if _, ok := q.Dequeue(); ok {
		t.Error("Dequeue() on an empty queue should return false")
	}
}

// TestFIFOOrder tests that values leave the queue in arrival order
func TestFIFOOrder(t *testing.T) {
	q := NewWaitQueue[string]()

	for _, v := range []string{"a", "b", "c", "d", "e"} {
		q.Enqueue(v)
	}

	head, ok := q.Peek()
	if !ok || head != "a" {
		t.Fatalf("Expected head to be 'a', got '%s'", head)
	}

	for _, expected := range []string{"a", "b", "c", "d", "e"} {
		v, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue() returned false, expected '%s'", expected)
		}
		if v != expected {
			t.Errorf("Expected '%s', got '%s'", expected, v)
		}
	}

	if q.Len() != 0 {
		t.Errorf("Queue should be empty, but has length %d", q.Len())
	}
}

// TestRemove tests removing entries from the middle, head and tail of the queue
func TestRemove(t *testing.T) {
	testCases := []struct {
		name     string
		remove   int
		expected []int
	}{
		{name: "Head", remove: 0, expected: []int{2, 3, 4, 5}},
		{name: "Middle", remove: 2, expected: []int{1, 2, 4, 5}},
		{name: "Tail", remove: 4, expected: []int{1, 2, 3, 4}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := NewWaitQueue[int]()
			tickets := make([]uint64, 0, 5)
			for i := 1; i <= 5; i++ {
				tickets = append(tickets, q.Enqueue(i))
			}

			v, ok := q.Remove(tickets[tc.remove])
			if !ok {
				t.Fatal("Remove() should find the ticket")
			}
			if v != tc.remove+1 {
				t.Errorf("Remove() returned %d, expected %d", v, tc.remove+1)
			}

			// removing twice is a no-op
			if _, ok := q.Remove(tickets[tc.remove]); ok {
				t.Error("Second Remove() of the same ticket should return false")
			}

			values := q.Values()
			if len(values) != len(tc.expected) {
				t.Fatalf("Expected %d values, got %d", len(tc.expected), len(values))
			}
			for i := range values {
				if values[i] != tc.expected[i] {
					t.Errorf("Value %d: expected %d, got %d", i, tc.expected[i], values[i])
				}
			}

			// the remaining values still dequeue in order
			for _, expected := range tc.expected {
				v, _ := q.Dequeue()
				if v != expected {
					t.Errorf("Expected %d, got %d", expected, v)
				}
			}
		})
	}
}

// TestInterleaved tests enqueueing after dequeueing keeps the order
func TestInterleaved(t *testing.T) {
	q := NewWaitQueue[int]()
	q.Enqueue(1)
	q.Enqueue(2)

	if v, _ := q.Dequeue(); v != 1 {
		t.Fatalf("Expected 1, got %d", v)
	}

	q.Enqueue(3)
	q.Enqueue(4)

	for _, expected := range []int{2, 3, 4} {
		if v, _ := q.Dequeue(); v != expected {
			t.Errorf("Expected %d, got %d", expected, v)
		}
	}
}
