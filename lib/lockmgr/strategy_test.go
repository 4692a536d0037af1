package lockmgr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type testContainer struct {
	lm *LockManager
}

func (c *testContainer) LockManager() *LockManager {
	return c.lm
}

func TestStrategyByName(t *testing.T) {
	testCases := []struct {
		name     string
		expected LockStrategy
		wantErr  bool
	}{
		{name: "null", expected: NullLockStrategy},
		{name: "NULL", expected: NullLockStrategy},
		{name: "exclusive", expected: ExclusiveLockStrategy},
		{name: "", expected: ExclusiveLockStrategy},
		{name: "optimistic", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Name=%q", tc.name), func(t *testing.T) {
			s, err := StrategyByName(tc.name)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s != tc.expected {
				t.Errorf("expected %s strategy, got %s", tc.expected.Name(), s.Name())
			}
		})
	}
}

func TestNullLockStrategy(t *testing.T) {
	c := &testContainer{}
	a, b := newLocker("A"), newLocker("B")

	// both lockers get the lock, nothing is recorded anywhere
	for _, l := range []Locker{a, b} {
		acquired, err := NullLockStrategy.Lock(context.Background(), c, l, "x", Exclusive)
		if err != nil || !acquired {
			t.Fatalf("Lock() = %v, %v, expected true, nil", acquired, err)
		}
	}
	NullLockStrategy.Unlock(c, "x", a)
	NullLockStrategy.UnlockAll(c, b)
}

func TestExclusiveLockStrategy(t *testing.T) {
	c := &testContainer{lm: NewLockManager(WithName(t.Name()))}
	a := newLocker("A")

	acquired, err := ExclusiveLockStrategy.Lock(context.Background(), c, a, "x", Exclusive)
	if err != nil || !acquired {
		t.Fatalf("Lock() = %v, %v, expected true, nil", acquired, err)
	}
	if c.lm.Size() != 1 {
		t.Errorf("expected 1 table entry, got %d", c.lm.Size())
	}

	acquired, err = ExclusiveLockStrategy.Lock(context.Background(), c, a, "x", Exclusive)
	if err != nil || acquired {
		t.Fatalf("second Lock() = %v, %v, expected false, nil", acquired, err)
	}

	ExclusiveLockStrategy.Unlock(c, "x", a)
	if c.lm.Size() != 0 {
		t.Errorf("expected empty table, got %d entries", c.lm.Size())
	}

	_, _ = ExclusiveLockStrategy.Lock(context.Background(), c, a, "y", Shared)
	ExclusiveLockStrategy.UnlockAll(c, a)
	if c.lm.Size() != 0 {
		t.Errorf("expected empty table after UnlockAll, got %d entries", c.lm.Size())
	}

	// a container without lock manager cannot lock exclusively
	_, err = ExclusiveLockStrategy.Lock(context.Background(), &testContainer{}, a, "x", Exclusive)
	if CodeOf(err) != RetCInternalError {
		t.Errorf("expected internal error, got %v", err)
	}
}

func TestErrors(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		target   error
		code     RetCode
		expected bool
	}{
		{name: "SameCode", err: NewError(RetCDeadlock, "cycle"), target: ErrDeadlock, code: RetCDeadlock, expected: true},
		{name: "OtherCode", err: NewError(RetCDeadlock, "cycle"), target: ErrLockReleased, code: RetCDeadlock, expected: false},
		{name: "Wrapped", err: fmt.Errorf("tx 1: %w", NewError(RetCLockReleased, "")), target: ErrLockReleased, code: RetCLockReleased, expected: true},
		{name: "Cause", err: wrapError(RetCInterrupted, context.Canceled, "wait"), target: context.Canceled, code: RetCInterrupted, expected: true},
		{name: "Foreign", err: errors.New("boom"), target: ErrDeadlock, code: RetCInternalError, expected: false},
		{name: "Nil", err: nil, target: ErrDeadlock, code: RetCSuccess, expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := errors.Is(tc.err, tc.target); got != tc.expected {
				t.Errorf("errors.Is() = %v, expected %v", got, tc.expected)
			}
			if got := CodeOf(tc.err); got != tc.code {
				t.Errorf("CodeOf() = %s, expected %s", got, tc.code)
			}
		})
	}
}

func TestErrorFromWire(t *testing.T) {
	testCases := []struct {
		name string
		code RetCode
		msg  string
		want error
	}{
		{name: "Success", code: RetCSuccess, msg: "", want: nil},
		{name: "Deadlock", code: RetCDeadlock, msg: NewError(RetCDeadlock, "tx-1 waits for tx-2").Error(), want: NewError(RetCDeadlock, "tx-1 waits for tx-2")},
		{name: "EmptyMessage", code: RetCLockReleased, msg: ErrLockReleased.Error(), want: NewError(RetCLockReleased, "")},
		{name: "Plain", code: RetCInternalError, msg: "shard not found", want: NewError(RetCInternalError, "shard not found")},
		{name: "MissingCode", code: RetCSuccess, msg: "boom", want: NewError(RetCInternalError, "boom")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ErrorFromWire(tc.code, tc.msg)
			if tc.want == nil {
				if got != nil {
					t.Errorf("expected nil, got %v", got)
				}
				return
			}
			if got == nil || got.Error() != tc.want.Error() {
				t.Errorf("ErrorFromWire() = %v, expected %v", got, tc.want)
			}
			if !errors.Is(got, tc.want) {
				t.Errorf("errors.Is(%v, %v) = false", got, tc.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	testCases := []struct {
		input    string
		expected Mode
		wantErr  bool
	}{
		{input: "shared", expected: Shared},
		{input: "S", expected: Shared},
		{input: "0", expected: Shared},
		{input: "Exclusive", expected: Exclusive},
		{input: "x", expected: Exclusive},
		{input: "1", expected: Exclusive},
		{input: "update", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			mode, err := ParseMode(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if err == nil && mode != tc.expected {
				t.Errorf("ParseMode(%q) = %s, expected %s", tc.input, mode, tc.expected)
			}
		})
	}
}
