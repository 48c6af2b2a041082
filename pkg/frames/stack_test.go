package frames

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"routines/runtime-go/pkg/store"
)

func newStack(t *testing.T, s store.Store, session string) *Stack {
	t.Helper()
	stack, err := New(s, session)
	if err != nil {
		t.Fatalf("new stack: %v", err)
	}
	return stack
}

func TestPushPopOrder(t *testing.T) {
	ctx := context.Background()
	stack := newStack(t, store.NewMemory(), "s1")

	first, err := stack.Push(ctx, "travel.plan")
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	second, err := stack.Push(ctx, "travel.book")
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if first == second {
		t.Fatalf("expected unique frame ids, got %s twice", first)
	}
	if depth, _ := stack.Depth(ctx); depth != 2 {
		t.Fatalf("expected depth 2, got %d", depth)
	}
	top, err := stack.Peek(ctx)
	if err != nil || top.ID != second || top.Routine != "travel.book" {
		t.Fatalf("expected %s on top, got %#v %v", second, top, err)
	}
	popped, err := stack.Pop(ctx)
	if err != nil || popped.ID != second {
		t.Fatalf("expected to pop %s, got %#v %v", second, popped, err)
	}
	top, err = stack.Peek(ctx)
	if err != nil || top.ID != first {
		t.Fatalf("expected %s on top, got %#v %v", first, top, err)
	}
	if _, err := stack.Pop(ctx); err != nil {
		t.Fatalf("pop: %v", err)
	}
	if _, err := stack.Pop(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	third, err := stack.Push(ctx, "travel.plan")
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if third == first || third == second {
		t.Fatalf("frame id %s was reused", third)
	}
}

func TestUpdatePersistsState(t *testing.T) {
	ctx := context.Background()
	backing := store.NewMemory()
	stack := newStack(t, backing, "s1")
	id, err := stack.Push(ctx, "r")
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	frame, _ := stack.Peek(ctx)
	frame.State = json.RawMessage(`{"pc":3}`)
	if err := stack.Update(ctx, frame); err != nil {
		t.Fatalf("update: %v", err)
	}

	reopened := newStack(t, backing, "s1")
	top, err := reopened.Peek(ctx)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if top.ID != id || string(top.State) != `{"pc":3}` {
		t.Fatalf("expected persisted state, got %#v", top)
	}
	if err := stack.Update(ctx, &Frame{ID: "s1/99"}); !errors.Is(err, ErrUnknownFrame) {
		t.Fatalf("expected ErrUnknownFrame, got %v", err)
	}
}

func TestStateKeysAreScopedToFrame(t *testing.T) {
	ctx := context.Background()
	stack := newStack(t, store.NewMemory(), "s1")
	if _, err := stack.Push(ctx, "outer"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := stack.SetStateKey(ctx, "memo", map[string]int{"a": 1}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := stack.Push(ctx, "inner"); err != nil {
		t.Fatalf("push: %v", err)
	}
	var memo map[string]int
	if found, err := stack.GetStateKey(ctx, "memo", &memo); err != nil || found {
		t.Fatalf("inner frame should not see outer state, found=%v err=%v", found, err)
	}
	if _, err := stack.Pop(ctx); err != nil {
		t.Fatalf("pop: %v", err)
	}
	if found, err := stack.GetStateKey(ctx, "memo", &memo); err != nil || !found || memo["a"] != 1 {
		t.Fatalf("expected outer state back, got %v found=%v err=%v", memo, found, err)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	backing := store.NewMemory()
	a := newStack(t, backing, "alpha")
	b := newStack(t, backing, "beta")
	if _, err := a.Push(ctx, "r"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if depth, _ := b.Depth(ctx); depth != 0 {
		t.Fatalf("expected empty beta stack, got %d", depth)
	}
	if _, err := b.Push(ctx, "r"); err != nil {
		t.Fatalf("push: %v", err)
	}
	sessions, err := Sessions(ctx, backing)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0] != "alpha" || sessions[1] != "beta" {
		t.Fatalf("unexpected sessions %v", sessions)
	}
}

func TestClearKeepsSequence(t *testing.T) {
	ctx := context.Background()
	stack := newStack(t, store.NewMemory(), "s1")
	first, _ := stack.Push(ctx, "a")
	stack.Push(ctx, "b")
	dropped, err := stack.Clear(ctx)
	if err != nil || len(dropped) != 2 {
		t.Fatalf("expected 2 dropped frames, got %d %v", len(dropped), err)
	}
	next, _ := stack.Push(ctx, "c")
	if next == first {
		t.Fatalf("frame id reused after clear")
	}
}

func TestInvalidSession(t *testing.T) {
	if _, err := New(store.NewMemory(), "a/b"); err == nil {
		t.Fatalf("expected error for session with slash")
	}
	if _, err := New(store.NewMemory(), ""); err == nil {
		t.Fatalf("expected error for empty session")
	}
}

// flakyStore fails every WriteModel after the first ok writes.
type flakyStore struct {
	store.Store
	ok     int
	writes int
}

func (f *flakyStore) WriteModel(ctx context.Context, key string, value any) error {
	f.writes++
	if f.writes > f.ok {
		return errors.New("disk full")
	}
	return f.Store.WriteModel(ctx, key, value)
}

func TestPushFrameWritesOnce(t *testing.T) {
	ctx := context.Background()
	backing := &flakyStore{Store: store.NewMemory(), ok: 1}
	stack := newStack(t, backing, "s1")

	id, err := stack.PushFrame(ctx, Frame{
		ID:      "ignored",
		Routine: "r",
		State:   json.RawMessage(`{"pc":0}`),
		Aux:     map[string]json.RawMessage{"memo": json.RawMessage(`{}`)},
	})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if id != "s1/1" {
		t.Fatalf("expected a fresh id, got %s", id)
	}
	if backing.writes != 1 {
		t.Fatalf("expected a single write, got %d", backing.writes)
	}
	top, err := stack.Peek(ctx)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if string(top.State) != `{"pc":0}` || string(top.Aux["memo"]) != `{}` {
		t.Fatalf("expected state and aux stored with the frame, got %#v", top)
	}

	if _, err := stack.PushFrame(ctx, Frame{Routine: "r2", State: json.RawMessage(`{}`)}); err == nil {
		t.Fatalf("expected failed write to surface")
	}
	if depth, _ := stack.Depth(ctx); depth != 1 {
		t.Fatalf("failed push must leave the stack as it was, depth %d", depth)
	}
}

func TestReturnUpdatesParentWithPop(t *testing.T) {
	ctx := context.Background()
	backing := &flakyStore{Store: store.NewMemory(), ok: 2}
	stack := newStack(t, backing, "s1")
	parent, _ := stack.Push(ctx, "outer")
	child, _ := stack.Push(ctx, "inner")

	popped, err := stack.Return(ctx, func(f *Frame) error {
		if f.ID != parent {
			t.Fatalf("update got %s, expected parent %s", f.ID, parent)
		}
		return f.SetAux("result", 7)
	})
	if err == nil {
		t.Fatalf("expected the third write to fail")
	}
	if popped != nil {
		t.Fatalf("failed return must not report a popped frame")
	}
	if top, _ := stack.Peek(ctx); top.ID != child {
		t.Fatalf("failed return must keep %s on top, got %s", child, top.ID)
	}

	backing.ok = 10
	popped, err = stack.Return(ctx, func(f *Frame) error { return f.SetAux("result", 7) })
	if err != nil || popped.ID != child {
		t.Fatalf("expected to pop %s, got %#v %v", child, popped, err)
	}
	var got int
	if found, err := stack.GetStateKey(ctx, "result", &got); err != nil || !found || got != 7 {
		t.Fatalf("expected parent aux result 7, got %d found=%v err=%v", got, found, err)
	}

	called := false
	if _, err := stack.Return(ctx, func(*Frame) error { called = true; return nil }); err != nil {
		t.Fatalf("return: %v", err)
	}
	if called {
		t.Fatalf("update must not run when the last frame is popped")
	}
}
