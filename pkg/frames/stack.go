package frames

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"routines/runtime-go/pkg/store"
)

// ErrEmpty is returned when popping or inspecting an empty stack.
var ErrEmpty = errors.New("frames: stack is empty")

// ErrUnknownFrame is returned by Update for a frame that is not on the stack.
var ErrUnknownFrame = errors.New("frames: unknown frame")

// Frame is one routine invocation. State is the interpreter snapshot and is
// opaque to the stack. Aux holds bookkeeping scoped to the frame.
type Frame struct {
	ID      string                     `json:"id"`
	Routine string                     `json:"routine"`
	State   json.RawMessage            `json:"state,omitempty"`
	Aux     map[string]json.RawMessage `json:"aux,omitempty"`
}

type record struct {
	Seq    int     `json:"seq"`
	Frames []Frame `json:"frames"`
}

const sessionPrefix = "sessions/"

// Stack is the ordered frame stack of one session, persisted in a Store
// under sessions/<session>/stack. The last frame is the active one. Every
// mutation is written through before it returns.
type Stack struct {
	store   store.Store
	session string
}

// New returns the stack for session. It does not touch the store.
func New(s store.Store, session string) (*Stack, error) {
	if session == "" || strings.Contains(session, "/") {
		return nil, fmt.Errorf("frames: invalid session id %q", session)
	}
	return &Stack{store: s, session: session}, nil
}

// Session returns the session id the stack belongs to.
func (s *Stack) Session() string { return s.session }

func (s *Stack) key() string {
	return sessionPrefix + s.session + "/stack"
}

func (s *Stack) load(ctx context.Context) (*record, error) {
	var rec record
	if _, err := s.store.ReadModel(ctx, s.key(), &rec); err != nil {
		return nil, fmt.Errorf("frames: load %s: %w", s.session, err)
	}
	return &rec, nil
}

func (s *Stack) save(ctx context.Context, rec *record) error {
	if len(rec.Frames) == 0 && rec.Seq == 0 {
		return s.store.DeleteModel(ctx, s.key())
	}
	if err := s.store.WriteModel(ctx, s.key(), rec); err != nil {
		return fmt.Errorf("frames: save %s: %w", s.session, err)
	}
	return nil
}

// Push adds an empty frame for routine on top of the stack and returns its
// id. Ids are never reused within a session.
func (s *Stack) Push(ctx context.Context, routine string) (string, error) {
	return s.PushFrame(ctx, Frame{Routine: routine})
}

// PushFrame adds frame on top of the stack with a fresh id. State and Aux
// are stored with it in one write, so a stored frame is never half built.
func (s *Stack) PushFrame(ctx context.Context, frame Frame) (string, error) {
	rec, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	rec.Seq++
	frame.ID = fmt.Sprintf("%s/%d", s.session, rec.Seq)
	rec.Frames = append(rec.Frames, frame)
	if err := s.save(ctx, rec); err != nil {
		return "", err
	}
	return frame.ID, nil
}

// Pop removes and returns the top frame.
func (s *Stack) Pop(ctx context.Context) (*Frame, error) {
	return s.Return(ctx, nil)
}

// Return pops the top frame and lets update change the frame below it
// before the stack is written back once. update is skipped when the popped
// frame was the last one; an update error leaves the stack untouched.
func (s *Stack) Return(ctx context.Context, update func(parent *Frame) error) (*Frame, error) {
	rec, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(rec.Frames) == 0 {
		return nil, ErrEmpty
	}
	top := rec.Frames[len(rec.Frames)-1]
	rec.Frames = rec.Frames[:len(rec.Frames)-1]
	if update != nil && len(rec.Frames) > 0 {
		if err := update(&rec.Frames[len(rec.Frames)-1]); err != nil {
			return nil, err
		}
	}
	if err := s.save(ctx, rec); err != nil {
		return nil, err
	}
	return &top, nil
}

// Peek returns the active frame without removing it.
func (s *Stack) Peek(ctx context.Context) (*Frame, error) {
	rec, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(rec.Frames) == 0 {
		return nil, ErrEmpty
	}
	top := rec.Frames[len(rec.Frames)-1]
	return &top, nil
}

// Update replaces the stored frame that has frame.ID.
func (s *Stack) Update(ctx context.Context, frame *Frame) error {
	rec, err := s.load(ctx)
	if err != nil {
		return err
	}
	for i := range rec.Frames {
		if rec.Frames[i].ID == frame.ID {
			rec.Frames[i] = *frame
			return s.save(ctx, rec)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownFrame, frame.ID)
}

// Frames returns every frame, bottom first.
func (s *Stack) Frames(ctx context.Context) ([]Frame, error) {
	rec, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return rec.Frames, nil
}

// Depth returns the number of frames on the stack.
func (s *Stack) Depth(ctx context.Context) (int, error) {
	frames, err := s.Frames(ctx)
	return len(frames), err
}

// Clear drops every frame. The id sequence survives so ids stay unique.
func (s *Stack) Clear(ctx context.Context) ([]Frame, error) {
	rec, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	dropped := rec.Frames
	rec.Frames = nil
	return dropped, s.save(ctx, rec)
}

// GetStateKey decodes the active frame's auxiliary value for key into dst.
func (s *Stack) GetStateKey(ctx context.Context, key string, dst any) (bool, error) {
	top, err := s.Peek(ctx)
	if err != nil {
		return false, err
	}
	return top.GetAux(key, dst)
}

// SetStateKey stores value under key in the active frame's auxiliary state.
func (s *Stack) SetStateKey(ctx context.Context, key string, value any) error {
	top, err := s.Peek(ctx)
	if err != nil {
		return err
	}
	if err := top.SetAux(key, value); err != nil {
		return err
	}
	return s.Update(ctx, top)
}

// GetAux decodes the auxiliary value for key into dst. It reports false
// when the frame has no such key.
func (f *Frame) GetAux(key string, dst any) (bool, error) {
	raw, ok := f.Aux[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("frames: decode %s: %w", key, err)
	}
	return true, nil
}

// SetAux encodes value under key. The frame is not written back.
func (f *Frame) SetAux(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("frames: encode %s: %w", key, err)
	}
	if f.Aux == nil {
		f.Aux = make(map[string]json.RawMessage)
	}
	f.Aux[key] = data
	return nil
}

// Sessions lists the sessions that have a persisted stack.
func Sessions(ctx context.Context, s store.Store) ([]string, error) {
	keys, err := s.Keys(ctx, sessionPrefix)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, key := range keys {
		rest := strings.TrimPrefix(key, sessionPrefix)
		if session, ok := strings.CutSuffix(rest, "/stack"); ok && !strings.Contains(session, "/") {
			out = append(out, session)
		}
	}
	return out, nil
}
