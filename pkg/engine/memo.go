package engine

import (
	"fmt"
	"sort"
	"strings"

	"routines/runtime-go/pkg/frames"
	"routines/runtime-go/pkg/interpreter"
	"routines/runtime-go/pkg/runtime"
)

const memoKey = "memo"

// Memo maps resolved external calls to their results. A call is identified
// by its name, its arguments and how many identical calls preceded it in
// the same frame, so a repeated call can be given different results.
type Memo struct {
	Entries map[string]runtime.Box `json:"entries,omitempty"`
	Seen    map[string]int         `json:"seen,omitempty"`
}

// NewMemo returns an empty memo.
func NewMemo() *Memo {
	return &Memo{Entries: make(map[string]runtime.Box), Seen: make(map[string]int)}
}

// Add seeds the result for the next unseeded occurrence of the call.
func (m *Memo) Add(name string, args []runtime.Value, kwargs map[string]runtime.Value, result runtime.Value) {
	m.init()
	key := callKey(name, args, kwargsDict(kwargs))
	n := 0
	for {
		if _, ok := m.Entries[occurrenceKey(key, n)]; !ok {
			break
		}
		n++
	}
	m.Entries[occurrenceKey(key, n)] = runtime.Box{Value: result}
}

// Len returns the number of recorded results.
func (m *Memo) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Entries)
}

// Clone returns a memo with the same entries and no occurrence counts, ready
// to seed a replay.
func (m *Memo) Clone() *Memo {
	out := NewMemo()
	if m == nil {
		return out
	}
	for k, v := range m.Entries {
		out.Entries[k] = runtime.Box{Value: runtime.Copy(v.Value)}
	}
	return out
}

func (m *Memo) init() {
	if m.Entries == nil {
		m.Entries = make(map[string]runtime.Box)
	}
	if m.Seen == nil {
		m.Seen = make(map[string]int)
	}
}

// count marks one more occurrence of call as started.
func (m *Memo) count(call *interpreter.Suspension) {
	m.init()
	m.Seen[callKey(call.Name, call.Args, call.Kwargs)]++
}

// recall returns the result for the occurrence of call last counted, if one
// was seeded or recorded.
func (m *Memo) recall(call *interpreter.Suspension) (runtime.Value, bool) {
	m.init()
	key := callKey(call.Name, call.Args, call.Kwargs)
	n := m.Seen[key] - 1
	if n < 0 {
		return nil, false
	}
	box, ok := m.Entries[occurrenceKey(key, n)]
	if !ok {
		return nil, false
	}
	return runtime.Copy(box.Value), true
}

// record stores result for the occurrence of call last counted.
func (m *Memo) record(call *interpreter.Suspension, result runtime.Value) {
	m.init()
	key := callKey(call.Name, call.Args, call.Kwargs)
	n := m.Seen[key] - 1
	if n < 0 {
		n = 0
		m.Seen[key] = 1
	}
	m.Entries[occurrenceKey(key, n)] = runtime.Box{Value: runtime.Copy(result)}
}

// frameMemo decodes the memo kept in frame's auxiliary state.
func frameMemo(frame *frames.Frame) (*Memo, error) {
	memo := NewMemo()
	if _, err := frame.GetAux(memoKey, memo); err != nil {
		return nil, err
	}
	return memo, nil
}

func occurrenceKey(key string, n int) string {
	return fmt.Sprintf("%s#%d", key, n)
}

// callKey renders a call canonically. Keyword arguments are sorted so their
// written order does not matter.
func callKey(name string, args []runtime.Value, kwargs *runtime.DictValue) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteString(runtime.CanonicalKey(runtime.NewList(args...)))
	sorted := runtime.NewDict()
	if kwargs != nil {
		keys := kwargs.Keys()
		sort.Strings(keys)
		for _, k := range keys {
			v, _ := kwargs.Get(k)
			sorted.Set(k, v)
		}
	}
	b.WriteString(runtime.CanonicalKey(sorted))
	return b.String()
}

func kwargsDict(kwargs map[string]runtime.Value) *runtime.DictValue {
	dict := runtime.NewDict()
	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		dict.Set(k, kwargs[k])
	}
	return dict
}
