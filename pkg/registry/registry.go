package registry

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"routines/runtime-go/pkg/interpreter"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrNotFound matches every NotFoundError.
var ErrNotFound = errors.New("registry: routine not found")

// ErrDuplicate is returned when registering a name twice.
var ErrDuplicate = errors.New("registry: duplicate routine")

// ErrReserved is returned when a routine name is taken by a builtin or an
// engine intrinsic.
var ErrReserved = errors.New("registry: reserved name")

// Calls the engine answers itself before consulting the registry.
const (
	IntrinsicAskUser     = "ask_user"
	IntrinsicAsk         = "ask"
	IntrinsicPrint       = "print"
	IntrinsicSendMessage = "send_message"
	IntrinsicLog         = "log"
)

// IsIntrinsic reports whether name is answered by the engine.
func IsIntrinsic(name string) bool {
	switch name {
	case IntrinsicAskUser, IntrinsicAsk, IntrinsicPrint, IntrinsicSendMessage, IntrinsicLog:
		return true
	}
	return false
}

// Reserved reports whether a bare call to name resolves before the registry
// is consulted, so a routine with that name could never be reached by it.
func Reserved(name string) bool {
	return interpreter.IsBuiltin(name) || IsIntrinsic(name)
}

// NotFoundError names a routine that is not registered, with close matches.
type NotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("routine %s not found", e.Name)
	}
	return fmt.Sprintf("routine %s not found (did you mean %s?)", e.Name, strings.Join(e.Suggestions, ", "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Registry holds routine definitions keyed by qualified name.
type Registry struct {
	mu       sync.RWMutex
	routines map[string]*Routine
}

func New() *Registry {
	return &Registry{routines: make(map[string]*Routine)}
}

// Register validates r and adds it.
func (reg *Registry) Register(r *Routine) error {
	if r == nil {
		return fmt.Errorf("registry: nil routine")
	}
	if !identPattern.MatchString(r.Name) {
		return fmt.Errorf("registry: invalid routine name %q", r.Name)
	}
	if Reserved(r.Name) {
		return fmt.Errorf("%w: %s", ErrReserved, r.Name)
	}
	if r.Skill != "" && !identPattern.MatchString(r.Skill) {
		return fmt.Errorf("registry: invalid skill name %q", r.Skill)
	}
	seen := make(map[string]bool, len(r.Params))
	for _, p := range r.Params {
		if !identPattern.MatchString(p) {
			return fmt.Errorf("registry: %s: invalid parameter name %q", r.QualifiedName(), p)
		}
		if seen[p] {
			return fmt.Errorf("registry: %s: duplicate parameter %q", r.QualifiedName(), p)
		}
		seen[p] = true
	}
	switch r.Kind {
	case KindProgram:
		if r.Native != nil {
			return fmt.Errorf("registry: %s: program routine cannot carry a native function", r.QualifiedName())
		}
	case KindNative:
		if r.Native == nil {
			return fmt.Errorf("registry: %s: native routine needs a function", r.QualifiedName())
		}
	default:
		return fmt.Errorf("registry: %s: unknown kind %q", r.QualifiedName(), r.Kind)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	name := r.QualifiedName()
	if _, exists := reg.routines[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	reg.routines[name] = r
	return nil
}

// List returns every routine sorted by qualified name.
func (reg *Registry) List() []*Routine {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Routine, 0, len(reg.routines))
	for _, r := range reg.routines {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName() < out[j].QualifiedName() })
	return out
}

// Get returns the routine with the exact qualified name.
func (reg *Registry) Get(name string) (*Routine, error) {
	reg.mu.RLock()
	r, ok := reg.routines[name]
	reg.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Name: name, Suggestions: reg.Suggest(name)}
	}
	return r, nil
}

// Lookup resolves a call name from inside a routine of skill: the qualified
// name wins, then skill.name.
func (reg *Registry) Lookup(name, skill string) (*Routine, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	if r, ok := reg.routines[name]; ok {
		return r, true
	}
	if skill != "" && !strings.Contains(name, ".") {
		if r, ok := reg.routines[skill+"."+name]; ok {
			return r, true
		}
	}
	return nil, false
}

// Suggest returns up to three registered names close to name.
func (reg *Registry) Suggest(name string) []string {
	reg.mu.RLock()
	candidates := make([]string, 0, len(reg.routines))
	for key := range reg.routines {
		candidates = append(candidates, key)
	}
	reg.mu.RUnlock()
	sort.Strings(candidates)

	var out []string
	ranks := fuzzy.RankFindFold(name, candidates)
	sort.Sort(ranks)
	for _, rank := range ranks {
		out = append(out, rank.Target)
	}
	if len(out) == 0 {
		for _, candidate := range candidates {
			if fuzzy.LevenshteinDistance(strings.ToLower(name), strings.ToLower(candidate)) <= 2 {
				out = append(out, candidate)
			}
		}
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}
