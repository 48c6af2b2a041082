package registry

import (
	"context"
	"errors"
	"testing"
)

func program(skill, name string) *Routine {
	return &Routine{Name: name, Skill: skill, Kind: KindProgram, Source: "return 1\n"}
}

func TestRegisterAndLookup(t *testing.T) {
	reg := New()
	for _, r := range []*Routine{program("travel", "plan"), program("travel", "book"), program("", "greet")} {
		if err := reg.Register(r); err != nil {
			t.Fatalf("register %s: %v", r.QualifiedName(), err)
		}
	}

	if r, err := reg.Get("travel.plan"); err != nil || r.Name != "plan" {
		t.Fatalf("expected travel.plan, got %v %v", r, err)
	}
	if r, ok := reg.Lookup("book", "travel"); !ok || r.QualifiedName() != "travel.book" {
		t.Fatalf("expected skill-local lookup to find travel.book, got %v", r)
	}
	if r, ok := reg.Lookup("greet", "travel"); !ok || r.QualifiedName() != "greet" {
		t.Fatalf("expected top-level greet, got %v", r)
	}
	if _, ok := reg.Lookup("book", ""); ok {
		t.Fatalf("bare name outside the skill should not resolve")
	}

	names := []string{}
	for _, r := range reg.List() {
		names = append(names, r.QualifiedName())
	}
	want := []string{"greet", "travel.book", "travel.plan"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected sorted list %v, got %v", want, names)
		}
	}
}

func TestGetSuggestsCloseNames(t *testing.T) {
	reg := New()
	reg.Register(program("travel", "plan"))
	reg.Register(program("travel", "book"))

	_, err := reg.Get("travel.pln")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || len(nf.Suggestions) == 0 || nf.Suggestions[0] != "travel.plan" {
		t.Fatalf("expected travel.plan suggestion, got %#v", err)
	}

	if got := reg.Suggest("travle.book"); len(got) == 0 || got[0] != "travel.book" {
		t.Fatalf("expected typo to suggest travel.book, got %v", got)
	}
}

func TestRegisterRejectsInvalidRoutines(t *testing.T) {
	native := func(ctx context.Context, in *NativeInput) (NativeStep, error) { return Return(nil), nil }
	cases := []struct {
		name    string
		routine *Routine
	}{
		{"bad name", &Routine{Name: "has-dash", Kind: KindProgram}},
		{"bad skill", &Routine{Name: "ok", Skill: "a.b", Kind: KindProgram}},
		{"duplicate param", &Routine{Name: "ok", Kind: KindProgram, Params: []string{"a", "a"}}},
		{"unknown kind", &Routine{Name: "ok", Kind: "wasm"}},
		{"native without func", &Routine{Name: "ok", Kind: KindNative}},
		{"program with func", &Routine{Name: "ok", Kind: KindProgram, Native: native}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := New().Register(tc.routine); err == nil {
				t.Fatalf("expected registration to fail")
			}
		})
	}

	reg := New()
	reg.Register(program("s", "r"))
	if err := reg.Register(program("s", "r")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestRegisterRejectsReservedNames(t *testing.T) {
	for _, name := range []string{"ask_user", "ask", "print", "send_message", "log", "len", "sorted", "range"} {
		t.Run(name, func(t *testing.T) {
			if err := New().Register(program("tools", name)); !errors.Is(err, ErrReserved) {
				t.Fatalf("expected ErrReserved, got %v", err)
			}
		})
	}
	if Reserved("ask_users") || Reserved("length") {
		t.Fatalf("only exact builtin and intrinsic names are reserved")
	}
	if err := New().Register(program("tools", "lookup")); err != nil {
		t.Fatalf("register: %v", err)
	}
}
