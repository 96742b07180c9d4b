package namer

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/checktest"
	"github.com/funvibe/sigcheck/internal/config"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/symbols"
)

const fileA = `sigil: true
body:
  - module: Outer
    body:
      - class: Box
        body:
          - type_member: Elem
            variance: out
          - sig: {params: {x: Integer}, returns: String}
          - def: fetch
            params: [x]
            body:
              - call: to_s
                recv: x
          - defs: build
          - def: initialize
            body:
              - assign: {ivar: size}
                value: {let: 0, type: Integer}
  - const: LIMIT
    value: 10
`

const fileB = `body:
  - class: Outer::Box
    body:
      - include: Comparable
      - flag: final
  - class: Suit
    super: T::Enum
    body:
      - enums: [Spades, Hearts]
  - call: puts
    args: [1]
`

func run(t *testing.T, progs ...*ast.Program) (*symbols.GlobalState, *Result) {
	t.Helper()
	gs := symbols.GetPrelude().DeepCopy()
	res, err := Run(context.Background(), gs, progs, config.Default())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return gs, res
}

func lookup(t *testing.T, gs *symbols.GlobalState, path ...string) symbols.SymbolID {
	t.Helper()
	id := symbols.RootID
	for _, p := range path {
		id = gs.LookupMember(id, p)
		if id == symbols.NoSymbol {
			t.Fatalf("%v not found", path)
		}
	}
	return id
}

func codes(errs []*diagnostics.DiagnosticError) []diagnostics.ErrorCode {
	out := make([]diagnostics.ErrorCode, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestEnterDefinitions(t *testing.T) {
	gs, res := run(t, checktest.Decode(t, "a.ast.yaml", fileA), checktest.Decode(t, "b.ast.yaml", fileB))
	if errs := gs.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	box := lookup(t, gs, "Outer", "Box")
	sym := gs.Symbol(box)
	if !sym.Has(symbols.FlagFinal) || sym.IsModule() {
		t.Errorf("Outer::Box flags = %b", sym.Flags)
	}
	if len(sym.Locs) != 2 {
		t.Errorf("Outer::Box has %d locations, want 2", len(sym.Locs))
	}
	if sym.Methods["fetch"] == symbols.NoSymbol {
		t.Error("fetch not entered")
	}
	if gs.Symbol(sym.Singleton).Methods["build"] == symbols.NoSymbol {
		t.Error("def self.build not entered on the singleton class")
	}
	if sym.Fields["@size"] == symbols.NoSymbol {
		t.Error("@size not declared")
	}
	if len(sym.TypeMembers) != 1 || gs.Symbol(sym.TypeMembers[0]).Variance.String() != ":out" {
		t.Errorf("type members = %v", sym.TypeMembers)
	}

	suit := lookup(t, gs, "Suit")
	if got := len(gs.Symbol(suit).EnumCases); got != 2 {
		t.Fatalf("Suit has %d cases", got)
	}
	spades := gs.Symbol(lookup(t, gs, "Suit", "Spades"))
	if !spades.Has(symbols.FlagEnumCase) || spades.Superclass != suit {
		t.Errorf("Suit::Spades flags=%b super=%d", spades.Flags, spades.Superclass)
	}

	if len(res.Parents) != 1 || len(res.Includes) != 1 || len(res.Consts) != 1 || len(res.Fields) != 1 || len(res.Members) != 1 {
		t.Errorf("pending work = %d parents, %d includes, %d consts, %d fields, %d members",
			len(res.Parents), len(res.Includes), len(res.Consts), len(res.Fields), len(res.Members))
	}
	if got := len(res.Methods); got != 3 {
		t.Errorf("%d pending methods, want 3", got)
	}

	b := gs.File("b.ast.yaml")
	if n := len(b.Methods); n != 1 || b.Methods[0].Def.Name != StaticInitName {
		t.Errorf("b.ast.yaml methods = %+v", b.Methods)
	}
}

// dump renders every non-prelude symbol with its structure, so two tables
// can be compared independently of allocation order.
func dump(gs *symbols.GlobalState) []string {
	var out []string
	prelude := symbols.GetPrelude().Len()
	for _, id := range gs.Symbols() {
		sym := gs.Symbol(id)
		if int(id) < prelude && len(sym.Locs) == 0 {
			continue
		}
		out = append(out, fmt.Sprintf("%s %s flags=%b locs=%v params=%d", sym.Kind, gs.FullName(id), sym.Flags, sym.Locs, len(sym.Params)))
	}
	for _, e := range gs.Errors() {
		out = append(out, e.Error())
	}
	sort.Strings(out)
	return out
}

func TestOrderIndependence(t *testing.T) {
	a := checktest.Decode(t, "a.ast.yaml", fileA)
	b := checktest.Decode(t, "b.ast.yaml", fileB)
	gs1, _ := run(t, a, b)
	gs2, _ := run(t, b, a)
	if diff := cmp.Diff(dump(gs1), dump(gs2)); diff != "" {
		t.Errorf("symbol tables differ (-ab +ba):\n%s", diff)
	}
	if gs1.Len() != gs2.Len() {
		t.Errorf("arena sizes %d and %d", gs1.Len(), gs2.Len())
	}
}

func TestRedefinitions(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		codes []diagnostics.ErrorCode
	}{
		{
			name: "class reopened as module",
			src: `body:
  - class: Foo
  - module: Foo
`,
			codes: []diagnostics.ErrorCode{diagnostics.ErrModuleKindRedefinition},
		},
		{
			name: "constant reopened as class",
			src: `body:
  - const: Foo
    value: 1
  - class: Foo
`,
			codes: []diagnostics.ErrorCode{diagnostics.ErrRedefinedAsDifferent},
		},
		{
			name: "method arity changes",
			src: `body:
  - class: Foo
    body:
      - def: run
        params: [a]
      - def: run
        params: [a, b]
`,
			codes: []diagnostics.ErrorCode{diagnostics.ErrRedefinitionOfMethod},
		},
		{
			name: "compatible method redefinition",
			src: `body:
  - class: Foo
    body:
      - def: run
        params: [a]
      - def: run
        params: [b]
`,
		},
		{
			name: "dangling sig",
			src: `body:
  - class: Foo
    body:
      - sig: void
`,
			codes: []diagnostics.ErrorCode{diagnostics.ErrOverloadWithoutSig},
		},
		{
			name: "two sigs without overload",
			src: `body:
  - sig: void
  - sig: void
  - def: run
`,
			codes: []diagnostics.ErrorCode{diagnostics.ErrOverloadWithoutSig},
		},
		{
			name: "duplicate parameter",
			src: `body:
  - def: run
    params: [a, a]
`,
			codes: []diagnostics.ErrorCode{diagnostics.ErrDuplicateVariable},
		},
		{
			name: "interface class",
			src: `body:
  - class: Foo
    body:
      - flag: interface
`,
			codes: []diagnostics.ErrorCode{diagnostics.ErrInvalidTypeDefinition},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gs, _ := run(t, checktest.Decode(t, "x.ast.yaml", tt.src))
			if diff := cmp.Diff(tt.codes, codes(gs.Errors())); diff != "" && !(len(tt.codes) == 0 && len(gs.Errors()) == 0) {
				t.Errorf("codes (-want +got):\n%s\nerrors: %v", diff, gs.Errors())
			}
		})
	}
}

func TestHiddenClassAndMangledMethod(t *testing.T) {
	gs, _ := run(t, checktest.Decode(t, "x.ast.yaml", `body:
  - class: Foo
    body:
      - def: run
        params: [a]
      - def: run
        params: [a, b]
  - module: Foo
    body:
      - def: helper
`))
	foo := lookup(t, gs, "Foo")
	if gs.Symbol(foo).Methods["run$1"] == symbols.NoSymbol {
		t.Error("incompatible body not entered as run$1")
	}
	hidden := gs.LookupMember(symbols.RootID, "Foo$1")
	if hidden == symbols.NoSymbol || gs.Symbol(hidden).Methods["helper"] == symbols.NoSymbol {
		t.Error("conflicting module body not entered into Foo$1")
	}
	if refs := gs.DefinitionReferences(foo); len(refs) != 1 {
		t.Errorf("Foo references = %v", refs)
	}
}

func TestDefinitionHash(t *testing.T) {
	base := `body:
  - class: Foo
    body:
      - sig: {returns: Integer}
      - def: run
        body:
          - 1
`
	bodyEdit := `body:
  - class: Foo
    body:
      - sig: {returns: Integer}
      - def: run
        body:
          - 2
`
	sigEdit := `body:
  - class: Foo
    body:
      - sig: {returns: String}
      - def: run
        body:
          - 1
`
	emptied := `body:
  - class: Foo
    body:
      - sig: {returns: Integer}
      - def: run
        body: []
`
	h := func(src string) string { return DefinitionHash(checktest.Decode(t, "h.ast.yaml", src)) }
	if h(base) != h(bodyEdit) {
		t.Error("body-only edit changed the definition hash")
	}
	if h(base) == h(sigEdit) {
		t.Error("signature edit kept the definition hash")
	}
	if h(base) == h(emptied) {
		t.Error("emptying a method body kept the definition hash")
	}
}

func TestBindMethods(t *testing.T) {
	src := `body:
  - class: Foo
    body:
      - def: run
        body:
          - 1
  - call: puts
`
	edited := `body:
  - class: Foo
    body:
      - def: run
        body:
          - x
  - call: print
`
	gs, _ := run(t, checktest.Decode(t, "f.ast.yaml", src))
	prev := gs.File("f.ast.yaml")
	bound, ok := BindMethods(prev, checktest.Decode(t, "f.ast.yaml", edited))
	if !ok {
		t.Fatal("BindMethods failed on a body-only edit")
	}
	if len(bound) != 2 || bound[0].Method != prev.Methods[0].Method {
		t.Fatalf("bound = %+v", bound)
	}
	if _, ok := bound[0].Def.Body[0].(*ast.Local); !ok {
		t.Error("bound method kept the old body")
	}

	added := src + "  - class: Bar\n    body:\n      - def: other\n"
	if _, ok := BindMethods(prev, checktest.Decode(t, "f.ast.yaml", added)); ok {
		t.Error("BindMethods accepted a new method definition")
	}
}
