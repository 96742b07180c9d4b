package resolver

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/checktest"
	"github.com/funvibe/sigcheck/internal/config"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/namer"
	"github.com/funvibe/sigcheck/internal/symbols"
)

func resolve(t *testing.T, progs ...*ast.Program) *symbols.GlobalState {
	t.Helper()
	return resolveWith(t, config.Default(), progs...)
}

func resolveWith(t *testing.T, cfg *config.Config, progs ...*ast.Program) *symbols.GlobalState {
	t.Helper()
	gs := symbols.GetPrelude().DeepCopy()
	res, err := namer.Run(context.Background(), gs, progs, cfg)
	if err != nil {
		t.Fatalf("namer: %v", err)
	}
	if err := Run(context.Background(), gs, res, cfg); err != nil {
		t.Fatalf("resolver: %v", err)
	}
	return gs
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

func names(gs *symbols.GlobalState, ids []symbols.SymbolID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = gs.FullName(id)
	}
	return out
}

func codes(errs []*diagnostics.DiagnosticError) []diagnostics.ErrorCode {
	var out []diagnostics.ErrorCode
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

const mixins = `body:
  - module: M1
    body:
      - def: foo
  - class: A
    body:
      - include: M1
  - module: M2
    body:
      - def: foo
  - module: M3
    body:
      - include: M1
  - class: B
    super: A
    body:
      - include: M2
      - include: M3
`

func TestLinearizationAndDispatch(t *testing.T) {
	gs := resolve(t, checktest.Decode(t, "m.ast.yaml", mixins))
	if errs := gs.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	b := lookup(t, gs, "B")
	want := []string{"B", "M3", "M2", "A", "M1", "Object", "Kernel", "BasicObject"}
	if diff := cmp.Diff(want, names(gs, gs.Symbol(b).Linearization)); diff != "" {
		t.Errorf("B ancestors (-want +got):\n%s", diff)
	}
	if got := gs.FullName(gs.LookupMethod(b, "foo")); got != "M2#foo" {
		t.Errorf("B#foo dispatches to %s, want M2#foo", got)
	}
	if got := gs.FullName(gs.LookupMethod(lookup(t, gs, "A"), "foo")); got != "M1#foo" {
		t.Errorf("A#foo dispatches to %s, want M1#foo", got)
	}
	if gs.Symbol(lookup(t, gs, "A")).Superclass != symbols.ObjectID {
		t.Error("A should default to Object")
	}
	single := gs.LookupSingleton(b)
	if single == symbols.NoSymbol || !gs.Symbol(single).Has(symbols.FlagLinearized) {
		t.Error("singleton of B not linearized")
	}
}

func TestConstantAliasesResolveOutOfOrder(t *testing.T) {
	gs := resolve(t, checktest.Decode(t, "c.ast.yaml", `body:
  - const: X
    value: Y
  - const: Y
    value: Base
  - class: Base
  - class: Child
    super: X
`))
	if errs := gs.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	child := gs.Symbol(lookup(t, gs, "Child"))
	if child.Superclass != lookup(t, gs, "Base") {
		t.Errorf("Child < %s, want Base", gs.FullName(child.Superclass))
	}
	if got := gs.Dealias(lookup(t, gs, "X")); got != lookup(t, gs, "Base") {
		t.Errorf("X aliases %s", gs.FullName(got))
	}
}

// aliasChain is A0 = A1, A1 = A2, ... An = Integer, in that order.
func aliasChain(n int) string {
	var b strings.Builder
	b.WriteString("body:\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "  - const: A%d\n    value: A%d\n", i, i+1)
	}
	fmt.Fprintf(&b, "  - const: A%d\n    value: Integer\n", n)
	return b.String()
}

func TestLongAliasChain(t *testing.T) {
	cfg := config.Default()
	cfg.MaxResolverIterations = 1
	gs := resolveWith(t, cfg, checktest.Decode(t, "chain.ast.yaml", aliasChain(120)))
	if errs := gs.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if ies := gs.InternalErrors(); len(ies) != 0 {
		t.Fatalf("unexpected internal errors: %v", ies)
	}
	integer := lookup(t, gs, "Integer")
	for _, name := range []string{"A0", "A60", "A120"} {
		if got := gs.Dealias(lookup(t, gs, name)); got != integer {
			t.Errorf("%s aliases %s, want Integer", name, gs.FullName(got))
		}
	}
}

func TestAliasCycleIsStubbed(t *testing.T) {
	gs := resolve(t, checktest.Decode(t, "cycle.ast.yaml", `body:
  - const: X
    value: Y
  - const: Y
    value: X
`))
	want := []diagnostics.ErrorCode{diagnostics.ErrStubConstant, diagnostics.ErrStubConstant}
	if diff := cmp.Diff(want, codes(gs.Errors())); diff != "" {
		t.Errorf("codes (-want +got):\n%s", diff)
	}
	if ies := gs.InternalErrors(); len(ies) != 0 {
		t.Errorf("unexpected internal errors: %v", ies)
	}
}

// inheritedInner needs a second iteration: B::Inner is only visible once
// B < A has been applied.
const inheritedInner = `body:
  - class: A
    body:
      - class: Inner
  - class: B
    super: A
  - class: C
    super: B::Inner
`

func TestIterationBound(t *testing.T) {
	gs := resolve(t, checktest.Decode(t, "i.ast.yaml", inheritedInner))
	if errs := gs.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if got := gs.FullName(gs.Symbol(lookup(t, gs, "C")).Superclass); got != "A::Inner" {
		t.Errorf("C < %s, want A::Inner", got)
	}

	cfg := config.Default()
	cfg.MaxResolverIterations = 1
	gs = resolveWith(t, cfg, checktest.Decode(t, "i.ast.yaml", inheritedInner))
	if diff := cmp.Diff([]diagnostics.ErrorCode{diagnostics.ErrStubConstant}, codes(gs.Errors())); diff != "" {
		t.Errorf("codes (-want +got):\n%s", diff)
	}
	if ies := gs.InternalErrors(); len(ies) != 1 || !strings.Contains(ies[0].Error(), "did not converge") {
		t.Errorf("internal errors = %v", ies)
	}
	if got := gs.Symbol(lookup(t, gs, "C")).Superclass; got != symbols.ObjectID {
		t.Errorf("C < %s, want Object after the stub", gs.FullName(got))
	}
}

func TestNestedLookup(t *testing.T) {
	gs := resolve(t, checktest.Decode(t, "n.ast.yaml", `body:
  - module: Outer
    body:
      - class: Base
      - module: Inner
        body:
          - class: Leaf
            super: Base
  - class: Base
  - class: Other
    super: Outer::Inner::Leaf
`))
	if errs := gs.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	leaf := gs.Symbol(lookup(t, gs, "Outer", "Inner", "Leaf"))
	if got := gs.FullName(leaf.Superclass); got != "Outer::Base" {
		t.Errorf("Leaf < %s, want the lexically closer Outer::Base", got)
	}
	if got := gs.FullName(gs.Symbol(lookup(t, gs, "Other")).Superclass); got != "Outer::Inner::Leaf" {
		t.Errorf("Other < %s", got)
	}
}

func TestResolverErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want diagnostics.ErrorCode
	}{
		{"unresolved superclass", `body:
  - class: Foo
    super: Missing
`, diagnostics.ErrStubConstant},
		{"dynamic superclass", `body:
  - class: Foo
    super: {call: make}
`, diagnostics.ErrDynamicSuperclass},
		{"module as superclass", `body:
  - module: M
  - class: C
    super: M
`, diagnostics.ErrSuperclassIsModule},
		{"include a class", `body:
  - class: K
  - class: C
    body:
      - include: K
`, diagnostics.ErrIncludesNonModule},
		{"circular superclass", `body:
  - class: A
    super: B
  - class: B
    super: A
`, diagnostics.ErrCircularDependency},
		{"parent changes", `body:
  - class: A
  - class: B
  - class: C
    super: A
  - class: C
    super: B
`, diagnostics.ErrRedefinitionOfParents},
		{"subclass of final", `body:
  - class: F
    body:
      - flag: final
  - class: G
    super: F
`, diagnostics.ErrSubclassingFinal},
		{"type arity", `body:
  - sig: {returns: "T::Array[Integer, String]"}
  - def: run
`, diagnostics.ErrBadTypeArity},
		{"undeclared type parameter", `body:
  - sig: {returns: "T.type_parameter(:U)"}
  - def: run
`, diagnostics.ErrUnknownTypeParameter},
		{"parameter without type", `body:
  - sig: {returns: Integer}
  - def: run
    params: [x]
`, diagnostics.ErrInvalidMethodSignature},
		{"abstract method with body", `body:
  - class: A
    body:
      - flag: abstract
      - sig: {abstract: true, returns: Integer}
      - def: run
        body:
          - 1
`, diagnostics.ErrAbstractMethodWithBody},
		{"abstract method in concrete class", `body:
  - class: A
    body:
      - sig: {abstract: true, returns: Integer}
      - def: run
`, diagnostics.ErrAbstractMethodOutsideAbs},
		{"abstract method not implemented", `body:
  - class: A
    body:
      - flag: abstract
      - sig: {abstract: true, returns: Integer}
      - def: run
  - class: B
    super: A
`, diagnostics.ErrBadAbstractMethod},
		{"override of nothing", `body:
  - class: A
    body:
      - sig: {override: true, returns: Integer}
      - def: run
`, diagnostics.ErrUndeclaredOverride},
		{"override of final method", `body:
  - class: A
    body:
      - sig: {final: true, returns: Integer}
      - def: run
  - class: B
    super: A
    body:
      - def: run
`, diagnostics.ErrOverridesFinal},
		{"incompatible override", `body:
  - class: A
    body:
      - sig: {overridable: true, params: {x: Integer}, returns: Integer}
      - def: run
        params: [x]
  - class: B
    super: A
    body:
      - sig: {override: true, params: {x: Integer}, returns: String}
      - def: run
        params: [x]
`, diagnostics.ErrBadMethodOverride},
		{"covariant member in class", `body:
  - class: Box
    body:
      - type_member: Elem
        variance: out
`, diagnostics.ErrVariantTypeMemberInClass},
		{"inherited member not redeclared", `body:
  - module: Coll
    body:
      - type_member: Elem
  - class: Impl
    body:
      - include: Coll
`, diagnostics.ErrParentTypeNotDeclared},
		{"inherited member variance", `body:
  - module: Coll
    body:
      - type_member: Elem
        variance: out
  - class: Impl
    body:
      - include: Coll
      - type_member: Elem
`, diagnostics.ErrParentVarianceMismatch},
		{"type member bound", `body:
  - class: Box
    body:
      - type_member: Elem
        upper: Integer
  - sig: {returns: "Box[String]"}
  - def: make
`, diagnostics.ErrTypeArgumentBound},
		{"type member cycle", `body:
  - class: Box
    body:
      - type_member: A
        upper: B
      - type_member: B
        upper: A
`, diagnostics.ErrTypeMemberCycle},
		{"recursive alias", `body:
  - type_alias: Rec
    type: "T.nilable(Rec)"
`, diagnostics.ErrRecursiveTypeAlias},
		{"field redeclared", `body:
  - class: C
    body:
      - def: initialize
        body:
          - assign: {ivar: x}
            value: {let: 1, type: Integer}
  - class: C
    body:
      - def: initialize
        body:
          - assign: {ivar: x}
            value: {let: a, type: String}
`, diagnostics.ErrFieldRedeclared},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gs := resolve(t, checktest.Decode(t, "x.ast.yaml", tt.src))
			if diff := cmp.Diff([]diagnostics.ErrorCode{tt.want}, codes(gs.Errors())); diff != "" {
				t.Errorf("codes (-want +got):\n%s\nerrors: %v", diff, gs.Errors())
			}
		})
	}
}

func TestStubReportedOncePerScope(t *testing.T) {
	gs := resolve(t, checktest.Decode(t, "s.ast.yaml", `body:
  - class: C
    body:
      - sig: {returns: Missing}
      - def: a
      - sig: {returns: Missing}
      - def: b
`))
	errs := gs.Errors()
	if len(errs) != 1 || errs[0].Code != diagnostics.ErrStubConstant {
		t.Fatalf("errors = %v", errs)
	}
	if len(errs[0].Related) != 1 {
		t.Errorf("second use should be a related location, got %v", errs[0].Related)
	}
	m := gs.Symbol(gs.Symbol(lookup(t, gs, "C")).Methods["a"])
	if got := m.Sigs[0].Return.String(); got != "T.untyped" {
		t.Errorf("unresolved return type = %s", got)
	}
}

func TestSignatures(t *testing.T) {
	gs := resolve(t, checktest.Decode(t, "g.ast.yaml", `body:
  - module: Util
    body:
      - type_alias: MaybeInt
        type: "T.nilable(Integer)"
      - sig:
          type_params: [U]
          params: {x: "T.type_parameter(:U)", "y": MaybeInt}
          returns: "T::Array[T.type_parameter(:U)]"
      - defs: wrap
        params: [x, y, "&blk"]
      - sig: void
      - def: touch
`))
	if errs := gs.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	util := gs.Symbol(lookup(t, gs, "Util"))
	wrap := gs.Symbol(gs.Symbol(util.Singleton).Methods["wrap"])
	if got := gs.FullName(wrap.ID) + symbols.ShowSignature(wrap.Sigs[0]); got !=
		"Util.wrap(x: T.type_parameter(:U), y: T.nilable(Integer), &blk: T.untyped): T::Array[T.type_parameter(:U)]" {
		t.Errorf("signature = %s", got)
	}
	touch := gs.Symbol(util.Methods["touch"])
	if got := touch.Sigs[0].Return.String(); got != "void" {
		t.Errorf("touch returns %s", got)
	}
}

func TestResolveBodies(t *testing.T) {
	gs := resolve(t, checktest.Decode(t, "b.ast.yaml", `body:
  - class: Box
    body:
      - def: run
        body:
          - call: new
            recv: Box
          - let: Nope
            type: "T.nilable(Box)"
          - Nope
`))
	if errs := gs.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	gs.Freeze()
	br := ResolveBodies(gs, "b.ast.yaml")

	var resolved, unresolved int
	for _, id := range br.ConstRefs {
		if id == symbols.NoSymbol {
			unresolved++
		} else {
			resolved++
		}
	}
	if resolved != 1 || unresolved != 2 {
		t.Errorf("resolved=%d unresolved=%d, want 1 and 2", resolved, unresolved)
	}
	// The receiver and the name inside the T.let type.
	if len(br.Refs) != 2 {
		t.Errorf("refs = %v", br.Refs)
	}
	if len(br.Diagnostics) != 1 || len(br.Diagnostics[0].Related) != 1 {
		t.Errorf("diagnostics = %v", br.Diagnostics)
	}
	if len(br.Types) != 1 {
		t.Fatalf("types = %v", br.Types)
	}
	for _, typ := range br.Types {
		if typ.String() != "T.nilable(Box)" {
			t.Errorf("T.let type = %s", typ)
		}
	}
}
