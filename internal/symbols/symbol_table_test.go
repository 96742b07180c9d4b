package symbols

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/funvibe/sigcheck/internal/token"
	"github.com/funvibe/sigcheck/internal/typesystem"
)

func names(gs *GlobalState, ids []SymbolID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = gs.FullName(id)
	}
	return out
}

func TestPreludeIDs(t *testing.T) {
	gs := GetPrelude()
	checks := map[SymbolID]string{
		ObjectID:      "Object",
		KernelID:      "Kernel",
		IntegerID:     "Integer",
		SymbolClassID: "Symbol",
		TEnumID:       "T::Enum",
		TBooleanID:    "T::Boolean",
	}
	for id, want := range checks {
		if got := gs.FullName(id); got != want {
			t.Errorf("FullName(%d) = %q, want %q", id, got, want)
		}
	}
	if !gs.Frozen() {
		t.Error("prelude should be frozen")
	}
	if got := gs.Symbol(TBooleanID).Type.String(); got != "T::Boolean" {
		t.Errorf("T::Boolean aliases %s", got)
	}
}

func TestPreludeLinearization(t *testing.T) {
	gs := GetPrelude()
	want := []string{"Integer", "Numeric", "Comparable", "Object", "Kernel", "BasicObject"}
	if diff := cmp.Diff(want, names(gs, gs.Symbol(IntegerID).Linearization)); diff != "" {
		t.Errorf("Integer ancestors (-want +got):\n%s", diff)
	}
	if !gs.DerivesFrom(ArrayID, EnumerableID) {
		t.Error("Array should derive from Enumerable")
	}
	if gs.DerivesFrom(HashID, EnumerableID) {
		t.Error("Hash does not include Enumerable")
	}
}

func TestLinearizeMostRecentIncludeFirst(t *testing.T) {
	gs := GetPrelude().DeepCopy()
	enter := func(name string, module bool, super SymbolID, mixins ...SymbolID) SymbolID {
		id, _ := gs.EnterClass(RootID, name, module)
		s := gs.Mutable(id)
		s.Superclass = super
		s.Mixins = mixins
		return id
	}
	m1 := enter("M1", true, NoSymbol)
	m2 := enter("M2", true, NoSymbol)
	m3 := enter("M3", true, NoSymbol, m1)
	a := enter("A", false, ObjectID, m1)
	b := enter("B", false, a, m2, m3)

	want := []string{"B", "M3", "M2", "A", "M1", "Object", "Kernel", "BasicObject"}
	if diff := cmp.Diff(want, names(gs, gs.Linearize(b))); diff != "" {
		t.Errorf("lin(B) (-want +got):\n%s", diff)
	}

	single := gs.SingletonClass(b)
	want = []string{"T.class_of(B)", "T.class_of(A)", "T.class_of(Object)", "T.class_of(BasicObject)",
		"Class", "Module", "Object", "Kernel", "BasicObject"}
	if diff := cmp.Diff(want, names(gs, gs.Linearize(single))); diff != "" {
		t.Errorf("lin(singleton B) (-want +got):\n%s", diff)
	}
}

func TestEnterClassIsIdempotent(t *testing.T) {
	gs := GetPrelude().DeepCopy()
	a, existing := gs.EnterClass(RootID, "Foo", false)
	if existing {
		t.Fatal("first EnterClass reported existing")
	}
	b, existing := gs.EnterClass(RootID, "Foo", false)
	if !existing || a != b {
		t.Fatalf("second EnterClass = %d,%v want %d,true", b, existing, a)
	}
	m := gs.EnterMangledMethod(a, "run")
	if got := gs.Symbol(m).Name; got != "run$1" {
		t.Errorf("mangled name = %q", got)
	}
	if got := gs.Symbol(gs.EnterMangledMethod(a, "run")).Name; got != "run$2" {
		t.Errorf("second mangled name = %q", got)
	}
}

func TestDeepCopyIsIndependent(t *testing.T) {
	base := GetPrelude().DeepCopy()
	foo, _ := base.EnterClass(RootID, "Foo", false)
	cp := base.DeepCopy()
	cp.Mutable(foo).Name = "Bar"
	cp.EnterMethod(foo, "extra")
	if base.Symbol(foo).Name != "Foo" {
		t.Error("DeepCopy shares symbols")
	}
	if base.Symbol(foo).Methods["extra"] != NoSymbol {
		t.Error("DeepCopy shares method maps")
	}
	if cp.Generation() != base.Generation()+1 {
		t.Errorf("generation = %d, want %d", cp.Generation(), base.Generation()+1)
	}
}

func expectInternalError(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		r := recover()
		if _, ok := typesystem.AsInternalError(r); !ok {
			t.Errorf("%s: expected internal error panic, got %v", name, r)
		}
	}()
	f()
}

func TestFrozenStateRejectsMutation(t *testing.T) {
	gs := GetPrelude()
	expectInternalError(t, "EnterClass", func() { gs.EnterClass(RootID, "Nope", false) })
	expectInternalError(t, "Mutable", func() { gs.Mutable(ObjectID) })

	shallow := gs.ShallowCopy()
	expectInternalError(t, "shallow EnterMethod", func() { shallow.EnterMethod(ObjectID, "nope") })
	expectInternalError(t, "bad id", func() { gs.Symbol(SymbolID(gs.Len() + 5)) })
}

func TestShallowCopyTakesBodyResults(t *testing.T) {
	base := GetPrelude().DeepCopy()
	base.SetFile(&FileState{Path: "a.ast.yaml"})
	base.Freeze()
	cp := base.ShallowCopy()
	br := NewBodyResults()
	cp.SetBodyResults("a.ast.yaml", br)
	if base.File("a.ast.yaml").Body != nil {
		t.Error("SetBodyResults leaked into the frozen original")
	}
	if cp.File("a.ast.yaml").Body != br {
		t.Error("copy lost its body results")
	}
}

func TestFullName(t *testing.T) {
	gs := GetPrelude().DeepCopy()
	outer, _ := gs.EnterClass(RootID, "Outer", true)
	inner, _ := gs.EnterClass(outer, "Inner", false)
	m, _ := gs.EnterMethod(inner, "run")
	sm, _ := gs.EnterMethod(gs.SingletonClass(inner), "build")
	tests := []struct {
		id   SymbolID
		want string
	}{
		{inner, "Outer::Inner"},
		{m, "Outer::Inner#run"},
		{sm, "Outer::Inner.build"},
		{gs.SingletonClass(inner), "T.class_of(Outer::Inner)"},
	}
	for _, tt := range tests {
		if got := gs.FullName(tt.id); got != tt.want {
			t.Errorf("FullName = %q, want %q", got, tt.want)
		}
	}
}

func TestAddLocKeepsOrder(t *testing.T) {
	loc := func(file string, line int) token.Loc {
		return token.Loc{File: file, Start: token.Pos{Line: line, Column: 1}, End: token.Pos{Line: line, Column: 4}}
	}
	var s Symbol
	s.AddLoc(loc("b.rb", 3))
	s.AddLoc(loc("a.rb", 9))
	s.AddLoc(loc("b.rb", 1))
	s.AddLoc(loc("a.rb", 9))
	want := []token.Loc{loc("a.rb", 9), loc("b.rb", 1), loc("b.rb", 3)}
	if diff := cmp.Diff(want, s.Locs); diff != "" {
		t.Errorf("Locs (-want +got):\n%s", diff)
	}
}

func TestLookupMethodFollowsAncestors(t *testing.T) {
	gs := GetPrelude()
	if m := gs.LookupMethod(IntegerID, "puts"); gs.FullName(m) != "Kernel#puts" {
		t.Errorf("Integer#puts resolved to %s", gs.FullName(m))
	}
	if m := gs.LookupMethod(IntegerID, "+"); gs.Symbol(m).Owner != IntegerID {
		t.Errorf("Integer#+ resolved to %s", gs.FullName(m))
	}
	if m := gs.LookupMethod(IntegerID, "no_such_method"); m != NoSymbol {
		t.Errorf("missing method resolved to %s", gs.FullName(m))
	}
}

func TestExternalAndSelfType(t *testing.T) {
	gs := GetPrelude()
	if got := gs.ExternalType(ArrayID).String(); got != "T::Array[T.untyped]" {
		t.Errorf("ExternalType(Array) = %s", got)
	}
	if got := gs.SelfTypeOf(HashID).String(); got != "T::Hash[Hash::K, Hash::V]" {
		t.Errorf("SelfTypeOf(Hash) = %s", got)
	}
	b, ok := gs.Bounds(gs.member(ArrayID, "Elem"))
	if !ok || b.Upper != nil {
		t.Errorf("Bounds(Array::Elem) = %v, %v", b, ok)
	}
}
