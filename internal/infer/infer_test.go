package infer

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/checktest"
	"github.com/funvibe/sigcheck/internal/config"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/namer"
	"github.com/funvibe/sigcheck/internal/resolver"
	"github.com/funvibe/sigcheck/internal/symbols"
)

const file = "a.ast.yaml"

// check runs the whole front end over one file and returns its body
// results.
func check(t *testing.T, src string) *symbols.BodyResults {
	t.Helper()
	ctx := context.Background()
	conf := config.Default()
	gs := symbols.GetPrelude().DeepCopy()
	res, err := namer.Run(ctx, gs, []*ast.Program{checktest.Decode(t, file, src)}, conf)
	if err != nil {
		t.Fatalf("namer: %v", err)
	}
	if err := resolver.Run(ctx, gs, res, conf); err != nil {
		t.Fatalf("resolver: %v", err)
	}
	if errs := gs.Errors(); len(errs) != 0 {
		t.Fatalf("definition errors: %v", errs)
	}
	results, err := Run(ctx, gs, []string{file}, conf)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	br := results[file]
	for _, ie := range br.InternalErrors {
		t.Errorf("internal error: %v", ie)
	}
	return br
}

func codes(errs []*diagnostics.DiagnosticError) []diagnostics.ErrorCode {
	var out []diagnostics.ErrorCode
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func expectCodes(t *testing.T, br *symbols.BodyResults, want ...diagnostics.ErrorCode) {
	t.Helper()
	if diff := cmp.Diff(want, codes(br.Diagnostics)); diff != "" {
		t.Errorf("diagnostic codes (-want +got):\n%s\n%v", diff, br.Diagnostics)
	}
}

func revealed(br *symbols.BodyResults) []string {
	var out []string
	for _, d := range br.Diagnostics {
		if d.Code == diagnostics.ErrRevealType {
			out = append(out, d.Message)
		}
	}
	return out
}

func TestArgumentMismatch(t *testing.T) {
	br := check(t, `sigil: true
body:
  - class: A
    body:
      - sig: {params: {x: Integer}, returns: Integer}
      - def: foo
        params: [x]
        body:
          - x
      - sig: {returns: Integer}
      - def: bar
        body:
          - call: foo
            args: ["hi"]
`)
	expectCodes(t, br, diagnostics.ErrMethodArgumentMismatch)
	if len(br.Diagnostics) != 1 {
		return
	}
	d := br.Diagnostics[0]
	if d.Loc.Start.Line != 14 {
		t.Errorf("reported at line %d, want the argument on line 14", d.Loc.Start.Line)
	}
	if want := "Expected `Integer` but found `String` for argument `x`"; d.Message != want {
		t.Errorf("message = %q, want %q", d.Message, want)
	}
	if len(d.Related) != 1 || d.Related[0].Start.Line != 7 {
		t.Errorf("related = %v, want the parameter of foo", d.Related)
	}
	if len(br.Calls) != 1 {
		t.Errorf("recorded %d call sites, want 1", len(br.Calls))
	}
}

func TestUnknownMethod(t *testing.T) {
	br := check(t, `body:
  - sig: {params: {x: Integer}, returns: void}
  - def: f
    params: [x]
    body:
      - call: frobnicate
        recv: x
`)
	expectCodes(t, br, diagnostics.ErrUnknownMethod)
	if len(br.Diagnostics) == 1 && !strings.Contains(br.Diagnostics[0].Message, "`frobnicate` does not exist on `Integer`") {
		t.Errorf("message = %q", br.Diagnostics[0].Message)
	}
}

func TestLoopVariableIsPinned(t *testing.T) {
	br := check(t, `body:
  - sig: void
  - def: f
    body:
      - assign: x
        value: 1
      - while: true
        do:
          - assign: x
            value: "s"
`)
	expectCodes(t, br, diagnostics.ErrPinnedVariable)
}

func TestLoopCounter(t *testing.T) {
	br := check(t, `body:
  - sig: {params: {n: Integer}, returns: void}
  - def: f
    params: [n]
    body:
      - while: {call: positive?, recv: n}
        do:
          - assign: y
            value: n
          - assign: n
            value: {call: "-", recv: y, args: [1]}
`)
	expectCodes(t, br)
}

func TestGenericMethodInstantiation(t *testing.T) {
	br := check(t, `body:
  - sig: {type_params: [U], params: {x: "T.type_parameter(:U)"}, returns: "T.type_parameter(:U)"}
  - def: id
    params: [x]
    body:
      - x
  - sig: {returns: Integer}
  - def: use
    body:
      - reveal_type: {call: id, args: [5]}
`)
	if diff := cmp.Diff([]string{"Revealed type: `Integer`"}, revealed(br)); diff != "" {
		t.Errorf("reveal_type (-want +got):\n%s", diff)
	}
	expectCodes(t, br, diagnostics.ErrRevealType)
}

const suit = `body:
  - class: Suit
    super: T::Enum
    body:
      - enums: [Spades, Hearts]
  - sig: {params: {s: Suit}, returns: Integer}
  - def: rank
    params: [s]
    body:
      - case: s
        when:
%s
        else:
          - absurd: s
`

func TestExhaustiveCase(t *testing.T) {
	whens := `          - match: [Suit::Spades]
            then: [1]
          - match: [Suit::Hearts]
            then: [2]`
	br := check(t, strings.Replace(suit, "%s", whens, 1))
	expectCodes(t, br)
}

func TestNonExhaustiveCase(t *testing.T) {
	whens := `          - match: [Suit::Spades]
            then: [1]`
	br := check(t, strings.Replace(suit, "%s", whens, 1))
	expectCodes(t, br, diagnostics.ErrNotExhaustive)
	if len(br.Diagnostics) == 1 && !strings.Contains(br.Diagnostics[0].Message, "Suit::Hearts") {
		t.Errorf("message %q should name the unhandled case", br.Diagnostics[0].Message)
	}
}

func TestNarrowing(t *testing.T) {
	br := check(t, `body:
  - sig: {params: {x: "T.nilable(Integer)"}, returns: Integer}
  - def: f
    params: [x]
    body:
      - if: {call: nil?, recv: x}
        then:
          - 0
        else:
          - call: succ
            recv: x
  - sig: {params: {x: "T.any(Integer, String)"}, returns: Integer}
  - def: g
    params: [x]
    body:
      - if: {call: is_a?, recv: x, args: [String]}
        then:
          - call: length
            recv: x
        else:
          - call: succ
            recv: x
  - sig: {params: {x: "T.nilable(String)"}, returns: String}
  - def: h
    params: [x]
    body:
      - if: x
        then:
          - x
        else:
          - "none"
`)
	expectCodes(t, br)
}

func TestWithoutNarrowing(t *testing.T) {
	br := check(t, `body:
  - sig: {params: {x: "T.nilable(Integer)"}, returns: Integer}
  - def: f
    params: [x]
    body:
      - call: succ
        recv: x
`)
	expectCodes(t, br, diagnostics.ErrUnknownMethod)
	if len(br.Diagnostics) == 1 && !strings.Contains(br.Diagnostics[0].Message, "component of") {
		t.Errorf("message = %q", br.Diagnostics[0].Message)
	}
}

func TestDeadCodeAfterReturn(t *testing.T) {
	br := check(t, `body:
  - sig: {returns: Integer}
  - def: f
    body:
      - return: 1
      - call: puts
        args: [2]
      - call: puts
        args: [3]
`)
	expectCodes(t, br, diagnostics.ErrDeadBranch)
}

func TestOverloads(t *testing.T) {
	br := check(t, `body:
  - sig: void
  - def: f
    body:
      - reveal_type: {call: "+", recv: 1, args: [2]}
      - reveal_type: {call: "+", recv: 1, args: [1.5]}
  - sig: void
  - def: g
    body:
      - call: "+"
        recv: 1
        args: ["a"]
`)
	want := []string{"Revealed type: `Integer`", "Revealed type: `Float`"}
	if diff := cmp.Diff(want, revealed(br)); diff != "" {
		t.Errorf("reveal_type (-want +got):\n%s", diff)
	}
	var mismatch []string
	for _, d := range br.Diagnostics {
		if d.Code == diagnostics.ErrMethodArgumentMismatch {
			mismatch = append(mismatch, d.Message)
		}
	}
	if diff := cmp.Diff([]string{"Expected `Integer` but found `String` for argument `other`"}, mismatch); diff != "" {
		t.Errorf("first overload should be reported (-want +got):\n%s", diff)
	}
}

func TestBodyErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []diagnostics.ErrorCode
	}{
		{"let reassigned", `body:
  - sig: void
  - def: f
    body:
      - assign: x
        value: {let: 1, type: Integer}
      - assign: x
        value: "s"
`, []diagnostics.ErrorCode{diagnostics.ErrIncompatibleDeclared}},
		{"let mismatch", `body:
  - sig: void
  - def: f
    body:
      - assign: x
        value: {let: "s", type: Integer}
`, []diagnostics.ErrorCode{diagnostics.ErrCastTypeMismatch}},
		{"return mismatch", `body:
  - sig: {returns: String}
  - def: f
    body:
      - 1
`, []diagnostics.ErrorCode{diagnostics.ErrReturnTypeMismatch}},
		{"void result used", `body:
  - sig: void
  - def: v
  - sig: void
  - def: f
    body:
      - call: succ
        recv: {call: v}
`, []diagnostics.ErrorCode{diagnostics.ErrVoidValue}},
		{"missing sig in strict file", `sigil: strict
body:
  - def: f
`, []diagnostics.ErrorCode{diagnostics.ErrMissingSignature}},
		{"no sig needed below strict", `body:
  - def: f
    body:
      - call: frobnicate
        recv: 1
`, []diagnostics.ErrorCode{diagnostics.ErrUnknownMethod}},
		{"ignored below true", `sigil: false
body:
  - def: f
    body:
      - call: frobnicate
        recv: 1
`, nil},
		{"break outside loop", `body:
  - sig: void
  - def: f
    body:
      - break: 1
`, []diagnostics.ErrorCode{diagnostics.ErrBreakOutsideLoop}},
		{"unnecessary must", `body:
  - sig: {params: {x: Integer}, returns: Integer}
  - def: f
    params: [x]
    body:
      - must: x
`, []diagnostics.ErrorCode{diagnostics.ErrUnnecessaryMust}},
		{"keyword arguments", `body:
  - sig: {params: {a: Integer}, returns: void}
  - def: k
    params: ["a:"]
  - sig: void
  - def: f
    body:
      - call: k
        kwargs: {b: 1}
`, []diagnostics.ErrorCode{diagnostics.ErrMethodArgumentCount, diagnostics.ErrMethodArgumentCount}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br := check(t, tt.src)
			if diff := cmp.Diff(tt.want, codes(br.Diagnostics)); diff != "" {
				t.Errorf("codes (-want +got):\n%s\n%v", diff, br.Diagnostics)
			}
		})
	}
}

func TestConstruction(t *testing.T) {
	br := check(t, `body:
  - class: Point
    body:
      - sig: {params: {x: Integer}, returns: void}
      - def: initialize
        params: [x]
  - class: Shape
    body:
      - flag: abstract
  - sig: {returns: Point}
  - def: make
    body:
      - call: new
        recv: Point
  - sig: void
  - def: shape
    body:
      - call: new
        recv: Shape
  - sig: {returns: Point}
  - def: ok
    body:
      - call: new
        recv: Point
        args: [1]
`)
	expectCodes(t, br, diagnostics.ErrMethodArgumentCount, diagnostics.ErrInstantiatingAbstract)
	if len(br.Diagnostics) > 0 {
		want := "Not enough arguments provided for method `Point#initialize`. Expected: `1`, got: `0`"
		if got := br.Diagnostics[0].Message; got != want {
			t.Errorf("message = %q, want %q", got, want)
		}
	}
}

func TestTypedLocations(t *testing.T) {
	br := check(t, `body:
  - sig: void
  - def: f
    body:
      - assign: x
        value: 1
      - call: to_s
        recv: x
`)
	expectCodes(t, br)
	var types []string
	for _, tl := range br.Typed {
		types = append(types, tl.Type.String())
	}
	want := []string{"Integer", "Integer", "Integer", "String"}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("typed locations (-want +got):\n%s", diff)
	}
}

func TestBlockVisitBound(t *testing.T) {
	ctx := context.Background()
	conf := config.Default()
	conf.MaxBlockVisits = 1
	gs := symbols.GetPrelude().DeepCopy()
	res, err := namer.Run(ctx, gs, []*ast.Program{checktest.Decode(t, file, `sigil: true
body:
  - sig: {returns: Integer}
  - def: straight
    body:
      - 1
  - sig: {params: {x: "T.nilable(Integer)"}, returns: Integer}
  - def: loop
    params: [x]
    body:
      - assign: y
        value: 0
      - while: x
        do:
          - assign: y
            value: {call: +, recv: y, args: [1]}
      - y
`)}, conf)
	if err != nil {
		t.Fatalf("namer: %v", err)
	}
	if err := resolver.Run(ctx, gs, res, conf); err != nil {
		t.Fatalf("resolver: %v", err)
	}
	results, err := Run(ctx, gs, []string{file}, conf)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	br := results[file]
	if len(br.InternalErrors) != 1 {
		t.Fatalf("internal errors = %v, want one for the loop", br.InternalErrors)
	}
	if msg := br.InternalErrors[0].Error(); !strings.Contains(msg, "loop") || !strings.Contains(msg, "did not converge") {
		t.Errorf("internal error = %q", msg)
	}
	if len(br.Diagnostics) != 0 {
		t.Errorf("diagnostics of a method that hit the bound were kept: %v", br.Diagnostics)
	}
}
