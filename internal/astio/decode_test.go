package astio

import (
	"testing"

	"golang.org/x/text/encoding/unicode"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/token"
)

const sample = `sigil: strict
body:
  - class: Foo
    super: Bar
    body:
      - include: Mixin
      - sig: {params: {x: Integer, y: "T.nilable(String)"}, returns: "T::Array[Integer]"}
      - def: run
        params: [x, {opt: y, default: nil}]
        body:
          - assign: z
            value: {call: +, recv: x, args: [1]}
          - {ivar: count}
  - call: puts
    args:
      - "hello"
      - :sym
      - 1.5
`

func TestDecodeSample(t *testing.T) {
	prog, err := Decode("a.ast.yaml", []byte(sample))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if prog.Sigil != ast.SigilStrict {
		t.Errorf("sigil = %s", prog.Sigil)
	}
	if len(prog.Body) != 2 {
		t.Fatalf("body has %d statements", len(prog.Body))
	}
	cls, ok := prog.Body[0].(*ast.ClassDef)
	if !ok {
		t.Fatalf("first statement is %T", prog.Body[0])
	}
	if cls.Name.String() != "Foo" || cls.Superclass.(*ast.ConstRef).String() != "Bar" {
		t.Errorf("class %s < %v", cls.Name, cls.Superclass)
	}
	if cls.Name.Loc.Start != (token.Pos{Line: 3, Column: 12}) {
		t.Errorf("class name at %v", cls.Name.Loc.Start)
	}
	sig, ok := cls.Body[1].(*ast.Sig)
	if !ok {
		t.Fatalf("expected sig, got %T", cls.Body[1])
	}
	if len(sig.Params) != 2 || sig.Params[1].Name != "y" {
		t.Fatalf("sig params = %+v", sig.Params)
	}
	if _, ok := sig.Params[1].Type.(*ast.TypeNilable); !ok {
		t.Errorf("y: %T", sig.Params[1].Type)
	}
	ret, ok := sig.Returns.(*ast.TypeName)
	if !ok || ret.Ref.String() != "T::Array" || len(ret.Args) != 1 {
		t.Errorf("returns = %#v", sig.Returns)
	}
	def := cls.Body[2].(*ast.MethodDef)
	if len(def.Params) != 2 || def.Params[1].Kind != ast.ParamOpt {
		t.Errorf("params = %+v", def.Params)
	}
	assign := def.Body[0].(*ast.Assign)
	call := assign.Value.(*ast.Call)
	if call.Method != "+" || call.Recv.(*ast.Local).Name != "x" {
		t.Errorf("call = %+v", call)
	}
	if iv := def.Body[1].(*ast.Ivar); iv.Name != "@count" {
		t.Errorf("ivar = %s", iv.Name)
	}
	puts := prog.Body[1].(*ast.Call)
	if _, ok := puts.Args[0].(*ast.StringLit); !ok {
		t.Errorf("quoted scalar decoded as %T", puts.Args[0])
	}
	if s, ok := puts.Args[1].(*ast.SymbolLit); !ok || s.Value != "sym" {
		t.Errorf("symbol decoded as %#v", puts.Args[1])
	}
	if _, ok := puts.Args[2].(*ast.FloatLit); !ok {
		t.Errorf("float decoded as %T", puts.Args[2])
	}
}

func TestDecodeUTF16(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	data, err := enc.Bytes([]byte("sigil: true\nbody:\n  - x\n"))
	if err != nil {
		t.Fatal(err)
	}
	prog, err := Decode("u.ast.yaml", data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(prog.Body) != 1 {
		t.Fatalf("body = %v", prog.Body)
	}
	if l, ok := prog.Body[0].(*ast.Local); !ok || l.Name != "x" {
		t.Errorf("decoded %#v", prog.Body[0])
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []string{
		"body:\n  - {frobnicate: x}\n",
		"body:\n  - {sig: {params: {x: Integer}}}\n",
		"body:\n  - {let: x}\n",
		"body:\n  - {assign: Foo, value: 1}\n",
		"nonsense: 1\n",
	}
	for _, src := range tests {
		if _, err := Decode("bad.ast.yaml", []byte(src)); err == nil {
			t.Errorf("expected an error for %q", src)
		}
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"Integer", "*ast.TypeName"},
		{"T.nilable(Integer)", "*ast.TypeNilable"},
		{"T.any(Integer, String)", "*ast.TypeAny"},
		{"T.all(A, B)", "*ast.TypeAll"},
		{"[Integer, String]", "*ast.TypeTuple"},
		{`{a: Integer, "b" => String}`, "*ast.TypeShape"},
		{"T.untyped", "*ast.TypeUntyped"},
		{"T.noreturn", "*ast.TypeNoReturn"},
		{"T.self_type", "*ast.TypeSelf"},
		{"T.type_parameter(:U)", "*ast.TypeParamRef"},
		{"T.class_of(Foo::Bar)", "*ast.TypeClassOf"},
		{"T::Hash[Symbol, T::Array[String]]", "*ast.TypeName"},
	}
	base := token.Loc{File: "t", Start: token.Pos{Line: 1, Column: 1}}
	for _, tt := range tests {
		got, err := ParseType(tt.src, base)
		if err != nil {
			t.Errorf("ParseType(%q): %v", tt.src, err)
			continue
		}
		if name := typeName(got); name != tt.want {
			t.Errorf("ParseType(%q) = %s, want %s", tt.src, name, tt.want)
		}
	}

	for _, bad := range []string{"", "T.nilable(A, B)", "[A", "lower", "T.frob", "A B"} {
		if _, err := ParseType(bad, base); err == nil {
			t.Errorf("ParseType(%q) should fail", bad)
		}
	}
}

func TestParseTypeLocations(t *testing.T) {
	base := token.Loc{File: "t", Start: token.Pos{Line: 4, Column: 10}}
	got, err := ParseType("T.nilable(Foo)", base)
	if err != nil {
		t.Fatal(err)
	}
	inner := got.(*ast.TypeNilable).Inner.(*ast.TypeName)
	if inner.Loc.Start != (token.Pos{Line: 4, Column: 20}) {
		t.Errorf("inner starts at %v", inner.Loc.Start)
	}
}

func typeName(t ast.TypeExpr) string {
	switch t.(type) {
	case *ast.TypeName:
		return "*ast.TypeName"
	case *ast.TypeNilable:
		return "*ast.TypeNilable"
	case *ast.TypeAny:
		return "*ast.TypeAny"
	case *ast.TypeAll:
		return "*ast.TypeAll"
	case *ast.TypeTuple:
		return "*ast.TypeTuple"
	case *ast.TypeShape:
		return "*ast.TypeShape"
	case *ast.TypeUntyped:
		return "*ast.TypeUntyped"
	case *ast.TypeNoReturn:
		return "*ast.TypeNoReturn"
	case *ast.TypeSelf:
		return "*ast.TypeSelf"
	case *ast.TypeParamRef:
		return "*ast.TypeParamRef"
	case *ast.TypeClassOf:
		return "*ast.TypeClassOf"
	}
	return "?"
}
