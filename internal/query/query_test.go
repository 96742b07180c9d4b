package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/checktest"
	"github.com/funvibe/sigcheck/internal/driver"
	"github.com/funvibe/sigcheck/internal/symbols"
	"github.com/funvibe/sigcheck/internal/token"
)

const lib = `body:
  - class: Box
    body:
      - sig: {params: {x: Integer}, returns: Integer}
      - def: put
        params: [x]
        body:
          - x
`

const app = `body:
  - sig: {returns: Integer}
  - def: main
    body:
      - assign: b
        value: {call: new, recv: Box}
      - call: put
        recv: b
        args: [1]
`

type fixture struct {
	gs   *symbols.GlobalState
	main *ast.MethodDef
	box  *ast.ClassDef
}

func load(t *testing.T) fixture {
	t.Helper()
	appProg := checktest.Decode(t, "app.ast.yaml", app)
	libProg := checktest.Decode(t, "lib.ast.yaml", lib)
	snap, err := driver.New(nil, nil).FullRun(context.Background(), []*ast.Program{appProg, libProg})
	require.NoError(t, err)
	require.Empty(t, snap.Diagnostics)
	return fixture{
		gs:   snap.GlobalState,
		main: appProg.Body[1].(*ast.MethodDef),
		box:  libProg.Body[0].(*ast.ClassDef),
	}
}

func (f fixture) putCall() *ast.Call { return f.main.Body[1].(*ast.Call) }

func TestSymbolAtCall(t *testing.T) {
	f := load(t)
	call := f.putCall()
	hit, ok := SymbolAt(f.gs, "app.ast.yaml", call.MethodLoc.Start)
	require.True(t, ok)
	assert.Equal(t, HitCall, hit.Kind)
	assert.Equal(t, "Box#put", f.gs.FullName(hit.Symbol))

	defs := Definition(f.gs, hit.Symbol)
	require.Len(t, defs, 1)
	assert.Equal(t, "lib.ast.yaml", defs[0].File)
	assert.Equal(t, 5, defs[0].Start.Line)

	refs := References(f.gs, hit.Symbol)
	var files []string
	for _, r := range refs {
		files = append(files, r.File)
	}
	assert.Equal(t, []string{"app.ast.yaml", "lib.ast.yaml"}, files)

	text, ok := Hover(f.gs, "app.ast.yaml", call.MethodLoc.Start)
	require.True(t, ok)
	assert.Equal(t, "def Box#put(x: Integer): Integer", text)
}

func TestSymbolAtConstant(t *testing.T) {
	f := load(t)
	ref := f.main.Body[0].(*ast.Assign).Value.(*ast.Call).Recv.(*ast.ConstRef)
	hit, ok := SymbolAt(f.gs, "app.ast.yaml", ref.Loc.Start)
	require.True(t, ok)
	assert.Equal(t, HitConstant, hit.Kind)
	assert.Equal(t, "Box", f.gs.FullName(hit.Symbol))

	refs := References(f.gs, hit.Symbol)
	assert.Contains(t, refs, ref.Loc)
	assert.Contains(t, refs, f.box.Name.Loc)
}

func TestHoverOnDefinition(t *testing.T) {
	f := load(t)
	text, ok := Hover(f.gs, "lib.ast.yaml", f.box.Name.Loc.Start)
	require.True(t, ok)
	assert.Equal(t, "class Box < Object", text)
}

func TestTypeAt(t *testing.T) {
	f := load(t)
	recv := f.putCall().Recv.(*ast.Local)
	typ, loc, ok := TypeAt(f.gs, "app.ast.yaml", recv.Loc.Start)
	require.True(t, ok)
	assert.Equal(t, "Box", typ)
	assert.Equal(t, recv.Loc, loc)

	_, _, ok = TypeAt(f.gs, "app.ast.yaml", token.Pos{Line: 1, Column: 1})
	assert.False(t, ok)
	_, _, ok = TypeAt(f.gs, "missing.ast.yaml", recv.Loc.Start)
	assert.False(t, ok)
}
