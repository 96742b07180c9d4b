package driver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/checktest"
	"github.com/funvibe/sigcheck/internal/config"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/query"
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
      - call: put
        recv: {call: new, recv: Box}
        args: [1]
`

// appBad differs from app only inside a method body, on the same lines.
const appBad = `body:
  - sig: {returns: Integer}
  - def: main
    body:
      - call: put
        recv: {call: new, recv: Box}
        args: ["one"]
`

// appNewMethod adds a definition, which changes the symbol table.
const appNewMethod = `body:
  - sig: {returns: Integer}
  - def: main
    body:
      - call: put
        recv: {call: new, recv: Box}
        args: ["one"]
  - def: extra
`

func decode(t *testing.T, name, src string) *ast.Program {
	t.Helper()
	return checktest.Decode(t, name, src)
}

func messages(diags []*diagnostics.DiagnosticError) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Error()
	}
	return out
}

func TestFullRun(t *testing.T) {
	d := New(nil, nil)
	snap, err := d.FullRun(context.Background(), []*ast.Program{
		decode(t, "app.ast.yaml", appBad),
		decode(t, "lib.ast.yaml", lib),
	})
	require.NoError(t, err)
	require.True(t, snap.GlobalState.Frozen())
	require.Len(t, snap.Diagnostics, 1)
	assert.Equal(t, diagnostics.ErrMethodArgumentMismatch, snap.Diagnostics[0].Code)
	assert.Equal(t, "app.ast.yaml", snap.Diagnostics[0].Loc.File)
	assert.Empty(t, snap.InternalErrors)
	assert.False(t, snap.FastPath)
	assert.NotEmpty(t, snap.RunID)
}

const abstractEmpty = `body:
  - class: A
    body:
      - flag: abstract
      - sig: {abstract: true, returns: Integer}
      - def: run
        body: []
`

const abstractWithBody = `body:
  - class: A
    body:
      - flag: abstract
      - sig: {abstract: true, returns: Integer}
      - def: run
        body: [1]
`

const defaultInt = `body:
  - sig: {params: {x: Integer}, returns: Integer}
  - def: f
    params: [{opt: x, default: 1}]
    body:
      - x
`

const defaultString = `body:
  - sig: {params: {x: Integer}, returns: Integer}
  - def: f
    params: [{opt: x, default: "one"}]
    body:
      - x
`

const fieldReset = `body:
  - class: Counter
    body:
      - def: initialize
        body:
          - assign: {ivar: n}
            value: {let: 0, type: Integer}
      - sig: void
      - def: reset
        body:
          - assign: {ivar: n}
            value: 0
`

// fieldRedeclared declares the field again outside initialize, which only
// inference sees.
const fieldRedeclared = `body:
  - class: Counter
    body:
      - def: initialize
        body:
          - assign: {ivar: n}
            value: {let: 0, type: Integer}
      - sig: void
      - def: reset
        body:
          - assign: {ivar: n}
            value: {let: "zero", type: String}
`

const appUnchecked = `sigil: false
body:
  - sig: {returns: Integer}
  - def: main
    body:
      - call: put
        recv: {call: new, recv: Box}
        args: ["one"]
`

const appChecked = `sigil: true
body:
  - sig: {returns: Integer}
  - def: main
    body:
      - call: put
        recv: {call: new, recv: Box}
        args: ["one"]
`

func codes(diags []*diagnostics.DiagnosticError) []diagnostics.ErrorCode {
	var out []diagnostics.ErrorCode
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

func TestIncrementalMatchesFull(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		base    string
		edit    string
		withLib bool
		fast    bool
		before  []diagnostics.ErrorCode
		after   []diagnostics.ErrorCode
	}{
		{"body edit", app, appBad, true, true, nil, []diagnostics.ErrorCode{diagnostics.ErrMethodArgumentMismatch}},
		{"definition edit", app, appNewMethod, true, false, nil, []diagnostics.ErrorCode{diagnostics.ErrMethodArgumentMismatch}},
		{"abstract method gains a body", abstractEmpty, abstractWithBody, false, false, nil, []diagnostics.ErrorCode{diagnostics.ErrAbstractMethodWithBody}},
		{"abstract method loses its body", abstractWithBody, abstractEmpty, false, false, []diagnostics.ErrorCode{diagnostics.ErrAbstractMethodWithBody}, nil},
		{"changed default", defaultInt, defaultString, false, true, nil, []diagnostics.ErrorCode{diagnostics.ErrMethodArgumentMismatch}},
		{"field assignment outside initialize", fieldReset, fieldRedeclared, false, true, nil, []diagnostics.ErrorCode{diagnostics.ErrFieldMismatch}},
		{"sigil change", appUnchecked, appChecked, true, false, nil, []diagnostics.ErrorCode{diagnostics.ErrMethodArgumentMismatch}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			programs := func(src string) []*ast.Program {
				progs := []*ast.Program{decode(t, "app.ast.yaml", src)}
				if tt.withLib {
					progs = append(progs, decode(t, "lib.ast.yaml", lib))
				}
				return progs
			}
			d := New(nil, nil)
			prev, err := d.FullRun(ctx, programs(tt.base))
			require.NoError(t, err)
			require.Equal(t, tt.before, codes(prev.Diagnostics))
			beforeMsgs := messages(prev.Diagnostics)

			edited := decode(t, "app.ast.yaml", tt.edit)
			inc, err := d.IncrementalRun(ctx, []*ast.Program{edited}, prev)
			require.NoError(t, err)
			assert.Equal(t, tt.fast, inc.FastPath)

			full, err := d.FullRun(ctx, programs(tt.edit))
			require.NoError(t, err)
			assert.Equal(t, tt.after, codes(full.Diagnostics))
			assert.Equal(t, messages(full.Diagnostics), messages(inc.Diagnostics))
			assert.Empty(t, inc.InternalErrors)

			// The previous snapshot is untouched by the edit.
			assert.Equal(t, beforeMsgs, messages(prev.Diagnostics))
			assert.Equal(t, beforeMsgs, messages(prev.GlobalState.AllDiagnostics()))
		})
	}
}

func TestNewFileTakesSlowPath(t *testing.T) {
	ctx := context.Background()
	d := New(nil, nil)
	prev, err := d.FullRun(ctx, []*ast.Program{decode(t, "lib.ast.yaml", lib)})
	require.NoError(t, err)

	inc, err := d.IncrementalRun(ctx, []*ast.Program{decode(t, "app.ast.yaml", app)}, prev)
	require.NoError(t, err)
	assert.False(t, inc.FastPath)
	assert.Equal(t, []string{"app.ast.yaml", "lib.ast.yaml"}, inc.GlobalState.FilePaths())
}

func TestSubmitPublishes(t *testing.T) {
	ctx := context.Background()
	d := New(nil, nil)
	require.Nil(t, d.Latest())

	first, err := d.Submit(ctx, []*ast.Program{
		decode(t, "lib.ast.yaml", lib),
		decode(t, "app.ast.yaml", app),
	})
	require.NoError(t, err)
	require.Same(t, first, d.Latest())
	assert.Empty(t, first.Diagnostics)

	second, err := d.Submit(ctx, []*ast.Program{decode(t, "app.ast.yaml", appBad)})
	require.NoError(t, err)
	require.Same(t, second, d.Latest())
	assert.True(t, second.FastPath)
	assert.Greater(t, second.Epoch, first.Epoch)
	assert.Len(t, second.Diagnostics, 1)
}

func TestCancelledSubmitCarriesEdits(t *testing.T) {
	d := New(nil, nil)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Submit(cancelled, []*ast.Program{decode(t, "lib.ast.yaml", lib)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Nil(t, d.Latest())

	snap, err := d.Submit(context.Background(), []*ast.Program{decode(t, "app.ast.yaml", app)})
	require.NoError(t, err)
	assert.Equal(t, []string{"app.ast.yaml", "lib.ast.yaml"}, snap.GlobalState.FilePaths())
	assert.Empty(t, snap.Diagnostics)
}

func TestSupersededSubmit(t *testing.T) {
	d := New(nil, nil)
	started := make(chan struct{})
	d.testHookSubmit = func(ctx context.Context, epoch uint64) {
		if epoch != 1 {
			return
		}
		close(started)
		<-ctx.Done()
	}

	type result struct {
		snap *Snapshot
		err  error
	}
	older := make(chan result, 1)
	libProg := decode(t, "lib.ast.yaml", lib)
	go func() {
		snap, err := d.Submit(context.Background(), []*ast.Program{libProg})
		older <- result{snap, err}
	}()
	<-started

	newer, err := d.Submit(context.Background(), []*ast.Program{decode(t, "app.ast.yaml", appBad)})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), newer.Epoch)
	assert.Equal(t, []string{"app.ast.yaml", "lib.ast.yaml"}, newer.GlobalState.FilePaths())
	assert.Equal(t, []diagnostics.ErrorCode{diagnostics.ErrMethodArgumentMismatch}, codes(newer.Diagnostics))

	res := <-older
	assert.ErrorIs(t, res.err, ErrSuperseded)
	assert.Nil(t, res.snap)
	assert.Same(t, newer, d.Latest())
}

func aliasChain(n int) string {
	var b strings.Builder
	b.WriteString("body:\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "  - const: A%d\n    value: A%d\n", i, i+1)
	}
	fmt.Fprintf(&b, "  - const: A%d\n    value: Integer\n", n)
	return b.String()
}

func TestLongAliasChainCompletes(t *testing.T) {
	snap, err := New(nil, nil).FullRun(context.Background(), []*ast.Program{
		decode(t, "chain.ast.yaml", aliasChain(120)),
	})
	require.NoError(t, err)
	assert.Empty(t, snap.Diagnostics)
	assert.Empty(t, snap.InternalErrors)
}

// inheritedInner needs two resolver iterations.
const inheritedInner = `body:
  - class: A
    body:
      - class: Inner
  - class: B
    super: A
  - class: C
    super: B::Inner
`

func TestResolverBoundKeepsRunGoing(t *testing.T) {
	ctx := context.Background()
	conf := config.Default()
	conf.MaxResolverIterations = 1
	snap, err := New(conf, nil).FullRun(ctx, []*ast.Program{decode(t, "i.ast.yaml", inheritedInner)})
	require.NoError(t, err)
	assert.Equal(t, []diagnostics.ErrorCode{diagnostics.ErrStubConstant}, codes(snap.Diagnostics))
	require.Len(t, snap.InternalErrors, 1)
	assert.Contains(t, snap.InternalErrors[0].Error(), "did not converge")

	strict := config.Default()
	strict.MaxResolverIterations = 1
	strict.FailOnInternalError = true
	_, err = New(strict, nil).FullRun(ctx, []*ast.Program{decode(t, "i.ast.yaml", inheritedInner)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not converge")
}

// TestFixtures checks every archive under testdata against its expectations,
// first with a full run and then after re-submitting each file unchanged.
func TestFixtures(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.txtar"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	ctx := context.Background()

	for _, path := range paths {
		t.Run(strings.TrimSuffix(filepath.Base(path), ".txtar"), func(t *testing.T) {
			fx := checktest.Load(t, path)
			d := New(nil, nil)
			snap, err := d.FullRun(ctx, fx.Programs)
			require.NoError(t, err)
			require.Empty(t, snap.InternalErrors)

			typeAt := func(file string, pos token.Pos) (string, bool) {
				typ, _, ok := query.TypeAt(snap.GlobalState, file, pos)
				return typ, ok
			}
			for _, m := range fx.Mismatches(snap.Diagnostics, typeAt) {
				t.Error(m)
			}

			for _, name := range fx.Paths() {
				edited := fx.Replace(t, name, fx.Files[name])
				inc, err := d.IncrementalRun(ctx, []*ast.Program{edited.Program(name)}, snap)
				require.NoError(t, err)
				assert.True(t, inc.FastPath, "re-submitting %s unchanged should take the fast path", name)
				assert.Equal(t, messages(snap.Diagnostics), messages(inc.Diagnostics), "after re-submitting %s", name)
			}
		})
	}
}
