package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/checktest"
	"github.com/funvibe/sigcheck/internal/driver"
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
        args: ["one"]
`

func TestWriteAndLookup(t *testing.T) {
	ctx := context.Background()
	appProg := checktest.Decode(t, "app.ast.yaml", app)
	libProg := checktest.Decode(t, "lib.ast.yaml", lib)
	snap, err := driver.New(nil, nil).FullRun(ctx, []*ast.Program{appProg, libProg})
	require.NoError(t, err)

	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer db.Close()

	st, err := Write(ctx, db, snap.GlobalState)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Files)
	assert.Equal(t, len(snap.Diagnostics), st.Diagnostics)
	assert.Equal(t, len(snap.GlobalState.Symbols()), st.Symbols)

	locs, err := Lookup(ctx, db, "Box#put")
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, RoleCall, locs[0].Role)
	assert.Equal(t, "app.ast.yaml", locs[0].Loc.File)
	assert.Equal(t, RoleDefinition, locs[1].Role)
	assert.Equal(t, "lib.ast.yaml", locs[1].Loc.File)
	assert.Equal(t, 5, locs[1].Loc.Start.Line)

	var code int
	var file string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT file, code FROM diagnostics`).Scan(&file, &code))
	assert.Equal(t, "app.ast.yaml", file)
	assert.Equal(t, int(snap.Diagnostics[0].Code), code)

	// Writing again replaces the previous contents.
	_, err = Write(ctx, db, snap.GlobalState)
	require.NoError(t, err)
	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestLookupUnknown(t *testing.T) {
	ctx := context.Background()
	snap, err := driver.New(nil, nil).FullRun(ctx, []*ast.Program{checktest.Decode(t, "lib.ast.yaml", lib)})
	require.NoError(t, err)

	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	_, err = Write(ctx, db, snap.GlobalState)
	require.NoError(t, err)

	locs, err := Lookup(ctx, db, "Nope")
	require.NoError(t, err)
	assert.Empty(t, locs)
}
