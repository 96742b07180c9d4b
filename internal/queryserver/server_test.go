package queryserver

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

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

func dial(t *testing.T, src Source) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(New(src, nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func checked(t *testing.T) (*driver.Driver, *ast.Call) {
	t.Helper()
	appProg := checktest.Decode(t, "app.ast.yaml", app)
	d := driver.New(nil, nil)
	_, err := d.Submit(context.Background(), []*ast.Program{
		appProg,
		checktest.Decode(t, "lib.ast.yaml", lib),
	})
	require.NoError(t, err)
	return d, appProg.Body[1].(*ast.MethodDef).Body[0].(*ast.Call)
}

func TestUnavailableBeforeFirstRun(t *testing.T) {
	c := dial(t, driver.New(nil, nil))
	_, err := c.Diagnostics(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestDiagnostics(t *testing.T) {
	d, _ := checked(t)
	c := dial(t, d)
	ctx := context.Background()

	resp, err := c.Diagnostics(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, d.Latest().RunID, resp["run_id"])
	diags := resp["diagnostics"].([]interface{})
	require.Len(t, diags, 1)
	first := diags[0].(map[string]interface{})
	assert.Equal(t, "app.ast.yaml", first["file"])
	assert.Equal(t, float64(d.Latest().Diagnostics[0].Code), first["code"])
	assert.Equal(t, "error", first["severity"])

	resp, err = c.Diagnostics(ctx, "lib.ast.yaml")
	require.NoError(t, err)
	assert.Empty(t, resp["diagnostics"])
}

func TestPositionQueries(t *testing.T) {
	d, call := checked(t)
	c := dial(t, d)
	ctx := context.Background()
	line, col := call.MethodLoc.Start.Line, call.MethodLoc.Start.Column

	resp, err := c.Hover(ctx, "app.ast.yaml", line, col)
	require.NoError(t, err)
	assert.Equal(t, "def Box#put(x: Integer): Integer", resp["text"])

	resp, err = c.Definition(ctx, "app.ast.yaml", line, col)
	require.NoError(t, err)
	assert.Equal(t, "Box#put", resp["symbol"])
	assert.Equal(t, "call", resp["kind"])
	defs := resp["locations"].([]interface{})
	require.Len(t, defs, 1)
	assert.Equal(t, "lib.ast.yaml", defs[0].(map[string]interface{})["file"])

	resp, err = c.References(ctx, "app.ast.yaml", line, col)
	require.NoError(t, err)
	assert.Len(t, resp["locations"], 2)

	recv := call.Recv.(*ast.Call)
	resp, err = c.TypeAt(ctx, "app.ast.yaml", recv.MethodLoc.Start.Line, recv.MethodLoc.Start.Column)
	require.NoError(t, err)
	assert.Equal(t, "Box", resp["type"])
}

func TestBadRequests(t *testing.T) {
	d, _ := checked(t)
	c := dial(t, d)
	ctx := context.Background()

	_, err := c.Hover(ctx, "", 1, 1)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.Definition(ctx, "app.ast.yaml", 1, 1)
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.Call(ctx, "Nope", map[string]interface{}{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
