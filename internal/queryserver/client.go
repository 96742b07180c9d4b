package queryserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the query service over a connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with the given request fields.
func (c *Client) Call(ctx context.Context, method string, req map[string]interface{}, opts ...grpc.CallOption) (map[string]interface{}, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *Client) Diagnostics(ctx context.Context, file string) (map[string]interface{}, error) {
	req := map[string]interface{}{}
	if file != "" {
		req["file"] = file
	}
	return c.Call(ctx, "Diagnostics", req)
}

func (c *Client) Hover(ctx context.Context, file string, line, column int) (map[string]interface{}, error) {
	return c.Call(ctx, "Hover", at(file, line, column))
}

func (c *Client) TypeAt(ctx context.Context, file string, line, column int) (map[string]interface{}, error) {
	return c.Call(ctx, "TypeAt", at(file, line, column))
}

func (c *Client) Definition(ctx context.Context, file string, line, column int) (map[string]interface{}, error) {
	return c.Call(ctx, "Definition", at(file, line, column))
}

func (c *Client) References(ctx context.Context, file string, line, column int) (map[string]interface{}, error) {
	return c.Call(ctx, "References", at(file, line, column))
}

func at(file string, line, column int) map[string]interface{} {
	return map[string]interface{}{"file": file, "line": line, "column": column}
}
