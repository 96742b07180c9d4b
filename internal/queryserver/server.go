// Package queryserver serves queries over the latest published snapshot as a
// gRPC service. Requests and responses are structpb.Struct messages, so no
// generated code or descriptors are needed on either side.
package queryserver

import (
	"context"
	"io"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/funvibe/sigcheck/internal/driver"
	"github.com/funvibe/sigcheck/internal/query"
	"github.com/funvibe/sigcheck/internal/symbols"
	"github.com/funvibe/sigcheck/internal/token"
)

const ServiceName = "sigcheck.Query"

// Source provides the snapshot requests are answered from.
type Source interface {
	Latest() *driver.Snapshot
}

// Server implements the query service.
type Server struct {
	src    Source
	logger *log.Logger
}

// New returns a server over src. A nil logger discards log output.
func New(src Source, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{src: src, logger: logger}
}

type method func(s *Server, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

var methods = map[string]method{
	"Diagnostics": (*Server).diagnostics,
	"Hover":       (*Server).hover,
	"TypeAt":      (*Server).typeAt,
	"Definition":  (*Server).definition,
	"References":  (*Server).references,
}

// ServiceDesc describes the service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Diagnostics", Handler: unary("Diagnostics")},
		{MethodName: "Hover", Handler: unary("Hover")},
		{MethodName: "TypeAt", Handler: unary("TypeAt")},
		{MethodName: "Definition", Handler: unary("Definition")},
		{MethodName: "References", Handler: unary("References")},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sigcheck/query",
}

func unary(name string) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(*Server)
		fn := methods[name]
		if interceptor == nil {
			return fn(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return fn(s, ctx, req.(*structpb.Struct))
		})
	}
}

// NewGRPCServer returns a grpc.Server with s registered and request logging
// installed.
func NewGRPCServer(s *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.UnaryInterceptor(s.logRequests))
	gs := grpc.NewServer(opts...)
	gs.RegisterService(&ServiceDesc, s)
	return gs
}

// Serve answers requests on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	gs := NewGRPCServer(s)
	go func() {
		<-ctx.Done()
		gs.GracefulStop()
	}()
	s.logger.Printf("query server listening on %s", lis.Addr())
	return gs.Serve(lis)
}

func (s *Server) logRequests(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Printf("%s: %s (%v)", info.FullMethod, status.Code(err), time.Since(start))
	return resp, err
}

func (s *Server) snapshot() (*driver.Snapshot, error) {
	snap := s.src.Latest()
	if snap == nil {
		return nil, status.Error(codes.Unavailable, "no snapshot published yet")
	}
	return snap, nil
}

// position reads the file/line/column fields of a request.
func position(in *structpb.Struct) (string, token.Pos, error) {
	f := in.GetFields()
	file := f["file"].GetStringValue()
	pos := token.Pos{Line: int(f["line"].GetNumberValue()), Column: int(f["column"].GetNumberValue())}
	if file == "" || !pos.IsValid() || pos.Column <= 0 {
		return "", pos, status.Error(codes.InvalidArgument, "file, line and column are required")
	}
	return file, pos, nil
}

func (s *Server) diagnostics(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	file := in.GetFields()["file"].GetStringValue()
	var out []interface{}
	for _, d := range snap.Diagnostics {
		if file != "" && d.Loc.File != file {
			continue
		}
		out = append(out, map[string]interface{}{
			"file":     d.Loc.File,
			"line":     d.Loc.Start.Line,
			"column":   d.Loc.Start.Column,
			"code":     int(d.Code),
			"severity": d.Severity.String(),
			"message":  d.Message,
		})
	}
	return response(map[string]interface{}{
		"run_id":      snap.RunID,
		"epoch":       float64(snap.Epoch),
		"diagnostics": nonNil(out),
	})
}

func (s *Server) hover(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	file, pos, err := position(in)
	if err != nil {
		return nil, err
	}
	text, ok := query.Hover(snap.GlobalState, file, pos)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "nothing at %s:%s", file, pos)
	}
	return response(map[string]interface{}{"text": text})
}

func (s *Server) typeAt(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	file, pos, err := position(in)
	if err != nil {
		return nil, err
	}
	typ, loc, ok := query.TypeAt(snap.GlobalState, file, pos)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no typed expression at %s:%s", file, pos)
	}
	return response(map[string]interface{}{"type": typ, "loc": locValue(loc)})
}

func (s *Server) definition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.locations(in, query.Definition)
}

func (s *Server) references(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.locations(in, query.References)
}

func (s *Server) locations(in *structpb.Struct, find func(*symbols.GlobalState, symbols.SymbolID) []token.Loc) (*structpb.Struct, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	file, pos, err := position(in)
	if err != nil {
		return nil, err
	}
	gs := snap.GlobalState
	hit, ok := query.SymbolAt(gs, file, pos)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no symbol at %s:%s", file, pos)
	}
	var locs []interface{}
	for _, l := range find(gs, hit.Symbol) {
		locs = append(locs, locValue(l))
	}
	return response(map[string]interface{}{
		"symbol":    gs.FullName(hit.Symbol),
		"kind":      hit.Kind.String(),
		"locations": nonNil(locs),
	})
}

func locValue(l token.Loc) map[string]interface{} {
	return map[string]interface{}{
		"file":       l.File,
		"line":       l.Start.Line,
		"column":     l.Start.Column,
		"end_line":   l.End.Line,
		"end_column": l.End.Column,
	}
}

func nonNil(v []interface{}) []interface{} {
	if v == nil {
		return []interface{}{}
	}
	return v
}

func response(m map[string]interface{}) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return out, nil
}
