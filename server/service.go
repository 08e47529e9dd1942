package server

import (
	"context"
	"fmt"

	"github.com/chazu/mop/callsite"
	"github.com/chazu/mop/meta"
	"github.com/chazu/mop/profile"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mop.inspect.v1.InspectionService"

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

type SnapshotRequest struct{}

type DescribeRequest struct {
	Type string `cbor:"1,keyasint"` // type name as printed by reflect
}

type EpochRequest struct{}

type EpochResponse struct {
	RegistryID string `cbor:"1,keyasint"`
	Epoch      uint64 `cbor:"2,keyasint"`
	Generation uint64 `cbor:"3,keyasint"`
}

// Description is the shape of one metaclass.
type Description struct {
	Type          string         `cbor:"1,keyasint"`
	Kind          string         `cbor:"2,keyasint"`
	Modified      bool           `cbor:"3,keyasint"`
	Methods       []MethodInfo   `cbor:"4,keyasint,omitempty"`
	StaticMethods []MethodInfo   `cbor:"5,keyasint,omitempty"`
	Properties    []PropertyInfo `cbor:"6,keyasint,omitempty"`
}

type MethodInfo struct {
	Name     string   `cbor:"1,keyasint"`
	Params   []string `cbor:"2,keyasint,omitempty"`
	Variadic bool     `cbor:"3,keyasint,omitempty"`
	Origin   string   `cbor:"4,keyasint"`
	Depth    int      `cbor:"5,keyasint,omitempty"`
}

type PropertyInfo struct {
	Name     string `cbor:"1,keyasint"`
	Type     string `cbor:"2,keyasint,omitempty"`
	Readable bool   `cbor:"3,keyasint"`
	Writable bool   `cbor:"4,keyasint"`
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// InspectionServer is the server API of the inspection service.
type InspectionServer interface {
	Snapshot(context.Context, *SnapshotRequest) (*profile.Snapshot, error)
	Describe(context.Context, *DescribeRequest) (*Description, error)
	Epoch(context.Context, *EpochRequest) (*EpochResponse, error)
}

// InspectService implements InspectionServer over a runtime.
type InspectService struct {
	rt *callsite.Runtime
}

var _ InspectionServer = (*InspectService)(nil)

// NewInspectService creates an InspectService.
func NewInspectService(rt *callsite.Runtime) *InspectService {
	return &InspectService{rt: rt}
}

// Snapshot captures the current dispatch profile.
func (s *InspectService) Snapshot(ctx context.Context, _ *SnapshotRequest) (*profile.Snapshot, error) {
	return profile.Capture(s.rt), nil
}

// Describe returns the methods and properties of an existing metaclass.
func (s *InspectService) Describe(ctx context.Context, req *DescribeRequest) (*Description, error) {
	if req.Type == "" {
		return nil, status.Error(codes.InvalidArgument, "type is required")
	}
	mc, ok := s.rt.Registry().LookupName(req.Type)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no metaclass for %q", req.Type)
	}
	return describe(mc), nil
}

// Epoch reports the registry's dispatch epoch.
func (s *InspectService) Epoch(ctx context.Context, _ *EpochRequest) (*EpochResponse, error) {
	reg := s.rt.Registry()
	return &EpochResponse{
		RegistryID: reg.ID().String(),
		Epoch:      reg.Epoch(),
		Generation: reg.Generation(),
	}, nil
}

func describe(mc meta.Metaclass) *Description {
	d := &Description{
		Type:     mc.Type().String(),
		Kind:     mc.Kind().String(),
		Modified: mc.IsModified(),
	}
	for _, m := range mc.Methods() {
		d.Methods = append(d.Methods, methodInfo(m))
	}
	for _, m := range mc.StaticMethods() {
		d.StaticMethods = append(d.StaticMethods, methodInfo(m))
	}
	for _, p := range mc.Properties() {
		info := PropertyInfo{Name: p.Name(), Readable: p.Getter() != nil, Writable: p.Setter() != nil}
		if p.Type() != nil {
			info.Type = p.Type().String()
		}
		d.Properties = append(d.Properties, info)
	}
	return d
}

func methodInfo(m *meta.MetaMethod) MethodInfo {
	info := MethodInfo{
		Name:     m.Name(),
		Variadic: m.IsVariadic(),
		Origin:   m.Origin().String(),
		Depth:    m.Depth(),
	}
	for _, p := range m.ParamTypes() {
		info.Params = append(info.Params, fmt.Sprint(p))
	}
	return info
}

// ---------------------------------------------------------------------------
// Service descriptor
// ---------------------------------------------------------------------------

// RegisterInspectionServer registers srv with a gRPC server.
func RegisterInspectionServer(s grpc.ServiceRegistrar, srv InspectionServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InspectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Snapshot",
			Handler: unary("Snapshot", func(srv InspectionServer, ctx context.Context, req *SnapshotRequest) (any, error) {
				return srv.Snapshot(ctx, req)
			}),
		},
		{
			MethodName: "Describe",
			Handler: unary("Describe", func(srv InspectionServer, ctx context.Context, req *DescribeRequest) (any, error) {
				return srv.Describe(ctx, req)
			}),
		},
		{
			MethodName: "Epoch",
			Handler: unary("Epoch", func(srv InspectionServer, ctx context.Context, req *EpochRequest) (any, error) {
				return srv.Epoch(ctx, req)
			}),
		},
	},
	Streams: []grpc.StreamDesc{},
}

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

// unary adapts a typed handler to grpc.MethodDesc.Handler.
func unary[Req any](name string, call func(InspectionServer, context.Context, *Req) (any, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InspectionServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(InspectionServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
