// Package server exposes a runtime's dispatch state over gRPC.
package server

import (
	"context"
	"net"

	"github.com/chazu/mop/callsite"
	"github.com/tliron/commonlog"
	"google.golang.org/grpc"
)

var log = commonlog.GetLogger("mop.server")

// InspectServer serves the inspection service for one runtime.
type InspectServer struct {
	grpc *grpc.Server
	svc  *InspectService
}

// New creates a server for rt. opts are passed to grpc.NewServer.
func New(rt *callsite.Runtime, opts ...grpc.ServerOption) *InspectServer {
	s := &InspectServer{
		grpc: grpc.NewServer(opts...),
		svc:  NewInspectService(rt),
	}
	RegisterInspectionServer(s.grpc, s.svc)
	return s
}

// Service returns the service implementation.
func (s *InspectServer) Service() *InspectService { return s.svc }

// Serve accepts connections on lis until ctx is done, then stops
// gracefully.
func (s *InspectServer) Serve(ctx context.Context, lis net.Listener) error {
	log.Infof("inspection service listening on %s", lis.Addr())
	errc := make(chan error, 1)
	go func() { errc <- s.grpc.Serve(lis) }()

	select {
	case <-ctx.Done():
		s.grpc.GracefulStop()
		<-errc
		log.Infof("inspection service on %s stopped", lis.Addr())
		return nil
	case err := <-errc:
		return err
	}
}

// ListenAndServe listens on the TCP address addr and serves until ctx is
// done.
func (s *InspectServer) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Stop closes all connections immediately.
func (s *InspectServer) Stop() { s.grpc.Stop() }
