package feasibility

import (
	"context"
	"errors"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"pce/path_computation/model"
)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Checker)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Check",
			Handler:    checkHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

func checkHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Request)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Checker).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: checkMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Checker).Check(ctx, req.(*Request))
	}
	return interceptor(ctx, in, info, handler)
}

// Register exposes checker as the feasibility service on s. The server must
// be created with ServerOptions so it speaks the same codec as Client.
func Register(s grpc.ServiceRegistrar, checker Checker) {
	s.RegisterService(&serviceDesc, checker)
}

func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{grpc.ForceServerCodec(codec{})}
}

// Server is a standalone feasibility endpoint, used to front a physical
// layer engine or to stub one out in lab setups.
type Server struct {
	listenAddr string
	grpcServer *grpc.Server
}

func NewServer(listenAddr string, checker Checker) *Server {
	s := &Server{
		listenAddr: listenAddr,
		grpcServer: grpc.NewServer(ServerOptions()...),
	}
	Register(s.grpcServer, checker)
	return s
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %v", s.listenAddr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve handles connections on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		log.Infof("Feasibility gRPC server is shutting down...")
		s.Stop()
	}()

	log.Infof("Feasibility server Start, ListenAddr=%s", lis.Addr())
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) Stop() {
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
}

// StubChecker approves paths of at most maxResources resources in each
// direction and rejects longer ones without a substitute. Zero approves
// everything.
func StubChecker(maxResources int) Checker {
	return CheckerFunc(func(_ context.Context, req *Request) (*Response, error) {
		for _, d := range []*model.Direction{req.AToZ, req.ZToA} {
			if d == nil || maxResources <= 0 || len(d.Resources) <= maxResources {
				continue
			}
			log.Infof("StubChecker: request %s rejected, %d resources over %d", req.RequestID, len(d.Resources), maxResources)
			return &Response{
				Feasible: false,
				Message:  fmt.Sprintf("%d resources exceed the lab limit of %d", len(d.Resources), maxResources),
			}, nil
		}
		return &Response{Feasible: true, Message: "approved by stub"}, nil
	})
}
