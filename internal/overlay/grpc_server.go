package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/walkpal/internal/monitoring"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName         = "walkpal.overlay.v1.Overlay"
	streamSnapshotsName = "StreamSnapshots"

	// StreamSnapshotsMethod is the full gRPC method name.
	StreamSnapshotsMethod = "/" + serviceName + "/" + streamSnapshotsName
)

// snapshotStreamer is the handler type registered with grpc.
type snapshotStreamer interface {
	streamSnapshots(req *structpb.Struct, stream grpc.ServerStream) error
}

// The overlay messages are dynamic structs, so the service is described by
// hand rather than generated from a .proto file.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*snapshotStreamer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    streamSnapshotsName,
			Handler:       streamSnapshotsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "walkpal/overlay/v1/overlay.proto",
}

func streamSnapshotsHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(snapshotStreamer).streamSnapshots(req, stream)
}

// Server serves the overlay stream over gRPC.
type Server struct {
	publisher *Publisher
	server    *grpc.Server

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewServer creates a gRPC server bound to publisher.
func NewServer(publisher *Publisher) *Server {
	s := &Server{
		publisher: publisher,
		server:    grpc.NewServer(),
	}
	s.server.RegisterService(&serviceDesc, s)
	return s
}

// Start listens on the publisher's ListenAddr and serves in the background.
func (s *Server) Start() (net.Addr, error) {
	addr := s.publisher.Config().ListenAddr
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if err := s.Serve(lis); err != nil {
		lis.Close()
		return nil, err
	}
	return lis.Addr(), nil
}

// Serve serves on lis in the background.
func (s *Server) Serve(lis net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("overlay server already running")
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		monitoring.Logf("[overlay] gRPC server listening on %s", lis.Addr())
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			monitoring.Logf("[overlay] gRPC server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully stops the server, ending open streams.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.server.GracefulStop()
	s.wg.Wait()
	monitoring.Logf("[overlay] gRPC server stopped")
}

// streamSnapshots sends every published snapshot until the client goes away.
// The request may carry a "classes" list restricting the objects sent.
func (s *Server) streamSnapshots(req *structpb.Struct, stream grpc.ServerStream) error {
	classes, err := requestClasses(req)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	id, ch, err := s.publisher.Subscribe("grpc")
	if err != nil {
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	defer s.publisher.Unsubscribe(id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-ch:
			if !ok {
				return nil
			}
			msg, err := SnapshotStruct(filterClasses(snap, classes))
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func requestClasses(req *structpb.Struct) ([]string, error) {
	v, ok := req.GetFields()["classes"]
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, errors.New("classes must be a list of strings")
	}
	out := make([]string, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		sv, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, errors.New("classes must be a list of strings")
		}
		out = append(out, sv.StringValue)
	}
	return out, nil
}

func filterClasses(snap Snapshot, classes []string) Snapshot {
	if len(classes) == 0 {
		return snap
	}
	objs := snap.Objects[:0:0]
	for _, o := range snap.Objects {
		if slices.Contains(classes, o.Class) {
			objs = append(objs, o)
		}
	}
	evs := snap.Events[:0:0]
	for _, e := range snap.Events {
		if slices.Contains(classes, e.Class) {
			evs = append(evs, e)
		}
	}
	snap.Objects, snap.Events = objs, evs
	return snap
}

// SnapshotStruct renders a snapshot as a protobuf Struct with the same
// field names as its JSON form.
func SnapshotStruct(snap Snapshot) (*structpb.Struct, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// SnapshotStream is the client side of StreamSnapshots.
type SnapshotStream struct {
	stream grpc.ClientStream
}

// StreamSnapshots opens a snapshot stream on cc. An empty classes list
// receives every object.
func StreamSnapshots(ctx context.Context, cc grpc.ClientConnInterface, classes ...string) (*SnapshotStream, error) {
	fields := map[string]any{}
	if len(classes) > 0 {
		list := make([]any, len(classes))
		for i, c := range classes {
			list[i] = c
		}
		fields["classes"] = list
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}

	stream, err := cc.NewStream(ctx, &serviceDesc.Streams[0], StreamSnapshotsMethod)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &SnapshotStream{stream: stream}, nil
}

// Recv blocks for the next snapshot.
func (s *SnapshotStream) Recv() (*structpb.Struct, error) {
	msg := new(structpb.Struct)
	if err := s.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}
