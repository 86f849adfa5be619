package detector

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/sweeney/posture-coach/internal/camera"
	"github.com/sweeney/posture-coach/internal/geometry"
)

// DetectMethod is the full gRPC method name of the landmark service.
// The request is the raw frame as a BytesValue; frame size and timestamp
// travel as metadata. The response is a Struct with "pose" and "face"
// lists of {x, y, v} objects.
const DetectMethod = "/posture.v1.Landmarks/Detect"

// Remote calls a landmark service over gRPC.
type Remote struct {
	conn    grpc.ClientConnInterface
	closer  func() error
	timeout time.Duration

	mu     sync.Mutex
	epoch  time.Time
	lastTS int64
}

// DialRemote connects to the landmark service at addr.
func DialRemote(addr string, timeout time.Duration) (*Remote, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("%w: grpc dial %s: %v", ErrNoWorker, addr, err)
	}
	log.Printf("detector: using landmark service at %s", addr)
	r := NewRemote(conn, timeout)
	r.closer = conn.Close
	return r, nil
}

// NewRemote wraps an existing connection.
func NewRemote(conn grpc.ClientConnInterface, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Remote{conn: conn, timeout: timeout, epoch: time.Now()}
}

// Detect sends one frame to the service.
func (r *Remote) Detect(frame camera.Frame, at time.Time) (Result, error) {
	r.mu.Lock()
	ts := at.Sub(r.epoch).Milliseconds()
	if ts <= r.lastTS {
		ts = r.lastTS + 1
	}
	r.lastTS = ts
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx,
		"width", strconv.Itoa(frame.Width),
		"height", strconv.Itoa(frame.Height),
		"timestamp-ms", strconv.FormatInt(ts, 10),
	)

	resp := &structpb.Struct{}
	if err := r.conn.Invoke(ctx, DetectMethod, wrapperspb.Bytes(frame.Data), resp); err != nil {
		return Result{}, fmt.Errorf("landmark rpc: %w", err)
	}
	return resultFromStruct(resp), nil
}

// Close closes the connection if Remote owns it.
func (r *Remote) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

func resultFromStruct(s *structpb.Struct) Result {
	m := s.AsMap()
	return Result{
		Pose: landmarksFrom(m["pose"]),
		Face: landmarksFrom(m["face"]),
	}
}

func landmarksFrom(v any) []geometry.Landmark {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]geometry.Landmark, 0, len(list))
	for _, item := range list {
		p, ok := item.(map[string]any)
		if !ok {
			continue
		}
		x, _ := p["x"].(float64)
		y, _ := p["y"].(float64)
		vis, _ := p["v"].(float64)
		out = append(out, geometry.Landmark{X: x, Y: y, Visibility: vis})
	}
	return out
}

// ResultStruct encodes r the way the landmark service replies.
func ResultStruct(r Result) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"pose": landmarkList(r.Pose),
		"face": landmarkList(r.Face),
	})
}

func landmarkList(lms []geometry.Landmark) []any {
	out := make([]any, len(lms))
	for i, l := range lms {
		out[i] = map[string]any{"x": l.X, "y": l.Y, "v": l.Visibility}
	}
	return out
}

// LandmarkServer is implemented by services that answer DetectMethod.
type LandmarkServer interface {
	Detect(ctx context.Context, frame *wrapperspb.BytesValue) (*structpb.Struct, error)
}

// RegisterLandmarkServer registers srv on s.
func RegisterLandmarkServer(s *grpc.Server, srv LandmarkServer) {
	s.RegisterService(&landmarkServiceDesc, srv)
}

var landmarkServiceDesc = grpc.ServiceDesc{
	ServiceName: "posture.v1.Landmarks",
	HandlerType: (*LandmarkServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Detect",
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(wrapperspb.BytesValue)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return srv.(LandmarkServer).Detect(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DetectMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return srv.(LandmarkServer).Detect(ctx, req.(*wrapperspb.BytesValue))
			}
			return interceptor(ctx, in, info, handler)
		},
	}},
	Streams: []grpc.StreamDesc{},
}
