package detector

import (
	"context"
	"errors"
	"strconv"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/sweeney/posture-coach/internal/camera"
)

// Service exposes a Detector as a LandmarkServer, e.g. to serve a
// recording to another machine.
type Service struct {
	Detector Detector
}

// Detect implements LandmarkServer.
func (s *Service) Detect(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	frame := camera.Frame{Data: in.GetValue()}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		frame.Width = mdInt(md, "width")
		frame.Height = mdInt(md, "height")
	}

	res, err := s.Detector.Detect(frame, time.Now())
	if err != nil {
		if errors.Is(err, ErrReplayDone) {
			return nil, status.Error(codes.OutOfRange, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := ResultStruct(res)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func mdInt(md metadata.MD, key string) int {
	vals := md.Get(key)
	if len(vals) == 0 {
		return 0
	}
	n, _ := strconv.Atoi(vals[0])
	return n
}
