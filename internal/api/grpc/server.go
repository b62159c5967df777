package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"speech-recognition-bridge/internal/models"
	"speech-recognition-bridge/internal/recognition"
	"speech-recognition-bridge/internal/service/listen"
)

// Transport names gRPC connections in logs and session IDs.
const Transport = "grpc"

// Server implements RecognitionServer on top of a listen.Runner.
type Server struct {
	runner *listen.Runner
}

// Register registers the recognition service on g.
func Register(g *grpc.Server, runner *listen.Runner) *Server {
	s := &Server{runner: runner}
	g.RegisterService(&ServiceDesc, s)
	return s
}

// Listen serves one client stream.
func (s *Server) Listen(stream grpc.ServerStream) error {
	err := s.runner.Serve(stream.Context(), Transport, &streamConn{stream: stream})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// streamConn adapts a server stream to listen.Conn.
type streamConn struct {
	stream grpc.ServerStream
}

func (c *streamConn) Recv() (models.ClientMessage, error) {
	var msg models.ClientMessage
	s := &structpb.Struct{}
	if err := c.stream.RecvMsg(s); err != nil {
		return msg, err
	}
	if err := fromStruct(s, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", listen.ErrMalformedMessage, err)
	}
	return msg, nil
}

func (c *streamConn) Send(n models.Notification) error {
	s, err := toStruct(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := c.stream.SendMsg(s); err != nil {
		if isGone(err) {
			return fmt.Errorf("%w: %v", recognition.ErrListenerGone, err)
		}
		return err
	}
	return nil
}

// isGone reports whether err means the client end of the stream is gone.
func isGone(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Canceled, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
