package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"speech-recognition-bridge/internal/models"
)

// Client is a recognition service client.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for addr. Plaintext transport is used unless opts
// say otherwise.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Listen opens a Listen stream.
func (c *Client) Listen(ctx context.Context) (*ListenStream, error) {
	cs, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], ListenFullMethod)
	if err != nil {
		return nil, err
	}
	return &ListenStream{stream: cs}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ListenStream is the client side of one Listen stream.
type ListenStream struct {
	stream grpc.ClientStream
}

// Send sends a client message.
func (s *ListenStream) Send(msg models.ClientMessage) error {
	st, err := toStruct(msg)
	if err != nil {
		return err
	}
	return s.stream.SendMsg(st)
}

// Recv receives the next notification. io.EOF marks the end of the stream.
func (s *ListenStream) Recv() (models.Notification, error) {
	var n models.Notification
	st := &structpb.Struct{}
	if err := s.stream.RecvMsg(st); err != nil {
		return n, err
	}
	err := fromStruct(st, &n)
	return n, err
}

// CloseSend half-closes the stream; the server then stops the session.
func (s *ListenStream) CloseSend() error {
	return s.stream.CloseSend()
}
