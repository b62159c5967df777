// Package grpcapi exposes listening sessions over a bidirectional gRPC
// stream. Messages are google.protobuf.Struct values with the JSON shape of
// models.ClientMessage and models.Notification.
package grpcapi

import "google.golang.org/grpc"

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "speech.recognition.v1.RecognitionService"

	// ListenFullMethod is the full method name of the Listen stream.
	ListenFullMethod = "/" + ServiceName + "/Listen"
)

// RecognitionServer is the server API of the recognition service.
type RecognitionServer interface {
	Listen(stream grpc.ServerStream) error
}

// ServiceDesc describes the recognition service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecognitionServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Listen",
			Handler:       listenHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "speech/recognition/v1/recognition.proto",
}

func listenHandler(srv any, stream grpc.ServerStream) error {
	return srv.(RecognitionServer).Listen(stream)
}
