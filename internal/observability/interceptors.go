// Package observability provides gRPC interceptors and the HTTP server for
// metrics, health and the WebSocket endpoint.
package observability

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"speech-recognition-bridge/internal/observability/metrics"
)

// UnaryServerInterceptor logs unary calls. The only unary calls served are
// health checks and reflection, so they are logged at debug level.
func UnaryServerInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		log.Debug().
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC unary call")
		return resp, err
	}
}

// StreamServerInterceptor records stream and message metrics and logs each
// completed stream with its peer and message counts.
func StreamServerInterceptor(log zerolog.Logger, m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		m.RecordStreamStart()

		cs := &countingStream{ServerStream: ss, metrics: m}
		err := handler(srv, cs)

		duration := time.Since(start)
		m.RecordStreamEnd(err == nil, duration.Seconds())

		ev := log.Info()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Str("method", info.FullMethod).
			Str("peer", peerAddr(ss.Context())).
			Str("code", status.Code(err).String()).
			Int64("received", cs.received.Load()).
			Int64("sent", cs.sent.Load()).
			Dur("duration", duration).
			Msg("gRPC stream completed")
		return err
	}
}

// countingStream counts messages in both directions.
type countingStream struct {
	grpc.ServerStream
	metrics  *metrics.Metrics
	received atomic.Int64
	sent     atomic.Int64
}

func (s *countingStream) RecvMsg(msg any) error {
	err := s.ServerStream.RecvMsg(msg)
	if err == nil {
		s.received.Add(1)
		s.metrics.RecordStreamMessage("in")
	}
	return err
}

func (s *countingStream) SendMsg(msg any) error {
	err := s.ServerStream.SendMsg(msg)
	if err == nil {
		s.sent.Add(1)
		s.metrics.RecordStreamMessage("out")
	}
	return err
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
