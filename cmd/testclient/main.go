package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"time"

	grpcapi "speech-recognition-bridge/internal/api/grpc"
	"speech-recognition-bridge/internal/models"
)

func main() {
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	language := flag.String("language", "en-US", "Requested language tag (\"und\" accepts any)")
	frames := flag.Int("frames", 6, "Number of synthetic audio frames to send")
	flag.Parse()

	client, err := grpcapi.Dial(*serverAddr)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	log.Println("Connected to server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := client.Listen(ctx)
	if err != nil {
		log.Fatalf("failed to create stream: %v", err)
	}

	if err := stream.Send(models.ClientMessage{Type: models.MessageStart, Language: *language}); err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	go func() {
		for i := 0; i < *frames; i++ {
			if err := stream.Send(models.ClientMessage{
				Type:  models.MessageAudio,
				Audio: []byte("audio-chunk"),
			}); err != nil {
				log.Printf("failed to send frame: %v", err)
				return
			}
			time.Sleep(100 * time.Millisecond)
		}
		_ = stream.CloseSend()
	}()

	for {
		n, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Println("Stream completed")
			return
		}
		if err != nil {
			log.Fatalf("failed to receive: %v", err)
		}
		logNotification(n)
	}
}

func logNotification(n models.Notification) {
	switch n.Type {
	case models.NotificationPartialResults:
		log.Printf("[%s] partial: %v", n.SessionID, n.Candidates)
	case models.NotificationResults:
		log.Printf("[%s] results: %v scores=%v", n.SessionID, n.Candidates, n.Scores)
	case models.NotificationError:
		log.Printf("[%s] error: %s (%d)", n.SessionID, n.ErrorName, n.ErrorCode)
	default:
		log.Printf("[%s] %s", n.SessionID, n.Type)
	}
}
