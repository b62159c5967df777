package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"time"

	grpcapi "speech-recognition-bridge/internal/api/grpc"
	"speech-recognition-bridge/internal/models"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// Stream audio in chunks to simulate real-time streaming
// At 8kHz 16-bit mono = 16000 bytes/second
// 100ms chunks = 1600 bytes
const chunkSize = 1600
const chunkIntervalMs = 100

func main() {
	audioFile := flag.String("audio", "testdata/sample-8khz.wav", "Path to WAV file (8kHz 16-bit mono)")
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	language := flag.String("language", "en-US", "Requested language tag")
	sessionID := flag.String("session", "audio-"+time.Now().Format("150405"), "Session ID")
	flag.Parse()

	// Open audio file
	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	// Read and validate WAV header
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}

	// Validate it's a WAV file
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	// Extract audio format info
	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 { // PCM
		log.Fatal("Only PCM format supported")
	}
	if sampleRate != 8000 {
		log.Printf("Warning: Sample rate is %d Hz, expected 8000 Hz", sampleRate)
	}

	client, err := grpcapi.Dial(*serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	log.Printf("Connected to %s", *serverAddr)

	// Create stream with longer timeout for real audio
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	stream, err := client.Listen(ctx)
	if err != nil {
		log.Fatalf("Failed to create stream: %v", err)
	}

	if err := stream.Send(models.ClientMessage{
		Type:      models.MessageStart,
		Language:  *language,
		SessionID: *sessionID,
	}); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			n, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				log.Printf("Receive failed: %v", err)
				return
			}
			log.Printf("<- %s candidates=%v scores=%v error=%s", n.Type, n.Candidates, n.Scores, n.ErrorName)
		}
	}()

	log.Printf("Streaming audio: sessionId=%s language=%s", *sessionID, *language)

	// Stream audio in chunks
	audioChunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

loop:
	for {
		n, err := f.Read(audioChunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}

		chunkNum++
		totalBytes += int64(n)

		frame := models.ClientMessage{
			Type:  models.MessageAudio,
			Audio: append([]byte(nil), audioChunk[:n]...),
		}
		if err := stream.Send(frame); err != nil {
			log.Printf("Server ended the stream: %v", err)
			break
		}

		if chunkNum%10 == 0 {
			log.Printf("Sent chunk %d (%d bytes total)", chunkNum, totalBytes)
		}

		select {
		case <-done:
			break loop
		case <-time.After(chunkIntervalMs * time.Millisecond):
			// Simulate real-time streaming
		}
	}

	elapsed := time.Since(startTime)
	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, elapsed)

	// Half-close: the server stops listening and sends the final result.
	log.Println("Closing stream, waiting for final results...")
	_ = stream.CloseSend()
	<-done

	log.Printf("Stream completed: sessionId=%s", *sessionID)
}
