// Command asrclient posts a recorded codec payload to a running gateway
// and prints the transcription result. Useful for poking at a local
// instance without a device.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "gateway base URL")
	timeout := flag.Duration("timeout", 60*time.Second, "request timeout")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: %s [flags] <audio-file>", os.Args[0])
	}

	audio, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("read audio: %v", err)
	}

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Post(*addr+"/v1/transcribe", "application/octet-stream", bytes.NewReader(audio))
	if err != nil {
		log.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("read response: %v", err)
	}

	fmt.Printf("status: %s\n%s\n", resp.Status, body)
}
