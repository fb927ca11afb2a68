// streamcli - stream a local WebM file to the backend as a simulated live
// capture and print the keyframe events that come back.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8000/ws/video", "ingest endpoint")
		file      = flag.String("file", "", "WebM file to stream (required)")
		chunkSize = flag.Int("chunk", 256*1024, "chunk size in bytes")
		interval  = flag.Duration("interval", time.Second, "delay between chunks")
		lecture   = flag.String("lecture", "", "lecture id query parameter")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: streamcli -file lecture.webm [-url ws://...]")
		os.Exit(1)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Printf("❌ Read file failed: %v\n", err)
		os.Exit(1)
	}

	target := *url
	if *lecture != "" {
		target += "?lecture_id=" + *lecture
	}

	fmt.Printf("📡 Streaming %s (%d bytes) to %s\n", *file, len(data), target)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(target, nil)
	if err != nil {
		fmt.Printf("❌ Connection failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	// Print everything the backend sends back
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var event map[string]any
			if err := json.Unmarshal(msg, &event); err != nil {
				continue
			}
			switch event["type"] {
			case "keyframe_detected":
				fmt.Printf("🖼️  Keyframe %v: t=[%v, %v] score=%v url=%v\n",
					event["id"], event["t_start_ms"], event["t_end_ms"],
					event["score"], event["storage_url"])
			default:
				fmt.Printf("ℹ️  %v\n", event["type"])
			}
		}
	}()

	sequence := 0
	for offset := 0; offset < len(data); offset += *chunkSize {
		end := offset + *chunkSize
		if end > len(data) {
			end = len(data)
		}

		meta, _ := json.Marshal(map[string]any{
			"sequence":   sequence,
			"capturedAt": time.Now().UTC().Format(time.RFC3339Nano),
			"mimeType":   "video/webm",
		})
		if err := conn.WriteMessage(websocket.TextMessage, meta); err != nil {
			fmt.Printf("❌ Send metadata failed: %v\n", err)
			os.Exit(1)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, data[offset:end]); err != nil {
			fmt.Printf("❌ Send chunk failed: %v\n", err)
			os.Exit(1)
		}

		sequence++
		fmt.Printf("📦 Sent chunk %d (%d bytes)\n", sequence, end-offset)
		time.Sleep(*interval)
	}

	fmt.Println("✅ Stream complete, waiting for final events...")
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	select {
	case <-done:
	case <-time.After(10 * time.Second):
	}
}
