// detectord answers frame inference requests over NATS request/reply.
// Without a real model wired in it runs a development heuristic that emits
// plausible detections, enough to exercise the full pipeline end-to-end.
package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/nats-io/nats.go"
)

var labels = []string{
	"person", "car", "truck", "bus", "motorcycle", "knife", "gun", "fire", "smoke", "bicycle",
}

var inferenceTotal int64

type detectRequest struct {
	FrameJPEG []byte  `json:"frame_jpeg"`
	Threshold float64 `json:"threshold"`
}

type rawDetection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	BBox       *bbox   `json:"bbox,omitempty"`
}

type bbox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type detectResponse struct {
	Detections []rawDetection `json:"detections"`
	Error      string         `json:"error,omitempty"`
}

func main() {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}
	subject := os.Getenv("DETECT_SUBJECT")
	if subject == "" {
		subject = "detect.frames"
	}

	nc, err := nats.Connect(natsURL, nats.Name("detectord"))
	if err != nil {
		log.Fatalf("[Detectord] NATS connect error: %v", err)
	}
	defer nc.Close()

	sub, err := nc.QueueSubscribe(subject, "detectord", handleRequest)
	if err != nil {
		log.Fatalf("[Detectord] Subscribe error: %v", err)
	}
	defer sub.Unsubscribe()

	go startHealthServer()

	log.Printf("[Detectord] Listening on %s (subject %s)", natsURL, subject)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[Detectord] Stopped")
}

func handleRequest(msg *nats.Msg) {
	var req detectRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		respond(msg, detectResponse{Error: "malformed request"})
		return
	}

	atomic.AddInt64(&inferenceTotal, 1)
	respond(msg, detectResponse{Detections: infer(req.FrameJPEG, req.Threshold)})
}

func respond(msg *nats.Msg, resp detectResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Printf("[Detectord] Marshal error: %v", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		log.Printf("[Detectord] Respond error: %v", err)
	}
}

// infer is the development stand-in for a real model: detections are
// derived from a hash of the frame bytes so repeated frames give repeated
// answers.
func infer(frame []byte, threshold float64) []rawDetection {
	seed := int64(len(frame))
	for i := 0; i < len(frame) && i < 256; i++ {
		seed = seed*31 + int64(frame[i])
	}
	rng := rand.New(rand.NewSource(seed))

	count := rng.Intn(4)
	dets := make([]rawDetection, 0, count)
	for i := 0; i < count; i++ {
		conf := 0.5 + rng.Float64()*0.5
		if conf < threshold {
			continue
		}
		dets = append(dets, rawDetection{
			Label:      labels[rng.Intn(len(labels))],
			Confidence: conf,
			BBox: &bbox{
				X:      rng.Intn(500),
				Y:      rng.Intn(500),
				Width:  20 + rng.Intn(200),
				Height: 20 + rng.Intn(200),
			},
		})
	}
	return dets
}

func startHealthServer() {
	addr := os.Getenv("DETECTORD_HEALTH_ADDR")
	if addr == "" {
		addr = ":8090"
	}

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":          "ok",
			"inference_total": atomic.LoadInt64(&inferenceTotal),
		})
	})

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Printf("[Detectord] Health server failed: %v", err)
	}
}
