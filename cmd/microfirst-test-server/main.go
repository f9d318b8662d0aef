// Microfirst Integration Test Server
//
// A small HTTP server that stands in for the voice processing backend:
// it accepts the device's multipart upload on /process and answers
// with the reply-header contract plus a PCM body.
//
// Usage:
//   go run . [options]
//
// Options:
//   -addr=:5000     Listen address
//   -echo=true      Echo the uploaded PCM back as the reply audio
//   -reply-ms=1000  Length of the generated reply when -echo=false

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Devam42/Microfirst/pkg/pcm"
)

var (
	addr    = flag.String("addr", ":5000", "listen address")
	echo    = flag.Bool("echo", true, "echo uploaded PCM back as the reply")
	replyMs = flag.Int("reply-ms", 1000, "generated reply length when -echo=false")
)

var requests atomic.Int64

// Failed requests still answer with a short silent body so the device
// runs its playback path end to end instead of special-casing an
// empty reply.
const errorBeat = 250 * time.Millisecond

func main() {
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/process", handleProcess)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "ok %d requests\n", requests.Load())
	})

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		log.Printf("listening on %s (echo=%v)", *addr, *echo)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Printf("shutting down after %d requests", requests.Load())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	n := requests.Add(1)

	f, _, err := r.FormFile("audio")
	if err != nil {
		log.Printf("[%d] no audio part: %v", n, err)
		writeReply(w, "", "Sorry, I didn't hear anything. Please try again.", false, pcm.L16Mono16K.Silence(errorBeat))
		return
	}
	defer f.Close()
	audio, err := io.ReadAll(f)
	if err != nil {
		log.Printf("[%d] read audio: %v", n, err)
		writeReply(w, "", "Sorry, I couldn't read that.", false, pcm.L16Mono16K.Silence(errorBeat))
		return
	}

	dur := pcm.L16Mono16K.Duration(int64(len(audio)))
	transcription := fmt.Sprintf("(test) %d bytes, %v of audio", len(audio), dur.Round(time.Millisecond))
	log.Printf("[%d] received %d bytes (%v) from %s", n, len(audio), dur.Round(time.Millisecond), r.RemoteAddr)

	reply := audio
	if !*echo {
		reply = tone(time.Duration(*replyMs) * time.Millisecond)
	}
	writeReply(w, transcription, "Here is your reply audio.", true, reply)
}

func writeReply(w http.ResponseWriter, transcription, text string, ok bool, body []byte) {
	w.Header().Set("X-Transcription", transcription)
	w.Header().Set("X-Response-Text", text)
	w.Header().Set("X-Success", strconv.FormatBool(ok))
	w.Header().Set("Content-Type", "audio/pcm")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// tone generates a 440 Hz sine at the device sample rate.
func tone(d time.Duration) []byte {
	samples := pcm.L16Mono16K.SamplesInDuration(d)
	out := make([]byte, 0, samples*2)
	rate := float64(pcm.L16Mono16K.SampleRate())
	for i := int64(0); i < samples; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/rate))
		out = append(out, byte(v), byte(v>>8))
	}
	return out
}
