package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Devam42/Microfirst/pkg/cli"
	"github.com/Devam42/Microfirst/pkg/device"
	"github.com/Devam42/Microfirst/pkg/expr"
	"github.com/Devam42/Microfirst/pkg/i2s"
	"github.com/Devam42/Microfirst/pkg/pcm"
	"github.com/Devam42/Microfirst/pkg/storage"
	"github.com/Devam42/Microfirst/pkg/uplink"
	"github.com/Devam42/Microfirst/pkg/voice"
)

var (
	runServer string
	runClips  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the device loop with loopback peripherals",
	Long: `Run the interaction loop against simulated hardware.

The audio bus is a loopback transceiver: while a capture is held the
microphone produces silence at line rate, and reply audio is drained
from the speaker side at line rate. The display renders into a frame
counter on the console.

Press Enter to toggle the hold gesture, 'q' + Enter to quit.`,
	RunE: runDevice,
}

func init() {
	runCmd.Flags().StringVar(&runServer, "server", "", "processing server host:port (overrides config)")
	runCmd.Flags().StringVar(&runClips, "clips", "", "expression clip directory (overrides config)")
	rootCmd.AddCommand(runCmd)
}

// keyTouch turns stdin lines into the hold gesture: an empty line
// toggles hold, "q" requests shutdown.
type keyTouch struct {
	mu   sync.Mutex
	held bool
	quit chan struct{}
}

func newKeyTouch(r io.Reader) *keyTouch {
	t := &keyTouch{quit: make(chan struct{})}
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "q" {
				close(t.quit)
				return
			}
			t.mu.Lock()
			t.held = !t.held
			t.mu.Unlock()
		}
	}()
	return t
}

func (t *keyTouch) Held() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.held
}

// consoleDisplay stands in for the panel: it counts rendered chunks
// and frames instead of pushing pixels.
type consoleDisplay struct {
	mu     sync.Mutex
	frames int
	chunks int
}

func (d *consoleDisplay) PushLines(y, lines int, pix []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunks++
	if y == 0 {
		d.frames++
	}
	return nil
}

func (d *consoleDisplay) Counts() (frames, chunks int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames, d.chunks
}

func runDevice(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runServer != "" {
		cfg.Server = runServer
	}
	if runClips != "" {
		cfg.ClipsDir = runClips
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewLocal(cfg.ClipsDir)
	if err != nil {
		return fmt.Errorf("open clip store: %w", err)
	}
	clips, err := expr.Scan(ctx, store, "")
	if err != nil {
		return fmt.Errorf("scan clips: %w", err)
	}

	logw := cli.NewLogWriter(64)
	logger := slog.New(slog.NewTextHandler(logw, &slog.HandlerOptions{
		Level: logLevel(),
	}))

	lb := i2s.NewLoopback()
	bus := i2s.NewBus(lb,
		i2s.Config{SampleRate: 16000, BitsPerSample: 32, Channels: 1,
			Pins: i2s.Pins{BCLK: 27, WS: 26, Data: 32}},
		i2s.Config{SampleRate: 16000, BitsPerSample: 16, Channels: 1,
			Pins: i2s.Pins{BCLK: 27, WS: 26, Data: 25}})

	display := &consoleDisplay{}
	player := expr.NewPlayer(store, display, expr.Options{
		LinesPerChunk: cfg.Display.LinesPerChunk,
		MaxWidth:      cfg.Display.Width,
	})
	capture := voice.NewCapture(bus, pcm.L16Mono16K)
	playback := voice.NewPlayback(bus)
	client := uplink.NewClient(cfg.Server, uplink.WithLogger(logger))

	touch := newKeyTouch(os.Stdin)
	dev := device.New(player, capture, playback, client, touch, clips, device.Options{
		MaxRecord:   cfg.Audio.MaxRecord(),
		MinRecord:   cfg.Audio.MinRecord(),
		IdleTimeout: cfg.Audio.IdleTimeout(),
		Logger:      logger,
	})

	logger.Info("device starting",
		"server", cfg.Server,
		"clips", len(clips),
		"clips_dir", cfg.ClipsDir)

	go feedMicSilence(ctx, lb, dev)
	go drainSpeaker(ctx, lb)

	styles := cli.NewStyles(cli.DefaultTheme)
	lastRender := time.Time{}
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case <-touch.quit:
			fmt.Println()
			return nil
		default:
		}
		if err := dev.Tick(ctx); err != nil {
			return err
		}
		if time.Since(lastRender) >= 100*time.Millisecond {
			lastRender = time.Now()
			renderStatus(styles, dev, display, capture, logw)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// feedMicSilence keeps the loopback microphone producing silence at
// line rate while a capture holds the bus.
func feedMicSilence(ctx context.Context, lb *i2s.Loopback, dev *device.Device) {
	quantum := make([]byte, 2*pcm.L16Mono16K.BytesInDuration(voice.Quantum))
	for ctx.Err() == nil {
		if dev.State() == device.StateCapturing {
			lb.FeedMic(quantum)
		}
		time.Sleep(voice.Quantum)
	}
}

// drainSpeaker consumes playback bytes so the blocking speaker write
// never wedges the loop.
func drainSpeaker(ctx context.Context, lb *i2s.Loopback) {
	buf := make([]byte, 4096)
	for ctx.Err() == nil {
		if _, err := lb.DrainSpeaker(buf, 100*time.Millisecond); err != nil {
			time.Sleep(50 * time.Millisecond)
		}
	}
}

func renderStatus(styles cli.Styles, dev *device.Device, display *consoleDisplay,
	capture *voice.Capture, logw *cli.LogWriter) {

	frames, chunks := display.Counts()
	f := cli.StatusFrame{
		Styles: styles,
		Title:  "microfirst",
		Status: dev.State().String(),
		Fields: []cli.Field{
			{Label: "expression", Value: fmt.Sprintf("%v", dev.ExpressionPlaying())},
			{Label: "frames", Value: fmt.Sprintf("%d (%d chunks)", frames, chunks)},
			{Label: "captured", Value: cli.FormatBytes(int64(capture.Bytes()))},
		},
		Log:  logw.Lines(),
		Help: "enter: toggle hold   q+enter: quit",
	}
	fmt.Print("\033[H\033[2J" + f.Render(80, 24) + "\n")
}

func logLevel() slog.Level {
	if IsVerbose() {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
