package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
	_ "golang.org/x/image/webp"

	"github.com/vango-go/nava/pkg/core/imaging"
	"github.com/vango-go/nava/pkg/core/live"
	"github.com/vango-go/nava/pkg/core/types"
)

// mediaDevices is the microphone and speaker pair.
type mediaDevices interface {
	live.AudioCapture
	live.AudioPlayback
	Close()
}

// devices holds the process-wide audio contexts. oto allows one context per
// process, so the speaker runs at live.OutputFormat only.
type devices struct {
	malgo *malgo.AllocatedContext
	oto   *oto.Context
}

func openDevices() (mediaDevices, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	octx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   live.OutputFormat.SampleRate,
		ChannelCount: live.OutputFormat.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready
	return &devices{malgo: mctx, oto: octx}, nil
}

func (d *devices) Close() {
	_ = d.malgo.Uninit()
	d.malgo.Free()
}

// OpenCapture starts the default microphone. Each Read returns one
// live.InputPeriod buffer.
func (d *devices) OpenCapture(_ context.Context, f live.Format) (live.AudioSource, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(max(f.Channels, 1))
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.PeriodSizeInMilliseconds = uint32(live.InputPeriod / time.Millisecond)

	src := &micSource{buffers: make(chan []byte, 50), closed: make(chan struct{})}
	device, err := malgo.InitDevice(d.malgo.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			buf := make([]byte, len(input))
			copy(buf, input)
			select {
			case src.buffers <- buf:
			default:
				// Reader is behind; drop the oldest period.
				select {
				case <-src.buffers:
				default:
				}
				select {
				case src.buffers <- buf:
				default:
				}
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	src.device = device
	return src, nil
}

type micSource struct {
	device  *malgo.Device
	buffers chan []byte
	once    sync.Once
	closed  chan struct{}
}

func (m *micSource) Read(ctx context.Context) ([]byte, error) {
	select {
	case b := <-m.buffers:
		return b, nil
	case <-m.closed:
		return nil, errors.New("microphone closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *micSource) Close() error {
	m.once.Do(func() {
		close(m.closed)
		_ = m.device.Stop()
		m.device.Uninit()
	})
	return nil
}

// OpenPlayback starts a player pulling from a scheduled PCM buffer.
func (d *devices) OpenPlayback(f live.Format) (live.AudioSink, error) {
	if f != live.OutputFormat {
		return nil, fmt.Errorf("speaker runs at %d Hz, got %d Hz", live.OutputFormat.SampleRate, f.SampleRate)
	}
	buf := newPCMBuffer(f, time.Now)
	player := d.oto.NewPlayer(buf)
	player.Play()
	return &speakerSink{buf: buf, player: player}, nil
}

type speakerSink struct {
	buf    *pcmBuffer
	player *oto.Player
	once   sync.Once
}

func (s *speakerSink) Enqueue(at time.Time, pcm []byte) error {
	return s.buf.Enqueue(at, pcm)
}

func (s *speakerSink) Close() error {
	var err error
	s.once.Do(func() {
		s.buf.close()
		err = s.player.Close()
	})
	return err
}

// pcmBuffer is the reader behind an oto player. It yields silence when
// empty, so the player consumes in real time and the end of the buffered
// audio is always now + buffered duration.
type pcmBuffer struct {
	format live.Format
	now    func() time.Time

	mu     sync.Mutex
	data   []byte
	closed bool
}

func newPCMBuffer(f live.Format, now func() time.Time) *pcmBuffer {
	return &pcmBuffer{format: f, now: now}
}

// Enqueue pads with silence up to at, then appends pcm.
func (b *pcmBuffer) Enqueue(at time.Time, pcm []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("speaker closed")
	}
	end := b.now().Add(b.format.Duration(len(b.data)))
	if gap := at.Sub(end); gap > 0 {
		b.data = append(b.data, make([]byte, b.format.BytesFor(gap))...)
	}
	b.data = append(b.data, pcm...)
	return nil
}

func (b *pcmBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := copy(p, b.data)
	b.data = b.data[n:]
	clear(p[n:])
	return len(p), nil
}

func (b *pcmBuffer) buffered() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.format.Duration(len(b.data))
}

func (b *pcmBuffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.data = nil
}

// fileCamera serves stills from disk as the live video feed. A directory
// yields its newest image on every snapshot, so any tool that drops frames
// into it works as a webcam.
type fileCamera struct {
	path string
}

func (c fileCamera) OpenVideo(context.Context) (live.FrameSource, error) {
	if _, err := os.Stat(c.path); err != nil {
		return nil, err
	}
	return c, nil
}

func (c fileCamera) Snapshot(context.Context) (image.Image, error) {
	path, err := newestImage(c.path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

func (c fileCamera) Close() error { return nil }

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

func newestImage(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return path, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", err
	}
	var (
		best    string
		bestMod time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || fi.ModTime().After(bestMod) {
			best, bestMod = filepath.Join(path, e.Name()), fi.ModTime()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no images in %s", path)
	}
	return best, nil
}

// loadPhoto reads an image file the way the camera screen captures one.
func loadPhoto(path string) (types.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Image{}, err
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return types.Image{}, fmt.Errorf("%s is not an image (%s)", filepath.Base(path), mime)
	}
	return imaging.Normalize(types.Image{MIMEType: mime, Data: data}, imaging.Options{
		MaxDimension: imaging.CaptureMaxDimension,
		Quality:      imaging.CaptureQuality,
	})
}
