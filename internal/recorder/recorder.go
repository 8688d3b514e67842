package recorder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/curbz/cognition/internal/cognition"
)

// Config locates the flight recording. An empty path disables recording.
type Config struct {
	Path string `yaml:"path" env:"RECORDER_PATH"`
}

// Frame is one recorded cycle.
type Frame struct {
	Cycle     uint64    `msgpack:"c"`
	UnixMilli int64     `msgpack:"t"`
	Phase     string    `msgpack:"ph"`
	Authority string    `msgpack:"au"`
	PlanID    string    `msgpack:"pl,omitempty"`
	Returning bool      `msgpack:"rt,omitempty"`
	Lat       float64   `msgpack:"lat"`
	Lon       float64   `msgpack:"lon"`
	Alt       float64   `msgpack:"alt"`
	Heading   float64   `msgpack:"hdg"`
	Speed     float64   `msgpack:"gs"`
	Command   string    `msgpack:"cmd"`
	Params    []float64 `msgpack:"p,omitempty"`
	Status    string    `msgpack:"st,omitempty"`
}

// FrameFromReport flattens a cycle report into a frame.
func FrameFromReport(r cognition.Report) Frame {
	k := r.Kinematics
	f := Frame{
		Cycle:     r.Cycle,
		UnixMilli: r.Time.UnixMilli(),
		Phase:     r.EffectivePhase.String(),
		Authority: r.Authority.String(),
		PlanID:    r.PlanID,
		Returning: r.Returning,
		Lat:       k.Position.Lat,
		Lon:       k.Position.Lon,
		Alt:       k.Position.Alt,
		Heading:   k.Heading,
		Speed:     k.GroundSpeed,
		Command:   r.Output.Command.String(),
		Params:    r.Output.Params,
	}
	if r.Output.SendStatusTxt {
		f.Status = r.Output.Status
	}
	return f
}

// Recorder writes a zstd compressed stream of msgpack frames.
type Recorder struct {
	mu  sync.Mutex
	f   *os.File
	zw  *zstd.Encoder
	enc *msgpack.Encoder
}

func Open(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return &Recorder{f: f, zw: zw, enc: msgpack.NewEncoder(zw)}, nil
}

// Record appends the report's frame.
func (r *Recorder) Record(rep cognition.Report) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(FrameFromReport(rep)); err != nil {
		return fmt.Errorf("msgpack encode: %w", err)
	}
	return nil
}

// Close flushes the compressed stream and closes the file.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.zw.Close(), r.f.Close())
}

// ReadFrames decodes every frame of a recording.
func ReadFrames(rd io.Reader) ([]Frame, error) {
	zr, err := zstd.NewReader(rd)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer zr.Close()

	dec := msgpack.NewDecoder(zr)
	var frames []Frame
	for {
		var f Frame
		if err := dec.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				return frames, nil
			}
			return frames, fmt.Errorf("msgpack decode: %w", err)
		}
		frames = append(frames, f)
	}
}
