package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/inference-sim/paged-kv-sim/sim"
)

// Header is the first line of an exported trace.
type Header struct {
	RunID   string        `json:"run_id"`
	Config  sim.SimConfig `json:"config"`
	Summary *TraceSummary `json:"summary"`
}

// NewHeader stamps a fresh run id on cfg and the summary of records.
func NewHeader(cfg sim.SimConfig, records []Record) Header {
	return Header{RunID: uuid.NewString(), Config: cfg, Summary: Summarize(records)}
}

// line is the wire form of one Record.
type line struct {
	Seq       int64         `json:"event_id"`
	ElapsedNs int64         `json:"elapsed_ns"`
	RequestID string        `json:"request_id,omitempty"`
	Kind      sim.EventKind `json:"event_type"`
	Details   sim.Event     `json:"details"`
}

// WriteJSONL writes the header followed by one JSON object per record.
// With compress set the whole stream is zstd-compressed.
func WriteJSONL(w io.Writer, header Header, records []Record, compress bool) (err error) {
	if compress {
		zw, zerr := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zerr != nil {
			return fmt.Errorf("creating zstd encoder: %w", zerr)
		}
		defer func() {
			if cerr := zw.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing zstd encoder: %w", cerr)
			}
		}()
		w = zw
	}
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	if err := enc.Encode(header); err != nil {
		return fmt.Errorf("writing trace header: %w", err)
	}
	for _, r := range records {
		l := line{Seq: r.Seq, ElapsedNs: r.Elapsed.Nanoseconds(), RequestID: r.RequestID, Kind: r.Kind(), Details: r.Event}
		if err := enc.Encode(l); err != nil {
			return fmt.Errorf("writing event %d: %w", r.Seq, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing trace: %w", err)
	}
	return nil
}

// ReadHeader reads back the header line of an exported trace, transparently
// decompressing zstd input.
func ReadHeader(r io.Reader, compressed bool) (Header, error) {
	if compressed {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return Header{}, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	var h Header
	if err := json.NewDecoder(r).Decode(&h); err != nil {
		return Header{}, fmt.Errorf("reading trace header: %w", err)
	}
	return h, nil
}
