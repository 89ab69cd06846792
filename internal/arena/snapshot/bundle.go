package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/zeusync/arena/internal/arena/telemetry"
)

var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

// Bundle is the export format: the last committed snapshot plus the debug
// logs, battle log and decision code at export time. A bundle is enough to
// restore the match into a fresh process.
type Bundle struct {
	ExportedAt time.Time                    `json:"exported_at"`
	Snapshot   *Snapshot                    `json:"snapshot"`
	Sources    map[string]string            `json:"sources,omitempty"`
	Debug      map[string][]telemetry.Event `json:"debug,omitempty"`
	Logs       []telemetry.LogEntry         `json:"logs,omitempty"`
}

// WriteBundle encodes b as zstd-compressed JSON.
func WriteBundle(w io.Writer, b Bundle) error {
	if b.Snapshot == nil {
		return errors.New("bundle has no snapshot")
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 64*1024)
	if err := json.NewEncoder(bw).Encode(&b); err != nil {
		_ = enc.Close()
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// ReadBundle decodes a stream produced by WriteBundle.
func ReadBundle(r io.Reader) (Bundle, error) {
	var b Bundle
	dec, err := zstd.NewReader(r)
	if err != nil {
		return b, err
	}
	defer dec.Close()

	if err := json.NewDecoder(bufio.NewReaderSize(dec, 64*1024)).Decode(&b); err != nil {
		return b, fmt.Errorf("json decode: %w", err)
	}
	if b.Snapshot == nil {
		return b, errors.New("bundle has no snapshot")
	}
	if b.Snapshot.Version != Version {
		return b, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b.Snapshot.Version)
	}
	return b, nil
}
