package receiver

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/itohio/btadc/pkg/ads"
)

// Placeholder is stored for channels that are disabled in a recording.
const Placeholder = 1.0

// ErrStreamClosed is returned when the sample stream ends early.
var ErrStreamClosed = errors.New("sample stream closed")

// Recording holds samples collected per channel.
type Recording struct {
	Enabled    [3]bool
	Timestamps []time.Time
	Channels   [3][]float64
}

// Len returns the number of collected samples.
func (r *Recording) Len() int {
	return len(r.Timestamps)
}

// SampleCount returns how many records the bridge publishes over d at rate.
func SampleCount(d time.Duration, rate ads.DataRate) int {
	if d <= 0 {
		return 0
	}
	return int(d.Seconds() * float64(rate))
}

// Collect reads n records from in. enabled[i] masks field i of every line;
// channels not enabled are filled with Placeholder. On cancellation or an early end of stream the partial
// recording is returned together with the error.
func Collect(ctx context.Context, in <-chan Record, n int, enabled [3]bool) (*Recording, error) {
	rec := &Recording{
		Enabled:    enabled,
		Timestamps: make([]time.Time, 0, n),
	}
	for i := range rec.Channels {
		rec.Channels[i] = make([]float64, 0, n)
	}

	for rec.Len() < n {
		select {
		case <-ctx.Done():
			return rec, ctx.Err()
		case r, ok := <-in:
			if !ok {
				return rec, ErrStreamClosed
			}
			rec.add(r)
		}
	}
	return rec, nil
}

func (r *Recording) add(s Record) {
	r.Timestamps = append(r.Timestamps, s.Timestamp)
	for i, v := range s.Volts {
		if !r.Enabled[i] {
			v = Placeholder
		}
		r.Channels[i] = append(r.Channels[i], v)
	}
}

// WriteCSV writes the recording with a header row.
// Format: timestamp,ch0,ch1,ch2
func (r *Recording) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"timestamp", "ch0", "ch1", "ch2"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, 4)
	for i, ts := range r.Timestamps {
		row[0] = ts.Format(time.RFC3339Nano)
		for ch := range r.Channels {
			row[ch+1] = strconv.FormatFloat(r.Channels[ch][i], 'f', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}
