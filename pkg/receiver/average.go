package receiver

// Average returns a stage that replaces every record with the mean of the
// last window records received, keeping the newest timestamp. A window of 1
// or less passes records through unchanged. The output closes when in does.
func Average(in <-chan Record, window int, bufSize int) <-chan Record {
	if window <= 1 {
		return in
	}
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	out := make(chan Record, bufSize)

	go func() {
		defer close(out)

		ring := make([]Record, 0, window)
		var sum [3]float64
		next := 0

		for rec := range in {
			if len(ring) < window {
				ring = append(ring, rec)
			} else {
				for i := range sum {
					sum[i] -= ring[next].Volts[i]
				}
				ring[next] = rec
				next = (next + 1) % window
			}
			for i := range sum {
				sum[i] += rec.Volts[i]
			}

			avg := Record{Timestamp: rec.Timestamp}
			n := float64(len(ring))
			for i := range sum {
				avg.Volts[i] = sum[i] / n
			}
			out <- avg
		}
	}()

	return out
}
