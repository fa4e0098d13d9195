package iosource

import (
	"context"
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

// Pump copies packets from src to dst until the source is exhausted, ctx is
// done or limit packets were written. limit <= 0 means no limit. dst must
// already be open. m may be nil. It returns the number of packets written.
func Pump(ctx context.Context, src PktSrc, dst PktDumper, limit int, m *Metrics) (int, error) {
	logger := log.WithFields(log.Fields{
		"source": src.Path(),
		"dumper": dst.Path(),
		"limit":  limit,
	})
	logger.Debug("started")
	var count int
	for limit <= 0 || count < limit {
		if err := ctx.Err(); err != nil {
			logger.Debugf("stopped after %d packets: %v", count, err)
			return count, nil
		}
		data, ci, err := src.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// live reads wake up on idle timeout and on cancellation
			if errors.Is(err, context.DeadlineExceeded) || (errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				continue
			}
			if m != nil {
				m.Errors.WithLabelValues(src.Path(), "read").Inc()
			}
			return count, fmt.Errorf("error reading from %s: %w", src.Path(), err)
		}
		if m != nil {
			m.PacketsReceived.WithLabelValues(src.Path()).Inc()
		}
		if err := dst.WritePacket(ci, data); err != nil {
			if m != nil {
				m.Errors.WithLabelValues(dst.Path(), "write").Inc()
			}
			return count, fmt.Errorf("error writing to %s: %w", dst.Path(), err)
		}
		count++
		if m != nil {
			m.PacketsWritten.WithLabelValues(dst.Path()).Inc()
			m.BytesWritten.WithLabelValues(dst.Path()).Add(float64(len(data)))
		}
	}
	logger.Debugf("finished after %d packets", count)
	return count, nil
}
