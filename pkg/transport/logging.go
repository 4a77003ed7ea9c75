package transport

import (
	"time"

	"github.com/rs/zerolog"
)

// loggingTransport traces every exchange at debug level.
type loggingTransport struct {
	next Transport
	log  zerolog.Logger
}

// WithLogging wraps t so each Send and Receive is traced on logger.
func WithLogging(t Transport, logger zerolog.Logger) Transport {
	return &loggingTransport{next: t, log: logger}
}

func (l *loggingTransport) Send(data []byte) (int, error) {
	n, err := l.next.Send(data)
	ev := l.log.Debug()
	if err != nil {
		ev = l.log.Warn().Err(err)
	}
	ev.Str("dir", ">>>").Hex("data", data).Int("written", n).Msg("send")
	return n, err
}

func (l *loggingTransport) Receive(maxLen int, timeout time.Duration) ([]byte, error) {
	start := time.Now()
	data, err := l.next.Receive(maxLen, timeout)
	ev := l.log.Debug()
	if err != nil {
		ev = l.log.Warn().Err(err)
	}
	ev.Str("dir", "<<<").Hex("data", data).Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).Msg("receive")
	return data, err
}

func (l *loggingTransport) Close() error {
	return l.next.Close()
}
