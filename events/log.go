// Package events delivers the events printed by committed calls to the outside world.
package events

import (
	"context"
	"io"
	"log"

	"anarchy.ttfm/sbtcpay/chain"
)

// Log prints every event as a single line
type Log struct {
	logger *log.Logger
}

var _ chain.Sink = (*Log)(nil)

// NewLog prints to w. A nil w prints through the standard logger.
func NewLog(w io.Writer) (l *Log) {
	l = &Log{logger: log.Default()}
	if w != nil {
		l.logger = log.New(w, "", log.LstdFlags)
	}
	return l
}

func (l *Log) Publish(_ context.Context, events []chain.Event) (err error) {
	for _, event := range events {
		l.logger.Println("INFO|EVENT|"+event.Name, event.Height, event.Contract, event.Sender, string(event.Data))
	}
	return nil
}
