package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// DefaultDelay is the pause before each echoed fragment.
const DefaultDelay = 50 * time.Millisecond

const echoPrefix = "Echo: "

// Emitter produces the reply to a prompt as an ordered, finite stream of fragments.
// The concatenation of all fragments is the full reply. Callers must Close the reader.
type Emitter interface {
	Stream(ctx context.Context, prompt string) (*schema.StreamReader[*schema.Message], error)
}

// EchoEmitter is a stand-in for a model backend: it repeats the prompt word by word.
type EchoEmitter struct {
	delay  time.Duration
	logger *zap.Logger
}

// NewEchoEmitter returns an emitter waiting delay before every fragment.
func NewEchoEmitter(delay time.Duration, logger *zap.Logger) *EchoEmitter {
	if delay < 0 {
		delay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EchoEmitter{delay: delay, logger: logger}
}

// Stream splits "Echo: <prompt>" on whitespace and yields each word with one trailing space.
// Cancelling ctx or closing the reader stops the producer.
func (e *EchoEmitter) Stream(ctx context.Context, prompt string) (*schema.StreamReader[*schema.Message], error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("echo stream: %w", err)
	}

	words := strings.Fields(echoPrefix + prompt)
	sr, sw := schema.Pipe[*schema.Message](0)

	go func() {
		defer sw.Close()

		for i, word := range words {
			if err := wait(ctx, e.delay); err != nil {
				e.logger.Debug("echo stream interrupted", zap.Int("sent", i), zap.Error(err))
				sw.Send(nil, err)
				return
			}
			if closed := sw.Send(schema.AssistantMessage(word+" ", nil), nil); closed {
				e.logger.Debug("echo stream reader closed early", zap.Int("sent", i))
				return
			}
		}
	}()

	return sr, nil
}

// Collect drains a fragment stream, calling onFragment for each non-empty piece,
// and returns the concatenated reply. The reader is closed on return.
func Collect(stream *schema.StreamReader[*schema.Message], onFragment func(string)) (string, error) {
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" && onFragment != nil {
			onFragment(chunk.Content)
		}
	}

	if len(chunks) == 0 {
		return "", nil
	}

	merged, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", fmt.Errorf("concat fragments: %w", err)
	}
	return merged.Content, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
