// File: internal/chat/typewriter.go
package chat

import (
	"context"
	"time"
)

// DefaultTypewriterSpeed is the delay between revealed runes.
const DefaultTypewriterSpeed = 30 * time.Millisecond

// Typewriter reveals text one rune per tick. Each value on the returned
// channel is the full prefix shown so far; the last one is text itself. The
// channel closes when the reveal finishes or ctx is cancelled.
func Typewriter(ctx context.Context, text string, speed time.Duration) <-chan string {
	if speed <= 0 {
		speed = DefaultTypewriterSpeed
	}
	out := make(chan string)
	go func() {
		defer close(out)
		runes := []rune(text)
		if len(runes) == 0 {
			return
		}
		ticker := time.NewTicker(speed)
		defer ticker.Stop()
		for i := 1; i <= len(runes); i++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			select {
			case out <- string(runes[:i]):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
