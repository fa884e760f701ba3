package safe

import (
	"github.com/Ezmad-Ze/chat-app/logger"
)

// Go starts a goroutine that recovers from panics, so one misbehaving
// connection handler cannot take the process down.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
