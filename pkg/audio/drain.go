package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use it when tearing down a producer whose output is no longer needed so the
// producing goroutine is not left blocked on a send.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
