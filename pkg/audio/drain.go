package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to keep a transport's read side flowing when nothing consumes
// the frames, e.g. after a call handler failed and the call is left open.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
