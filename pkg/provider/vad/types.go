package vad

// Result is the outcome of feeding one chunk to a [SessionHandle].
type Result struct {
	// Detected is true when the chunk closed a speech run long enough to be
	// treated as an utterance.
	Detected bool

	// Segment holds the utterance samples, including a short lead-in of audio
	// preceding the run. Nil unless Detected is true.
	Segment []float32
}
