package recorder

import "context"

// Artifact is the opaque handle to a finished recording: where the media
// landed and what the camera was configured to capture.
type Artifact struct {
	Path   string
	Codec  string
	Width  int
	Height int
	FPS    int
}

// Result arrives on Done when the recorder finishes or faults. The artifact
// is only known here — never at the moment stop is requested.
type Result struct {
	Artifact Artifact
	Err      error
}

// Recorder abstracts the hardware video recorder. Start begins capture and
// returns once the hardware is rolling. RequestStop asks it to finish; the
// completion signal, with the final artifact, is delivered asynchronously on
// Done. A hardware fault during recording surfaces on Done as well, without
// a stop having been requested.
type Recorder interface {
	Start(ctx context.Context) error
	RequestStop()
	Done() <-chan Result
}
