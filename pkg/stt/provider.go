package stt

import (
	"context"

	"engagement-server/pkg/chunker"
)

// Provider transcribes one bounded-size audio file. Timestamps in the
// returned segments are relative to the start of that file; the chunked
// Service layered above shifts them to absolute session time.
type Provider interface {
	// Name returns the provider identifier for logging and metrics.
	Name() string

	// TranscribeFile transcribes a single audio file that fits the
	// transcription service's per-request byte ceiling.
	TranscribeFile(ctx context.Context, audioPath string) (*chunker.TranscriptionResult, error)
}
