package chunker

import (
	"math"
	"strings"
)

// TranscriptSegment is one timed span of transcribed speech. Segments may
// carry seconds-based or millisecond-based timestamps depending on the
// transcription backend; absent fields stay absent through a merge.
type TranscriptSegment struct {
	Start   *float64 `json:"start,omitempty"`
	End     *float64 `json:"end,omitempty"`
	StartMs *int64   `json:"startMs,omitempty"`
	EndMs   *int64   `json:"endMs,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// TranscriptionResult is the output of transcribing one audio unit, either
// a single chunk or the merged whole.
type TranscriptionResult struct {
	Text     string              `json:"text"`
	Segments []TranscriptSegment `json:"segments,omitempty"`
}

// Merge reassembles per-chunk transcription results into one transcript
// with absolute timestamps. Results must be paired in order with the
// chunks they were produced from. Chunk texts are joined with single
// spaces; each segment's timestamps are shifted by its chunk's start
// offset. Segments keep chunk order, then within-chunk order. Chunk
// order is temporal by construction, so no re-sort happens.
func Merge(results []TranscriptionResult, chunks []Chunk) TranscriptionResult {
	n := len(results)
	if len(chunks) < n {
		n = len(chunks)
	}

	var texts []string
	var segments []TranscriptSegment
	for i := 0; i < n; i++ {
		if text := strings.TrimSpace(results[i].Text); text != "" {
			texts = append(texts, text)
		}
		offset := chunks[i].Start
		for _, seg := range results[i].Segments {
			segments = append(segments, shiftSegment(seg, offset))
		}
	}

	return TranscriptionResult{
		Text:     strings.Join(texts, " "),
		Segments: segments,
	}
}

// shiftSegment returns a copy of seg with every present timestamp field
// advanced by the chunk offset in seconds.
func shiftSegment(seg TranscriptSegment, offsetSeconds float64) TranscriptSegment {
	out := TranscriptSegment{Text: seg.Text}
	if seg.Start != nil {
		v := *seg.Start + offsetSeconds
		out.Start = &v
	}
	if seg.End != nil {
		v := *seg.End + offsetSeconds
		out.End = &v
	}
	offsetMs := int64(math.Round(offsetSeconds * 1000))
	if seg.StartMs != nil {
		v := *seg.StartMs + offsetMs
		out.StartMs = &v
	}
	if seg.EndMs != nil {
		v := *seg.EndMs + offsetMs
		out.EndMs = &v
	}
	return out
}
