package analysis

// Word is one transcribed token with its timing in seconds from the start of
// the audio. Across a whole transcription, start times are non-decreasing.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is a contiguous span of speech as returned by the transcriber.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words"`
}

// Transcription is the immutable output of the transcription stage.
type Transcription struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// Words flattens the words of every segment, preserving order.
func (t *Transcription) Words() []Word {
	if t == nil {
		return nil
	}
	n := 0
	for _, s := range t.Segments {
		n += len(s.Words)
	}
	words := make([]Word, 0, n)
	for _, s := range t.Segments {
		words = append(words, s.Words...)
	}
	return words
}

// Span returns the start of the first segment and the end of the last word
// (or of the last segment when it carries no words). ok is false for an empty
// transcription.
func (t *Transcription) Span() (start, end float64, ok bool) {
	if t == nil || len(t.Segments) == 0 {
		return 0, 0, false
	}
	first := t.Segments[0]
	last := t.Segments[len(t.Segments)-1]
	start = first.Start
	end = last.End
	if n := len(last.Words); n > 0 {
		end = last.Words[n-1].End
	}
	return start, end, true
}
