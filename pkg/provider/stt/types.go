package stt

import "time"

// Transcript is one result from a session, interim or committed.
type Transcript struct {
	Text    string
	IsFinal bool

	// Confidence is in [0, 1]. Zero when the provider does not report it.
	Confidence float64

	// Words is nil unless the provider returns word timings.
	Words []WordDetail

	// Timestamp is the utterance start, measured from the session start.
	Timestamp time.Duration
	Duration  time.Duration
}

// WordDetail is the timing of a single recognised word.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost raises the likelihood of a rare word such as "Habakkuk" or
// "Philemon". Boost uses the provider's own scale.
type KeywordBoost struct {
	Keyword string
	Boost   float64
}
