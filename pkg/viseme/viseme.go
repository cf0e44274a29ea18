// Package viseme derives mouth-shape timelines from synthesis metadata.
//
// Speech synthesizers that expose per-mora timing (a consonant onset length,
// a vowel symbol, a vowel length) carry enough information to drive lip-sync
// without audio analysis: every vowel maps to one of six mouth shapes, and
// the onset lengths place each shape on the playback clock. [Build] performs
// that walk and returns the timeline as wire-ready events.
package viseme

import (
	"math"
	"strings"
)

// Shape is one of the six mouth shapes an avatar can hold.
type Shape string

const (
	ShapeA Shape = "A"
	ShapeI Shape = "I"
	ShapeU Shape = "U"
	ShapeE Shape = "E"
	ShapeO Shape = "O"

	// ShapeN is the closed mouth used for nasals, pauses, and any symbol
	// without a dedicated shape.
	ShapeN Shape = "N"
)

// Mora is one syllabic unit of an utterance: an optional consonant onset
// followed by a vowel nucleus. Lengths are in seconds. An uppercase vowel
// symbol marks the devoiced form of the same vowel.
type Mora struct {
	Consonant       string
	ConsonantLength float64
	Vowel           string
	VowelLength     float64
}

// Phrase is an accent phrase: an ordered run of morae, optionally followed
// by a pause before the next phrase.
type Phrase struct {
	Moras []Mora
	Pause *Mora
}

// Metadata is the phonetic timing for one synthesized utterance, in the
// order it plays back. PrePhonemeLength is the leading padding in seconds
// before the first mora starts.
type Metadata struct {
	PrePhonemeLength float64
	Phrases          []Phrase
}

// Event is one mouth-shape change on the playback clock. T and Duration are
// seconds from the start of the audio, rounded to 0.1 ms. Unvoiced is left
// off the wire for the common voiced case.
type Event struct {
	T        float64 `json:"t"`
	Shape    Shape   `json:"v"`
	Duration float64 `json:"dur"`
	Unvoiced bool    `json:"unvoiced,omitempty"`
}

var vowelShapes = map[string]Shape{
	"a": ShapeA, "i": ShapeI, "u": ShapeU, "e": ShapeE, "o": ShapeO,
	"A": ShapeA, "I": ShapeI, "U": ShapeU, "E": ShapeE, "O": ShapeO,
	"N": ShapeN,
}

// shapeFor maps a vowel symbol to its mouth shape. Symbols without a shape
// of their own ("cl" glottal stops, "pau" pauses) close the mouth.
func shapeFor(vowel string) Shape {
	if s, ok := vowelShapes[vowel]; ok {
		return s
	}
	return ShapeN
}

// devoiced reports whether the symbol is an uppercase vowel. "N" is
// uppercase by convention but voiced.
func devoiced(vowel string) bool {
	if vowel == "N" {
		return false
	}
	return vowel != strings.ToLower(vowel) && vowel == strings.ToUpper(vowel)
}

// Build walks md in playback order and returns the mouth-shape timeline.
//
// The clock starts at the pre-phoneme padding. Each consonant advances the
// clock without an event (the mouth is in transition), each vowel with a
// positive length emits one event and advances the clock, and a phrase pause
// emits a closed-mouth event. Zero-length items emit nothing but still
// advance the clock. An empty phrase list yields an empty timeline.
func Build(md Metadata) []Event {
	events := []Event{}
	t := md.PrePhonemeLength

	for _, phrase := range md.Phrases {
		for _, mora := range phrase.Moras {
			t += mora.ConsonantLength
			if mora.VowelLength > 0 {
				events = append(events, Event{
					T:        round4(t),
					Shape:    shapeFor(mora.Vowel),
					Duration: round4(mora.VowelLength),
					Unvoiced: devoiced(mora.Vowel),
				})
			}
			t += mora.VowelLength
		}
		if pause := phrase.Pause; pause != nil {
			if pause.VowelLength > 0 {
				events = append(events, Event{
					T:        round4(t),
					Shape:    ShapeN,
					Duration: round4(pause.VowelLength),
				})
			}
			t += pause.VowelLength
		}
	}
	return events
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
