package language

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

// Detector is the statistical language detection boundary.
type Detector interface {
	Detect(text string) (Tag, error)
}

var ErrUnreliable = errors.New("language detection unreliable")

// WhatlangDetector detects language with whatlanggo, restricted to the supported set.
type WhatlangDetector struct {
	opts whatlanggo.Options
}

func NewWhatlangDetector() *WhatlangDetector {
	return &WhatlangDetector{opts: whatlanggo.Options{
		Whitelist: map[whatlanggo.Lang]bool{
			whatlanggo.Eng: true,
			whatlanggo.Spa: true,
		},
	}}
}

func (d *WhatlangDetector) Detect(text string) (Tag, error) {
	info := whatlanggo.DetectWithOptions(text, d.opts)
	if !info.IsReliable() {
		return "", ErrUnreliable
	}
	switch info.Lang {
	case whatlanggo.Eng:
		return English, nil
	case whatlanggo.Spa:
		return Spanish, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, info.Lang.Iso6391())
	}
}

// Words that settle the language of a short phone utterance before statistics do.
// Transcribed speech is often two or three words, where n-gram detection is noisy.
var markers = map[Tag]map[string]struct{}{
	English: wordSet("hello", "hi", "hey", "yes", "yeah", "i", "i'm", "my", "the", "is", "need", "want", "have", "please", "thank", "thanks", "what", "when", "how", "can", "you", "rent", "lease"),
	Spanish: wordSet("hola", "buenos", "buenas", "sí", "necesito", "quiero", "tengo", "por", "favor", "mi", "el", "es", "está", "estoy", "ayuda", "qué", "cuándo", "cómo", "puede", "usted", "renta", "contrato", "gracias"),
}

// Resolver decides the conversation language for an utterance.
// It never fails: empty input and every detection failure yield the default.
type Resolver struct {
	def      Tag
	detector Detector
	log      *slog.Logger
}

func NewResolver(def Tag, d Detector, l *slog.Logger) *Resolver {
	if !def.Valid() {
		def = English
	}
	if l == nil {
		l = slog.Default()
	}
	return &Resolver{def: def, detector: d, log: l}
}

func (r *Resolver) Resolve(text string) Tag {
	words := Words(text)
	if len(words) == 0 {
		return r.def
	}
	if t, ok := byMarkers(words); ok {
		return t
	}
	if r.detector == nil {
		return r.def
	}
	t, err := r.detect(text)
	if err != nil {
		r.log.Debug("language detection fell back to default", "err", err, "default", r.def)
		return r.def
	}
	if !t.Valid() {
		return r.def
	}
	return t
}

func (r *Resolver) detect(text string) (t Tag, err error) {
	defer func() {
		if p := recover(); p != nil {
			t, err = "", fmt.Errorf("detector panic: %v", p)
		}
	}()
	return r.detector.Detect(text)
}

// byMarkers picks a language when one side has strictly more marker hits.
func byMarkers(words []string) (Tag, bool) {
	var en, es int
	for _, w := range words {
		if _, ok := markers[English][w]; ok {
			en++
		}
		if _, ok := markers[Spanish][w]; ok {
			es++
		}
	}
	switch {
	case en > es:
		return English, true
	case es > en:
		return Spanish, true
	default:
		return "", false
	}
}

// Words lowercases text and splits it on anything that is not a letter, digit or apostrophe.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func wordSet(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}
