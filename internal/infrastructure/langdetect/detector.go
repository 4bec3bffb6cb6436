package langdetect

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Detector wraps trigram language detection and only reports reliable hits.
type Detector struct {
	minConfidence float64
}

func New(minConfidence float64) *Detector {
	if minConfidence <= 0 || minConfidence > 1 {
		minConfidence = whatlanggo.ReliableConfidenceThreshold
	}
	return &Detector{minConfidence: minConfidence}
}

func (d *Detector) Detect(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	info := whatlanggo.Detect(text)
	if info.Confidence < d.minConfidence {
		return ""
	}
	return info.Lang.Iso6391()
}

// Resolve returns the detected language or the fallback.
func Resolve(detector interface{ Detect(string) string }, text, fallback string) string {
	if detector != nil {
		if lang := detector.Detect(text); lang != "" {
			return lang
		}
	}
	return fallback
}
