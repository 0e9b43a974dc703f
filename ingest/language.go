package ingest

import "github.com/abadojack/whatlanggo"

// languageSampleSize caps how much text feeds language detection.
const languageSampleSize = 1000

// DetectLanguage returns the ISO 639-1 code of the text's language,
// sampled from the first kilobyte. Unrecognized or empty input defaults
// to English.
func DetectLanguage(text string) string {
	sample := text
	if len(sample) > languageSampleSize {
		sample = sample[:languageSampleSize]
		// Back off to a rune boundary so the detector never sees a
		// torn multi-byte character.
		for len(sample) > 0 && (sample[len(sample)-1]&0xC0) == 0x80 {
			sample = sample[:len(sample)-1]
		}
		if len(sample) > 0 && sample[len(sample)-1] >= 0xC0 {
			sample = sample[:len(sample)-1]
		}
	}
	if sample == "" {
		return "en"
	}

	info := whatlanggo.Detect(sample)
	code := info.Lang.Iso6391()
	if code == "" {
		return "en"
	}
	return code
}
