package patch

// Parser extracts an ordered file list from raw text using the detector's
// priority order. Nothing recognized is a normal outcome, signalled by an
// empty result, never by an error.
type Parser struct {
	Detector *Detector
}

// NewParser returns a parser backed by a default detector.
func NewParser() *Parser {
	return &Parser{Detector: NewDetector()}
}

// Parse returns the files extracted from text. For the single-legacy shape
// the one extracted body is assigned defaultTarget. An unrecognized text
// yields an empty list; callers treat that as "no proposal this cycle".
func (p *Parser) Parse(text, defaultTarget string) []ParsedFile {
	det := p.Detector.Detect(text)
	switch det.Format {
	case FormatManifest, FormatMultiFile:
		return det.Files
	case FormatSingleLegacy:
		return []ParsedFile{{
			Path:     defaultTarget,
			Content:  det.Body,
			Language: p.Detector.defaultLanguage(),
		}}
	default:
		return nil
	}
}
