package patch

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// Format identifies which single output shape a raw text matches.
type Format int

const (
	// FormatUnrecognized means no shape matched; the caller should treat the
	// text as "no proposal" or request a corrected resubmission.
	FormatUnrecognized Format = iota

	// FormatManifest is one JSON-tagged fenced block with a "files" manifest.
	FormatManifest

	// FormatMultiFile is one fenced block per file, each headed by a
	// comment-marker "file:" declaration.
	FormatMultiFile

	// FormatSingleLegacy is a single fenced block whose body is the payload
	// for the default target.
	FormatSingleLegacy
)

func (f Format) String() string {
	switch f {
	case FormatManifest:
		return "manifest"
	case FormatMultiFile:
		return "multi-file"
	case FormatSingleLegacy:
		return "single-legacy"
	default:
		return "unrecognized"
	}
}

const (
	// DefaultLegacyLanguage is the fence tag keyword accepted on a
	// single-legacy block, and the default language hint for extracted files.
	DefaultLegacyLanguage = "python"

	// multiFileMinBody is the minimum trimmed body length of a per-file block
	// after its header line is stripped.
	multiFileMinBody = 5

	// legacyMinBody is the minimum trimmed body length of a single-legacy
	// block; shorter bodies are trivial or empty responses.
	legacyMinBody = 50
)

// Detector classifies raw text into exactly one Format. Formats are tried in
// a fixed priority: manifest, then multi-file, then single-legacy. Priority,
// not content heuristics, resolves texts that structurally satisfy more than
// one shape: the richer contract wins.
type Detector struct {
	// LegacyLanguage is the reserved fence-tag keyword for the default
	// target. A tagged single block qualifies as legacy only when its tag
	// contains this keyword.
	LegacyLanguage string
}

// NewDetector returns a detector with the default legacy language.
func NewDetector() *Detector {
	return &Detector{LegacyLanguage: DefaultLegacyLanguage}
}

// Detection is the tagged result of classifying a text.
type Detection struct {
	Format Format

	// Files holds the extracted payloads for manifest and multi-file shapes.
	Files []ParsedFile

	// Body holds the extracted payload for the single-legacy shape.
	Body string
}

// Detect classifies text and extracts its payload in one pass.
func (d *Detector) Detect(text string) Detection {
	blocks := fencedBlocks(text)
	if len(blocks) == 0 {
		return Detection{Format: FormatUnrecognized}
	}
	if files, ok := d.manifestFiles(blocks); ok {
		return Detection{Format: FormatManifest, Files: files}
	}
	if files, ok := d.multiFileEntries(blocks); ok {
		return Detection{Format: FormatMultiFile, Files: files}
	}
	if body, ok := d.singleLegacyBody(blocks); ok {
		return Detection{Format: FormatSingleLegacy, Body: body}
	}
	return Detection{Format: FormatUnrecognized}
}

func (d *Detector) defaultLanguage() string {
	if d.LegacyLanguage != "" {
		return d.LegacyLanguage
	}
	return DefaultLegacyLanguage
}

// fence is one delimited span of text with its opening tag.
type fence struct {
	tag  string
	body string
}

// fencedBlocks splits text into triple-backtick fenced blocks. An opening
// fence may carry a tag word; an unterminated fence is dropped.
func fencedBlocks(text string) []fence {
	var blocks []fence
	var body []string
	var tag string
	inBlock := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !inBlock {
			if strings.HasPrefix(trimmed, "```") {
				inBlock = true
				tag = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
				body = nil
			}
			continue
		}
		if strings.HasPrefix(trimmed, "```") {
			blocks = append(blocks, fence{tag: tag, body: strings.Join(body, "\n")})
			inBlock = false
			continue
		}
		body = append(body, line)
	}
	return blocks
}

// manifestEntry mirrors one element of the manifest's "files" list.
type manifestEntry struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// manifestFiles accepts exactly one JSON-tagged block whose body is an object
// with a non-empty "files" list. Any malformed entry disqualifies the whole
// block; there is no partial acceptance.
func (d *Detector) manifestFiles(blocks []fence) ([]ParsedFile, bool) {
	var jsonBlocks []fence
	for _, b := range blocks {
		if strings.EqualFold(b.tag, "json") {
			jsonBlocks = append(jsonBlocks, b)
		}
	}
	if len(jsonBlocks) != 1 {
		return nil, false
	}

	var manifest struct {
		Files []manifestEntry `json:"files"`
	}
	if err := json.Unmarshal([]byte(jsonBlocks[0].body), &manifest); err != nil {
		return nil, false
	}
	if len(manifest.Files) == 0 {
		return nil, false
	}

	seen := make(map[string]bool, len(manifest.Files))
	files := make([]ParsedFile, 0, len(manifest.Files))
	for _, entry := range manifest.Files {
		path := strings.TrimSpace(entry.Path)
		if path == "" || filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
			return nil, false
		}
		if seen[path] {
			return nil, false
		}
		if len(entry.Content) < 1 {
			return nil, false
		}
		seen[path] = true
		lang := strings.ToLower(strings.TrimSpace(entry.Language))
		if lang == "" {
			lang = d.defaultLanguage()
		}
		files = append(files, ParsedFile{Path: path, Content: entry.Content, Language: lang})
	}
	return files, true
}

// headerMarkers are the comment openers accepted on a per-file header line.
var headerMarkers = []string{"#", ";", "//", "/*", "<!--"}

// headerKeywords declare "this block is a file at the following path".
var headerKeywords = []string{"file", "filepath", "path"}

// parseFileHeader extracts the declared path from a block's first non-empty
// line, e.g. "# file: pkg/util.go" or "<!-- path: docs/readme.md -->".
func parseFileHeader(line string) (string, bool) {
	s := strings.TrimSpace(line)
	rest := ""
	matched := false
	for _, marker := range headerMarkers {
		if strings.HasPrefix(s, marker) {
			rest = strings.TrimSpace(strings.TrimPrefix(s, marker))
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}

	lower := strings.ToLower(rest)
	for _, kw := range headerKeywords {
		if !strings.HasPrefix(lower, kw) {
			continue
		}
		after := strings.TrimSpace(rest[len(kw):])
		if !strings.HasPrefix(after, ":") {
			continue
		}
		path := strings.TrimSpace(strings.TrimPrefix(after, ":"))
		path = strings.TrimSuffix(path, "*/")
		path = strings.TrimSuffix(path, "-->")
		path = strings.TrimSpace(path)
		if path == "" {
			return "", false
		}
		return path, true
	}
	return "", false
}

// multiFileEntries requires every block to carry a valid file header, a path
// unique across blocks that does not start with a separator, and a
// non-trivial body once the header line is stripped. One bad block fails the
// whole format.
func (d *Detector) multiFileEntries(blocks []fence) ([]ParsedFile, bool) {
	seen := make(map[string]bool, len(blocks))
	files := make([]ParsedFile, 0, len(blocks))

	for _, b := range blocks {
		lines := strings.Split(b.body, "\n")
		headerIdx := -1
		for i, line := range lines {
			if strings.TrimSpace(line) != "" {
				headerIdx = i
				break
			}
		}
		if headerIdx < 0 {
			return nil, false
		}

		path, ok := parseFileHeader(lines[headerIdx])
		if !ok {
			return nil, false
		}
		if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
			return nil, false
		}
		if seen[path] {
			return nil, false
		}

		content := strings.Join(lines[headerIdx+1:], "\n")
		content = strings.TrimLeft(content, "\r\n")
		if len(strings.TrimSpace(content)) < multiFileMinBody {
			return nil, false
		}

		seen[path] = true
		files = append(files, ParsedFile{Path: path, Content: content, Language: d.defaultLanguage()})
	}
	if len(files) == 0 {
		return nil, false
	}
	return files, true
}

// singleLegacyBody accepts exactly one fenced block, optionally tagged with
// the legacy language keyword, whose trimmed body exceeds the minimum length.
func (d *Detector) singleLegacyBody(blocks []fence) (string, bool) {
	if len(blocks) != 1 {
		return "", false
	}
	b := blocks[0]
	if b.tag != "" && !strings.Contains(strings.ToLower(b.tag), strings.ToLower(d.defaultLanguage())) {
		return "", false
	}
	body := strings.TrimSpace(b.body)
	if len(body) <= legacyMinBody {
		return "", false
	}
	return body, true
}
