package backlog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Finding is one normalized tool complaint, ready to become a backlog item.
// Source names the tool that reported it.
type Finding struct {
	Kind   string
	File   string
	Line   string
	Rule   string
	Title  string
	Source string
}

// Digest returns the finding's stable content digest.
func (f Finding) Digest() string {
	return Digest(f.Kind, f.File, f.Line, f.Rule, f.Title)
}

var (
	// file.py:12:5: E501 line too long
	flake8Line = regexp.MustCompile(`^(.+?):(\d+):\d+:\s+([A-Z]\d+)\s+(.*)$`)
	// file.py:12: error: Incompatible types  [assignment]
	mypyLine = regexp.MustCompile(`^(.+?):(\d+):\s+error:\s+(.*?)(?:\s+\[([\w-]+)\])?$`)
	// FAILED tests/test_x.py::test_name - AssertionError: ...
	pytestLine = regexp.MustCompile(`^FAILED\s+(\S+?)::(\S+)(?:\s+-\s+(.*))?$`)
	// pip-audit: "requests 2.0.0 PYSEC-2023-74 fix versions: 2.31.0"
	pipAuditLine = regexp.MustCompile(`^(\S+)\s+(\S+)\s+((?:PYSEC|GHSA|CVE)\S*)\s*(.*)$`)
)

// ParseFlake8 extracts lint findings from flake8 output.
func ParseFlake8(output string) []Finding {
	var findings []Finding
	for _, line := range strings.Split(output, "\n") {
		m := flake8Line.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		findings = append(findings, Finding{
			Kind:   "lint",
			File:   m[1],
			Line:   m[2],
			Rule:   m[3],
			Title:  fmt.Sprintf("%s %s in %s:%s", m[3], m[4], m[1], m[2]),
			Source: "flake8",
		})
	}
	return findings
}

// ParseMypy extracts type errors from mypy output.
func ParseMypy(output string) []Finding {
	var findings []Finding
	for _, line := range strings.Split(output, "\n") {
		m := mypyLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		rule := m[4]
		if rule == "" {
			rule = "error"
		}
		findings = append(findings, Finding{
			Kind:   "typecheck",
			File:   m[1],
			Line:   m[2],
			Rule:   rule,
			Title:  fmt.Sprintf("mypy %s in %s:%s: %s", rule, m[1], m[2], m[3]),
			Source: "mypy",
		})
	}
	return findings
}

// ParsePytest extracts failed tests from pytest output.
func ParsePytest(output string) []Finding {
	var findings []Finding
	for _, line := range strings.Split(output, "\n") {
		m := pytestLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		findings = append(findings, Finding{
			Kind:   "test",
			File:   m[1],
			Rule:   m[2],
			Title:  fmt.Sprintf("failing test %s::%s", m[1], m[2]),
			Source: "pytest",
		})
	}
	return findings
}

// ParsePipAudit extracts vulnerable dependencies from pip-audit output.
func ParsePipAudit(output string) []Finding {
	var findings []Finding
	for _, line := range strings.Split(output, "\n") {
		m := pipAuditLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		findings = append(findings, Finding{
			Kind:   "deps",
			File:   m[1],
			Rule:   m[3],
			Title:  fmt.Sprintf("%s %s vulnerable: %s", m[1], m[2], m[3]),
			Source: "pip-audit",
		})
	}
	return findings
}

// logParsers maps the log file base names IngestLogsDir understands to
// their parsers.
var logParsers = map[string]func(string) []Finding{
	"flake8.log":    ParseFlake8,
	"mypy.log":      ParseMypy,
	"pytest.log":    ParsePytest,
	"pip_audit.log": ParsePipAudit,
}

// ParseLogsDir reads every recognized log file under dir and returns the
// combined findings. Unrecognized files are ignored; a missing dir is an
// error.
func ParseLogsDir(dir string) ([]Finding, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read logs dir: %w", err)
	}

	var findings []Finding
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parse, ok := logParsers[entry.Name()]
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		findings = append(findings, parse(string(data))...)
	}
	return findings, nil
}

// IngestResult summarizes one ingest run.
type IngestResult struct {
	Found    int `json:"found"`
	Created  int `json:"created"`
	Reopened int `json:"reopened"`
	Existing int `json:"existing"`
}

// IngestLogsDir parses CI logs under dir and files each finding into the
// store via CreateOrReopen. Stable digest ids keep re-runs from multiplying
// items: the same finding always refreshes one item instead of creating
// another. Counts classify each finding by the item's prior state: no prior
// line is created, a closed prior line is reopened, an open one is existing.
func (s *Store) IngestLogsDir(dir, owner string) (*IngestResult, error) {
	findings, err := ParseLogsDir(dir)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{Found: len(findings)}
	for _, f := range findings {
		before, err := s.LatestByID()
		if err != nil {
			return nil, err
		}
		prior, existedBefore := before["T-"+f.Digest()]

		if _, _, err := s.CreateOrReopen(f.Kind, f.File, f.Line, f.Rule, f.Title, f.Source, owner, nil); err != nil {
			return nil, err
		}
		switch {
		case !existedBefore:
			result.Created++
		case prior.Status == StatusDone || prior.Status == StatusBlocked:
			result.Reopened++
		default:
			result.Existing++
		}
	}
	return result, nil
}
