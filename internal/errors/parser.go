package errors

import (
	"regexp"
	"strconv"
	"strings"
)

// ParsedError is a compiler diagnostic reduced to a location and message.
type ParsedError struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Message  string `json:"message"`
	RawError string `json:"raw_error"`
}

type locationPattern struct {
	regex       *regexp.Regexp
	parseFields func(matches []string) (file string, line int, column int)
}

var (
	sassMessagePattern = regexp.MustCompile(`^(?:Error|error):\s*(.+)$`)

	sassLocationPatterns = []locationPattern{
		{
			// dart-sass: "  src/scss/style.scss 3:11  root stylesheet"
			regex: regexp.MustCompile(`^\s*(\S+\.(?:scss|sass|css))\s+(\d+):(\d+)\b`),
			parseFields: func(m []string) (string, int, int) {
				return m[1], atoi(m[2]), atoi(m[3])
			},
		},
		{
			// libsass: "on line 3:11 of src/scss/style.scss"
			regex: regexp.MustCompile(`on line (\d+):(\d+) of (\S+)`),
			parseFields: func(m []string) (string, int, int) {
				return m[3], atoi(m[1]), atoi(m[2])
			},
		},
	}
)

// ParseSassError extracts the first diagnostic from style compiler stderr.
// It returns nil when the output carries no recognizable error line.
func ParseSassError(output string) *ParsedError {
	lines := strings.Split(output, "\n")

	var parsed *ParsedError
	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if parsed == nil {
			if m := sassMessagePattern.FindStringSubmatch(trimmed); m != nil {
				parsed = &ParsedError{Message: strings.TrimSpace(m[1]), RawError: trimmed}
			}
			continue
		}

		for _, pattern := range sassLocationPatterns {
			if m := pattern.regex.FindStringSubmatch(line); m != nil {
				parsed.File, parsed.Line, parsed.Column = pattern.parseFields(m)
				return parsed
			}
		}
	}

	return parsed
}

// CompileErrorFromOutput turns compiler stderr into a PipelineError, keeping
// the raw cause for logging.
func CompileErrorFromOutput(output string, cause error) *PipelineError {
	parsed := ParseSassError(output)
	if parsed == nil {
		return NewCompileError(ErrCodeCompileFailed, "style compilation failed", cause)
	}

	return NewCompileError(ErrCodeCompileFailed, parsed.Message, cause).
		WithLocation(parsed.File, parsed.Line, parsed.Column)
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
