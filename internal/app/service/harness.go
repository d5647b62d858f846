package service

import (
	_ "embed"
	"encoding/json"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/anheplast/curiosmaze/internal/domain/model"
)

var (
	//go:embed harness/python.py
	pythonHelpers string
	//go:embed harness/javascript.js
	javascriptHelpers string
	//go:embed harness/java.java
	javaRunner string
)

// javaTestsSlot is where the harness body goes inside the Java runner's main.
const javaTestsSlot = "/* tests */"

type helperSet struct {
	source string
	// markers: if the harness contains any of them it brings its own helpers.
	markers []string
	// leading: a harness starting with one of these is a complete program.
	leading []string
	// wrap places the harness inside the helper source instead of after it.
	wrap bool
}

var defaultHelpers = map[int]helperSet{
	model.LanguagePython:     {source: pythonHelpers, markers: []string{"def test(", "def run_cases("}},
	model.LanguageJavaScript: {source: javascriptHelpers, markers: []string{"function test(", "function runCases("}},
	model.LanguageJava:       {source: javaRunner, markers: []string{"class TestRunner", "public static void main"}, leading: []string{"public class"}, wrap: true},
}

func (h helperSet) ownedBy(harness string) bool {
	for _, m := range h.markers {
		if strings.Contains(harness, m) {
			return true
		}
	}
	trimmed := strings.TrimSpace(harness)
	for _, l := range h.leading {
		if strings.HasPrefix(trimmed, l) {
			return true
		}
	}
	return false
}

// HarnessSource is test code given either as one source or as a map from
// language id (or name) to source.
type HarnessSource struct {
	Code       string
	ByLanguage map[string]string
}

func (h HarnessSource) IsEmpty() bool {
	if strings.TrimSpace(h.Code) != "" {
		return false
	}
	for _, src := range h.ByLanguage {
		if strings.TrimSpace(src) != "" {
			return false
		}
	}
	return true
}

func (h *HarnessSource) UnmarshalJSON(b []byte) error {
	var code string
	if err := json.Unmarshal(b, &code); err == nil {
		*h = HarnessSource{Code: code}
		return nil
	}
	var byLang map[string]string
	if err := json.Unmarshal(b, &byLang); err != nil {
		return err
	}
	*h = HarnessSource{ByLanguage: byLang}
	return nil
}

func (h HarnessSource) MarshalJSON() ([]byte, error) {
	if h.ByLanguage != nil {
		return json.Marshal(h.ByLanguage)
	}
	return json.Marshal(h.Code)
}

// For picks the test code for languageID: its own entry, then Python's, then
// the first non-empty entry in key order. Keys may be ids or language names.
func (h HarnessSource) For(languageID int) string {
	if h.ByLanguage == nil {
		return h.Code
	}
	byID := make(map[int]string, len(h.ByLanguage))
	for key, src := range h.ByLanguage {
		if strings.TrimSpace(src) == "" {
			continue
		}
		if id, ok := harnessKeyID(key); ok {
			byID[id] = src
		}
	}
	if src, ok := byID[languageID]; ok {
		return src
	}
	if src, ok := byID[model.LanguagePython]; ok {
		return src
	}
	for _, key := range slices.Sorted(maps.Keys(h.ByLanguage)) {
		if strings.TrimSpace(h.ByLanguage[key]) != "" {
			return h.ByLanguage[key]
		}
	}
	return ""
}

func harnessKeyID(key string) (int, bool) {
	if id, err := strconv.Atoi(key); err == nil {
		return id, true
	}
	return model.LanguageByName(key).Lookup()
}

// withHelpers adds the default helpers when the harness does not define its own.
// Java harnesses are statements, so they are wrapped in the runner's main method.
func withHelpers(harness string, languageID int) string {
	set, ok := defaultHelpers[languageID]
	if !ok || set.ownedBy(harness) {
		return harness
	}
	if set.wrap {
		head, tail, _ := strings.Cut(set.source, javaTestsSlot)
		return head + "\n" + harness + "\n" + tail
	}
	return set.source + "\n\n" + harness
}

// buildTestProgram joins the student code and the harness into one source file.
func buildTestProgram(code, harness string, languageID int) string {
	return code + "\n\n" + withHelpers(harness, languageID)
}

var (
	summaryPattern   = regexp.MustCompile(`(?i)(?:Result|Resultado):\s*(\d+)\s*/\s*(\d+)\s*(?:tests\s+passed|pruebas\s+pasadas)`)
	correctPattern   = regexp.MustCompile(`\bCORRECTO?\b`)
	incorrectPattern = regexp.MustCompile(`\b(?:INCORRECTO?|ERROR)\b`)
)

// TestTally is what a harness run printed.
type TestTally struct {
	Passing int
	Total   int
}

func (t TestTally) Failing() int { return t.Total - t.Passing }

func (t TestTally) AllPassed() bool { return t.Passing > 0 && t.Passing == t.Total }

// ParseTestOutput reads the last summary line, or counts the per-case markers when there is none.
// The helpers print a closing summary covering every check, so the last line wins.
func ParseTestOutput(stdout string) TestTally {
	if all := summaryPattern.FindAllStringSubmatch(stdout, -1); len(all) > 0 {
		m := all[len(all)-1]
		passing, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		return TestTally{Passing: passing, Total: total}
	}
	passing := len(correctPattern.FindAllString(stdout, -1))
	failing := len(incorrectPattern.FindAllString(stdout, -1))
	return TestTally{Passing: passing, Total: max(passing+failing, 1)}
}
