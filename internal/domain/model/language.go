package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
)

// Judge0 language ids.
const (
	LanguagePython     = 71
	LanguageJavaScript = 63
	LanguageJava       = 62
	LanguageCpp        = 54
	LanguageC          = 50

	DefaultLanguageID = LanguagePython
)

var languageNames = map[int]string{
	LanguagePython:     "Python 3",
	LanguageJavaScript: "JavaScript",
	LanguageJava:       "Java",
	LanguageCpp:        "C++",
	LanguageC:          "C",
}

// keys are slugs produced by normaliseLanguageName
var languageAliases = map[string]int{
	"python":     LanguagePython,
	"python3":    LanguagePython,
	"python-3":   LanguagePython,
	"py":         LanguagePython,
	"javascript": LanguageJavaScript,
	"js":         LanguageJavaScript,
	"node":       LanguageJavaScript,
	"nodejs":     LanguageJavaScript,
	"node-js":    LanguageJavaScript,
	"java":       LanguageJava,
	"cpp":        LanguageCpp,
	"c":          LanguageC,
}

var languageNameSubstitutions = map[string]string{
	"++": "pp",
	"#":  "sharp",
}

func normaliseLanguageName(name string) string {
	return slug.Make(slug.Substitute(strings.ToLower(strings.TrimSpace(name)), languageNameSubstitutions))
}

type languageRefKind uint8

const (
	languageUnset languageRefKind = iota
	languageByName
	languageByID
)

// LanguageRef identifies a language either by name ("python", "c++") or by Judge0 id.
// The zero value means "not specified".
type LanguageRef struct {
	kind languageRefKind
	name string
	id   int
}

func LanguageByName(name string) LanguageRef {
	if strings.TrimSpace(name) == "" {
		return LanguageRef{}
	}
	return LanguageRef{kind: languageByName, name: name}
}

func LanguageByID(id int) LanguageRef {
	if id <= 0 {
		return LanguageRef{}
	}
	return LanguageRef{kind: languageByID, id: id}
}

func (r LanguageRef) IsSet() bool { return r.kind != languageUnset }

// Lookup resolves r to a known Judge0 language id. ok is false for unset or unmapped refs.
func (r LanguageRef) Lookup() (id int, ok bool) {
	switch r.kind {
	case languageByID:
		_, ok = languageNames[r.id]
		return r.id, ok
	case languageByName:
		id, ok = languageAliases[normaliseLanguageName(r.name)]
		return id, ok
	}
	return 0, false
}

// ID is Lookup with the Python fallback applied.
func (r LanguageRef) ID() int {
	if id, ok := r.Lookup(); ok {
		return id
	}
	return DefaultLanguageID
}

func (r LanguageRef) String() string {
	switch r.kind {
	case languageByName:
		return r.name
	case languageByID:
		return strconv.Itoa(r.id)
	}
	return ""
}

func (r *LanguageRef) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*r = LanguageRef{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		if n, err := strconv.Atoi(strings.TrimSpace(name)); err == nil {
			*r = LanguageByID(n)
			return nil
		}
		*r = LanguageByName(name)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("language must be a name or a numeric id: %w", err)
	}
	*r = LanguageByID(n)
	return nil
}

func (r LanguageRef) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case languageByName:
		return json.Marshal(r.name)
	case languageByID:
		return json.Marshal(r.id)
	}
	return []byte("null"), nil
}

// LanguageName returns a display name for a Judge0 language id.
func LanguageName(id int) string {
	if name, ok := languageNames[id]; ok {
		return name
	}
	return fmt.Sprintf("language %d", id)
}
