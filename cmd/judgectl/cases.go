package main

import (
	"fmt"
	"os"

	"github.com/anheplast/curiosmaze/internal/domain/model"

	"github.com/pelletier/go-toml/v2"
)

// caseSpec is a single example in the cases file
type caseSpec struct {
	In  string `toml:"in"`
	Out string `toml:"out"`
}

type casesFile struct {
	Language string     `toml:"language"`
	Cases    []caseSpec `toml:"cases"`
}

// loadCases reads a TOML file of [[cases]] blocks. The optional top-level
// language is used when no --lang flag is given.
func loadCases(path string) ([]model.Example, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read cases file: %w", err)
	}
	var root casesFile
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, "", fmt.Errorf("failed to parse TOML: %w", err)
	}
	if len(root.Cases) == 0 {
		return nil, "", fmt.Errorf("%s declares no [[cases]]", path)
	}
	examples := make([]model.Example, len(root.Cases))
	for i, c := range root.Cases {
		examples[i] = model.Example{Input: c.In, ExpectedOutput: c.Out}
	}
	return examples, root.Language, nil
}
