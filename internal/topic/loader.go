package topic

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// ruleFile is the on-disk shape of a keyword table:
//
//	topics:
//	  - topic: Financial Math
//	    keywords: [juros, montante, "prestaç*"]
type ruleFile struct {
	Topics []Rule `yaml:"topics"`
}

// LoadRules reads a keyword table from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topic rules: %w", err)
	}

	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing topic rules %s: %w", path, err)
	}
	if len(f.Topics) == 0 {
		return nil, fmt.Errorf("topic rules %s: no topics", path)
	}
	return f.Topics, nil
}

// LoadClassifier builds a classifier from a YAML file, or the default
// classifier when path is empty.
func LoadClassifier(path string) (*Classifier, error) {
	if path == "" {
		return Default(), nil
	}
	rules, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	c, err := NewClassifier(rules)
	if err != nil {
		return nil, fmt.Errorf("loading topic rules %s: %w", path, err)
	}
	slog.Info("topic rules loaded", "path", path, "topics", len(rules))
	return c, nil
}
