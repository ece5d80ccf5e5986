package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"golang-invoice-dedup-service/internal/models"
	"golang-invoice-dedup-service/pkg/errors"
	"golang-invoice-dedup-service/pkg/logger"
)

// scenarioFile is the wrapped document form: a top-level "scenarios" list.
type scenarioFile struct {
	Scenarios []models.Scenario `json:"scenarios" yaml:"scenarios" toml:"scenarios"`
}

// LoadScenarioFile reads scenario definitions from a YAML, TOML or JSON
// file, chosen by extension. YAML and JSON accept either a bare list or a
// document with a "scenarios" key; TOML requires [[scenarios]] tables.
// Unknown keys are rejected. Per-scenario validation is left to the
// detector so one bad definition does not block the others.
func LoadScenarioFile(path string) ([]models.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		code := errors.CodeFileCorrupted
		switch {
		case os.IsNotExist(err):
			code = errors.CodeFileNotFound
		case os.IsPermission(err):
			code = errors.CodeFilePermission
		}
		return nil, errors.FileError(code, path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "scenarios", path, nil).
			WithSuggestion("Define at least one scenario in the file")
	}

	var scenarios []models.Scenario
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		scenarios, err = decodeYAMLScenarios(data)
	case ".toml":
		scenarios, err = decodeTOMLScenarios(data)
	case ".json":
		scenarios, err = decodeJSONScenarios(data)
	default:
		return nil, errors.FileError(errors.CodeUnsupported, path, fmt.Errorf("unsupported scenario file extension %q", ext))
	}
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, 0, "scenarios", ext, err).
			WithSuggestion("Check the file syntax and the scenario field names")
	}

	if len(scenarios) == 0 {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "scenarios", path, nil).
			WithSuggestion("Define at least one scenario in the file")
	}

	logger.WithComponent("scenario_loader").WithFields(logger.Fields{
		"path":      path,
		"scenarios": len(scenarios),
	}).Debug("Loaded scenario definitions")

	return scenarios, nil
}

func decodeYAMLScenarios(data []byte) ([]models.Scenario, error) {
	var probe yaml.Node
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if isYAMLSequence(&probe) {
		var list []models.Scenario
		if err := dec.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var doc scenarioFile
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc.Scenarios, nil
}

func isYAMLSequence(n *yaml.Node) bool {
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	return n.Kind == yaml.SequenceNode
}

func decodeTOMLScenarios(data []byte) ([]models.Scenario, error) {
	var doc scenarioFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc.Scenarios, nil
}

func decodeJSONScenarios(data []byte) ([]models.Scenario, error) {
	trimmed := bytes.TrimSpace(data)

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()

	if trimmed[0] == '[' {
		var list []models.Scenario
		if err := dec.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var doc scenarioFile
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc.Scenarios, nil
}

// SaveScenarioFile writes scenarios in the format implied by the extension.
func SaveScenarioFile(path string, scenarios []models.Scenario) error {
	var (
		data []byte
		err  error
	)
	doc := scenarioFile{Scenarios: scenarios}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(doc)
	case ".toml":
		data, err = toml.Marshal(doc)
	case ".json":
		data, err = json.MarshalIndent(doc, "", "  ")
	default:
		return errors.FileError(errors.CodeUnsupported, path, fmt.Errorf("unsupported scenario file extension %q", ext))
	}
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "encode_scenarios", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return nil
}
