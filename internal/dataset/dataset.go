// Package dataset loads the per-repository dataset configuration described
// in §6: each `<dataset>/<repo>/config.json` declares where to find the PRD,
// UML, and architecture-design documents plus the fixtures the external test
// runner needs (required files, usage examples, a check_tests directory, an
// optional setup script, and the test invocation itself). This is treated
// as a fixed external data format, not operator-tunable YAML, so it is kept
// separate from internal/config.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"genforge/internal/logging"
)

// RepoConfig mirrors one repository's config.json.
type RepoConfig struct {
	PRD                string   `json:"PRD"`
	UML                string   `json:"UML"`
	UMLClass           string   `json:"UML_class"`
	UMLSequence        string   `json:"UML_sequence"`
	ArchitectureDesign string   `json:"architecture_design"`
	RequiredFiles      []string `json:"required_files"`
	UsageExamples      []string `json:"usage_examples"`
	CheckTestsDir      string   `json:"check_tests"`
	SetupScript        string   `json:"setup_script"`
	TestCommand        []string `json:"test_command"`
}

// Repo bundles a loaded config with its resolved document text and the
// directory the config.json itself lives in, so relative fixture paths in
// RequiredFiles/UsageExamples/CheckTestsDir can be resolved against it.
type Repo struct {
	Name     string
	Dir      string
	Config   RepoConfig
	PRD      string
	UMLClass string
	UMLSeq   string
	ArchDoc  string
}

// Load reads <datasetDir>/<repoName>/config.json and the text documents it
// references. When UML_class and UML_sequence are both absent, UML is used
// for both the class and sequence text (some datasets supply a single
// combined diagram document).
func Load(datasetDir, repoName string) (Repo, error) {
	dir := filepath.Join(datasetDir, repoName)
	configPath := filepath.Join(dir, "config.json")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return Repo{}, fmt.Errorf("dataset: reading %s: %w", configPath, err)
	}

	var cfg RepoConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Repo{}, fmt.Errorf("dataset: parsing %s: %w", configPath, err)
	}

	prd, err := readRelative(dir, cfg.PRD)
	if err != nil {
		return Repo{}, err
	}

	umlClassPath, umlSeqPath := cfg.UMLClass, cfg.UMLSequence
	if umlClassPath == "" && umlSeqPath == "" {
		umlClassPath, umlSeqPath = cfg.UML, cfg.UML
	}
	umlClass, err := readRelative(dir, umlClassPath)
	if err != nil {
		return Repo{}, err
	}
	umlSeq, err := readRelative(dir, umlSeqPath)
	if err != nil {
		return Repo{}, err
	}
	archDoc, err := readRelative(dir, cfg.ArchitectureDesign)
	if err != nil {
		return Repo{}, err
	}

	logging.Boot("dataset: loaded repo %s from %s", repoName, dir)
	return Repo{
		Name:     repoName,
		Dir:      dir,
		Config:   cfg,
		PRD:      prd,
		UMLClass: umlClass,
		UMLSeq:   umlSeq,
		ArchDoc:  archDoc,
	}, nil
}

// List enumerates repository names under a dataset directory: every
// subdirectory that contains a config.json.
func List(datasetDir string) ([]string, error) {
	entries, err := os.ReadDir(datasetDir)
	if err != nil {
		return nil, fmt.Errorf("dataset: listing %s: %w", datasetDir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(datasetDir, e.Name(), "config.json")); err == nil {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func readRelative(dir, relPath string) (string, error) {
	if relPath == "" {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Join(dir, relPath))
	if err != nil {
		return "", fmt.Errorf("dataset: reading %s: %w", relPath, err)
	}
	return string(data), nil
}
