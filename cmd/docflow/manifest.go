package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"docflow/internal/api"
)

// importManifest lists documents to upload in one batch:
//
//	files:
//	  - supplier: ACME
//	    filename: invoice-0042.pdf
//	    artifact: uploads/invoice-0042.pdf
type importManifest struct {
	Files []api.CreateDocumentRequest `yaml:"files"`
}

func loadManifest(path string) (*importManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return parseManifest(data)
}

func parseManifest(data []byte) (*importManifest, error) {
	var manifest importManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(manifest.Files) == 0 {
		return nil, errors.New("manifest lists no files")
	}
	for i, file := range manifest.Files {
		if strings.TrimSpace(file.OriginalFilename) == "" {
			return nil, fmt.Errorf("manifest entry %d: filename is required", i+1)
		}
		if strings.TrimSpace(file.Artifact) == "" {
			manifest.Files[i].Artifact = file.OriginalFilename
		}
	}
	return &manifest, nil
}
