package render

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteExport writes e under outputDir using its filename and returns the path.
func WriteExport(e Export, outputDir string) (string, error) {
	if outputDir == "" {
		outputDir = "." // Current directory by default
	}

	err := os.MkdirAll(outputDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	filePath := filepath.Join(outputDir, e.Filename)

	err = os.WriteFile(filePath, e.Data, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to write export file %s: %w", filePath, err)
	}

	return filePath, nil
}
