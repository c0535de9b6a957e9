// Package validation provides common validation utilities.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/iwvelando/curve-forecast/pkg/constants"
)

// ValidateOutputFormat checks if the output format is one of the supported formats.
func ValidateOutputFormat(format string) error {
	switch format {
	case constants.OutputFormatPretty, constants.OutputFormatCSV, constants.OutputFormatXLSX:
		return nil
	}
	return fmt.Errorf("expected output format of %s, %s or %s, got %s",
		constants.OutputFormatPretty, constants.OutputFormatCSV, constants.OutputFormatXLSX, format)
}

// ValidateOutputTarget checks that format can be written to path. An empty
// path means stdout, which cannot hold a workbook.
func ValidateOutputTarget(format, path string) error {
	if err := ValidateOutputFormat(format); err != nil {
		return err
	}
	path = strings.TrimSpace(path)
	if format != constants.OutputFormatXLSX {
		return nil
	}
	if path == "" {
		return fmt.Errorf("xlsx output requires an output file")
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".xlsx" {
		return fmt.Errorf("xlsx output file should end in .xlsx, got %q", filepath.Base(path))
	}
	return nil
}
