// Package validation provides safety checks for file paths and user input.
// It includes protection against path traversal and validation of file system permissions.
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const writeTestName = ".unmeiori_write_test"

// ValidateOutputPath validates an output path for security and accessibility
// Returns error if path is invalid, contains path traversal attempts, or is not writable
func ValidateOutputPath(outputPath string) error {
	if outputPath == "" {
		return fmt.Errorf("output path cannot be empty")
	}

	// Check for path traversal attempts before cleaning hides them
	if hasTraversal(outputPath) {
		return fmt.Errorf("path traversal detected in output path: %s", outputPath)
	}

	absPath, err := filepath.Abs(filepath.Clean(outputPath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	return ValidateWritableDir(filepath.Dir(absPath))
}

// ValidateWritableDir checks that dir exists, is a directory and accepts new files
func ValidateWritableDir(dir string) error {
	dirInfo, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("output directory does not exist: %s", dir)
		}
		return fmt.Errorf("failed to access output directory: %w", err)
	}

	if !dirInfo.IsDir() {
		return fmt.Errorf("output path parent is not a directory: %s", dir)
	}

	// Check if directory is writable by attempting to create a temp file
	testFile := filepath.Join(dir, writeTestName)
	f, err := os.OpenFile(testFile, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("output directory is not writable: %s: %w", dir, err)
	}
	f.Close()
	os.Remove(testFile)

	return nil
}

// ValidateInputPath validates an input path (config file or asset directory)
// Returns error if path doesn't exist or is not accessible
func ValidateInputPath(inputPath string, mustBeDir bool) error {
	if inputPath == "" {
		return fmt.Errorf("input path cannot be empty")
	}

	cleanPath := filepath.Clean(inputPath)

	// Relative paths must stay below the working directory
	if !filepath.IsAbs(inputPath) && hasTraversal(inputPath) {
		return fmt.Errorf("potentially unsafe path detected: %s", inputPath)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input path does not exist: %s", cleanPath)
		}
		return fmt.Errorf("failed to access input path: %w", err)
	}

	if mustBeDir && !info.IsDir() {
		return fmt.Errorf("input path must be a directory: %s", cleanPath)
	}
	if !mustBeDir && info.IsDir() {
		return fmt.Errorf("input path must be a file: %s", cleanPath)
	}

	return nil
}

// ValidateFileName accepts a bare file name that is safe to join onto a storage directory
func ValidateFileName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("file name cannot be empty")
	case name == "." || name == "..":
		return fmt.Errorf("invalid file name: %q", name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("file name must not contain path separators: %q", name)
	}
	return nil
}

func hasTraversal(p string) bool {
	for _, part := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}
