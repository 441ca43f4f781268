package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Auditor writes one JSON file per entry into AuditDir.
type Auditor struct {
	AuditDir string
}

func NewAuditor(auditDir string) *Auditor {
	return &Auditor{
		AuditDir: auditDir,
	}
}

// SaveJSON saves the provided data as indented JSON to <name>.json and
// returns the file name.
func (a *Auditor) SaveJSON(name string, data any) (string, error) {
	if err := a.ensureAuditDir(); err != nil {
		return "", fmt.Errorf("failed to ensure audit directory: %w", err)
	}

	filename := name + ".json"
	path := filepath.Join(a.AuditDir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal data to JSON: %w", err)
	}

	// O_EXCL keeps an existing entry from being overwritten.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create audit file: %w", err)
	}
	if _, err := f.Write(jsonData); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write audit file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write audit file: %w", err)
	}
	return filename, nil
}

// LoadJSON decodes every *.json file of the audit directory with decode.
// A missing directory holds no entries.
func (a *Auditor) LoadJSON(decode func(filename string, data []byte) error) error {
	matches, err := filepath.Glob(filepath.Join(a.AuditDir, "*.json"))
	if err != nil {
		return err
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read audit file: %w", err)
		}
		if err := decode(filepath.Base(path), data); err != nil {
			return err
		}
	}
	return nil
}

// ensureAuditDir creates the audit directory if it doesn't exist
func (a *Auditor) ensureAuditDir() error {
	if _, err := os.Stat(a.AuditDir); os.IsNotExist(err) {
		if err := os.MkdirAll(a.AuditDir, 0o755); err != nil {
			return fmt.Errorf("failed to create audit directory: %w", err)
		}
	}
	return nil
}
