package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cloudx-io/scionauction/oracleapi"
)

// DefaultPCRConfigPath returns the pcrs.json shipped next to this package.
func DefaultPCRConfigPath() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "pcrs.json")
}

// LoadPCRsFromFile loads known oracle image measurements from a JSON file.
func LoadPCRsFromFile(path string) ([]PCRSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCR config file: %w", err)
	}

	var config PCRConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse PCR config: %w", err)
	}
	if len(config.PCRSets) == 0 {
		return nil, fmt.Errorf("no PCR sets found in config file")
	}
	return config.PCRSets, nil
}

// ValidatePCRs reports whether pcrs match one of knownSets and the index of the
// match, or -1.
func ValidatePCRs(pcrs oracleapi.PCRs, knownSets []PCRSet) (bool, int) {
	for i, known := range knownSets {
		if pcrs.ImageFileHash == known.PCR0 &&
			pcrs.KernelHash == known.PCR1 &&
			pcrs.ApplicationHash == known.PCR2 {
			return true, i
		}
	}
	return false, -1
}
