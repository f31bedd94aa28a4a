package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"sbahn-canon/internal/timetable"
)

// CatalogFile is the YAML layout of a line catalog:
//
//	lines: [S1, S2]
//	denylist: [ICE, RE]
//	stations:
//	  "8000096": Stuttgart Hbf
type CatalogFile struct {
	Lines    []string          `yaml:"lines" validate:"omitempty,dive,required"`
	Denylist []string          `yaml:"denylist"`
	Stations map[string]string `yaml:"stations" validate:"omitempty,dive,keys,required,endkeys,required"`
}

// LoadCatalog reads a catalog from path. An empty path yields the built-in
// catalog; omitted sections fall back to the built-in lines and denylist.
func LoadCatalog(path string) (*timetable.Catalog, error) {
	if path == "" {
		return timetable.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*timetable.Catalog, error) {
	var f CatalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	if len(f.Lines) == 0 {
		f.Lines = timetable.DefaultLines
	}
	if f.Denylist == nil {
		f.Denylist = timetable.DefaultDenylist
	}
	return timetable.NewCatalog(f.Lines, f.Denylist, f.Stations), nil
}
