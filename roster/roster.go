/*
Package roster reads the YAML roster that seeds drivers and standard columns.

FORMAT:
  drivers:
    New Drivers:
      - {name: "Clay, Zachary", truck: "169"}
  columns:
    Morning:
      - systemName: truck
        displayName: Truck
        instructions: Verify truck is ready for the day

  Group and time block keys must be the fixed enumerations. Entries keep
  file order, which becomes sortOrder 1..N within each scope on import.

SEE ALSO:
  - lifecycle/import.go: Engine.Import, which consumes ImportSet
*/
package roster

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/warp/checkboard/lifecycle"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultRoster []byte

// File is the decoded roster document.
type File struct {
	Drivers map[string][]Driver `yaml:"drivers"`
	Columns map[string][]Column `yaml:"columns"`
}

// Driver is one driver entry.
type Driver struct {
	Name  string `yaml:"name"`
	Truck string `yaml:"truck,omitempty"`
}

// Column is one standard column entry.
type Column struct {
	SystemName   string `yaml:"systemName"`
	DisplayName  string `yaml:"displayName"`
	Instructions string `yaml:"instructions,omitempty"`
}

// Default returns the built-in roster.
func Default() (*File, error) {
	return Parse(bytes.NewReader(defaultRoster))
}

// Load reads a roster from path. An empty path means the built-in roster.
func Load(path string) (*File, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a roster. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}
	if err := f.checkKeys(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) checkKeys() error {
	var bad []string
	for k := range f.Drivers {
		if !lifecycle.DriverGroup(k).Valid() {
			bad = append(bad, fmt.Sprintf("drivers.%q", k))
		}
	}
	for k := range f.Columns {
		if !lifecycle.TimeBlock(k).Valid() {
			bad = append(bad, fmt.Sprintf("columns.%q", k))
		}
	}
	if len(bad) > 0 {
		slices.Sort(bad)
		return fmt.Errorf("roster has unknown sections: %s", strings.Join(bad, ", "))
	}
	return nil
}

// ImportSet flattens the roster in display order: groups and blocks by
// their fixed order, entries by file order.
func (f *File) ImportSet() lifecycle.ImportSet {
	var set lifecycle.ImportSet
	for _, g := range lifecycle.AllDriverGroups {
		for _, d := range f.Drivers[string(g)] {
			var truck *string
			if t := strings.TrimSpace(d.Truck); t != "" {
				truck = &t
			}
			set.Drivers = append(set.Drivers, lifecycle.ImportDriver{Name: d.Name, TruckNumber: truck, Group: g})
		}
	}
	for _, b := range lifecycle.AllTimeBlocks {
		for _, c := range f.Columns[string(b)] {
			set.Columns = append(set.Columns, lifecycle.ImportColumn{
				SystemName:      c.SystemName,
				DisplayName:     c.DisplayName,
				TimeBlock:       b,
				InstructionText: c.Instructions,
			})
		}
	}
	return set
}

// Counts returns the total number of driver and column entries.
func (f *File) Counts() (drivers, columns int) {
	for _, ds := range f.Drivers {
		drivers += len(ds)
	}
	for _, cs := range f.Columns {
		columns += len(cs)
	}
	return drivers, columns
}
