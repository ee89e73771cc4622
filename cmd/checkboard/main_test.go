package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/warp/checkboard/lifecycle"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate", "seed", "changes"}, names)

	changes, _, err := root.Find([]string{"changes"})
	assert.NoError(t, err)
	assert.NotNil(t, changes.Flags().Lookup("days"))
}

func TestPrintChanges(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer

	printChanges(&buf, nil)
	assert.Equal(t, "No changes in window.\n", buf.String())

	buf.Reset()
	printChanges(&buf, []lifecycle.AuditEntry{{
		OccurredAt: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		UserID:     "dispatcher-1",
		EntityType: lifecycle.EntityDriver,
		EntityID:   "d-1",
		Action:     lifecycle.ActionReorder,
		Summary:    "Driver A reordered to position 1 in Local Drivers",
	}})
	out := buf.String()
	assert.Contains(t, out, "dispatcher-1")
	assert.Contains(t, out, "↕ reorder")
	assert.Contains(t, out, "driver/d-1 | Driver A reordered to position 1 in Local Drivers")
}

func TestPrintImportResult(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer

	printImportResult(&buf, lifecycle.ImportResult{DriversCreated: 47, ColumnsSkipped: true})
	assert.Equal(t, "+ drivers: 47 created\n! columns: table not empty, skipped\n", buf.String())
}
