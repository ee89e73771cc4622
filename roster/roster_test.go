package roster_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/checkboard/lifecycle"
	"github.com/warp/checkboard/lifecycle/store"
	"github.com/warp/checkboard/roster"
)

func TestDefault_MirrorsSeed(t *testing.T) {
	f, err := roster.Default()
	require.NoError(t, err)

	drivers, columns := f.Counts()
	assert.Equal(t, 47, drivers)
	assert.Equal(t, 15, columns)

	assert.Len(t, f.Drivers["New Drivers"], 9)
	assert.Len(t, f.Drivers["Local Drivers"], 7)
	assert.Len(t, f.Columns["Morning"], 6)
	assert.Len(t, f.Columns["Midday"], 4)
	assert.Len(t, f.Columns["Afternoon"], 5)

	set := f.ImportSet()
	require.Len(t, set.Columns, 15)
	assert.Equal(t, "truck", set.Columns[0].SystemName)
	assert.Equal(t, lifecycle.BlockMorning, set.Columns[0].TimeBlock)
	assert.Equal(t, "fn_verbal", set.Columns[14].SystemName)

	assert.Equal(t, "Clay, Zachary", set.Drivers[0].Name)
	require.NotNil(t, set.Drivers[0].TruckNumber)
	assert.Equal(t, "169", *set.Drivers[0].TruckNumber)
}

func TestParse_DisplayOrderAndOptionalTruck(t *testing.T) {
	// GIVEN: Sections written out of display order, one driver without a truck
	// WHEN: Flattening to an import set
	// THEN: Groups and blocks follow the fixed order and the missing truck is nil

	f, err := roster.Parse(strings.NewReader(`
drivers:
  Experienced Drivers:
    - {name: "Wood, Karl", truck: "178"}
  New Drivers:
    - {name: "Taylor, James"}
columns:
  Afternoon:
    - {systemName: shipper, displayName: Shipper}
  Morning:
    - {systemName: truck, displayName: Truck, instructions: Verify truck}
`))
	require.NoError(t, err)

	set := f.ImportSet()
	require.Len(t, set.Drivers, 2)
	assert.Equal(t, lifecycle.GroupNew, set.Drivers[0].Group)
	assert.Nil(t, set.Drivers[0].TruckNumber)
	assert.Equal(t, lifecycle.GroupExperienced, set.Drivers[1].Group)

	require.Len(t, set.Columns, 2)
	assert.Equal(t, "truck", set.Columns[0].SystemName)
	assert.Equal(t, "Verify truck", set.Columns[0].InstructionText)
	assert.Equal(t, lifecycle.BlockAfternoon, set.Columns[1].TimeBlock)
}

func TestParse_Rejects(t *testing.T) {
	_, err := roster.Parse(strings.NewReader("drivers:\n  Night Shift:\n    - {name: X}\n"))
	assert.ErrorContains(t, err, `drivers."Night Shift"`)

	_, err = roster.Parse(strings.NewReader("columns:\n  Evening: []\n"))
	assert.ErrorContains(t, err, `columns."Evening"`)

	_, err = roster.Parse(strings.NewReader("drivers:\n  New Drivers:\n    - {name: X, shoeSize: 11}\n"))
	assert.Error(t, err)
}

func TestParse_EmptyDocument(t *testing.T) {
	f, err := roster.Parse(strings.NewReader(""))
	require.NoError(t, err)
	d, c := f.Counts()
	assert.Zero(t, d)
	assert.Zero(t, c)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte("drivers:\n  Local Drivers:\n    - {name: Kelly Olson, truck: \"147\"}\n"), 0o600))

	f, err := roster.Load(path)
	require.NoError(t, err)
	d, _ := f.Counts()
	assert.Equal(t, 1, d)

	f, err = roster.Load("")
	require.NoError(t, err)
	d, _ = f.Counts()
	assert.Equal(t, 47, d)

	_, err = roster.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefault_ImportsCleanly(t *testing.T) {
	// GIVEN: An empty store
	// WHEN: Importing the built-in roster twice
	// THEN: Everything is created once, the second run skips both tables

	f, err := roster.Default()
	require.NoError(t, err)

	e := lifecycle.NewEngine(store.NewMemory(), lifecycle.WithClock(&lifecycle.FixedClock{T: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}))
	ctx := context.Background()

	res, err := e.Import(ctx, f.ImportSet(), "seed")
	require.NoError(t, err)
	assert.Equal(t, 47, res.DriversCreated)
	assert.Equal(t, 15, res.ColumnsCreated)

	res, err = e.Import(ctx, f.ImportSet(), "seed")
	require.NoError(t, err)
	assert.True(t, res.DriversSkipped)
	assert.True(t, res.ColumnsSkipped)

	cols, err := e.ListCheckColumns(ctx)
	require.NoError(t, err)
	for _, c := range cols {
		assert.Equal(t, lifecycle.ColumnStandard, c.ColumnType, c.SystemName)
	}
}
