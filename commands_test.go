package minidrive

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestCommandTableIntegrity(t *testing.T) {
	names := map[string]bool{}
	stops := map[string]int{}
	classes := map[string]bool{}

	for _, c := range commandTable {
		assert.False(t, names[c.Name], "duplicate command %s", c.Name)
		names[c.Name] = true

		_, err := ParseID(c.CANID)
		assert.NoError(t, err, c.Name)

		data, err := ParseData(c.Data)
		assert.NoError(t, err, c.Name)
		assert.Len(t, data, 8, c.Name)

		assert.Contains(t, []FrameType{FrameStandard, FrameExtended}, c.Type, c.Name)

		if c.Class != "" {
			classes[c.Class] = true
			if c.Stop {
				stops[c.Class]++
			}
		} else {
			assert.False(t, c.Stop, "%s: stop entry without a class", c.Name)
		}
	}

	// every actuator class has exactly one stop entry
	for class := range classes {
		assert.Equal(t, 1, stops[class], class)
	}
}

func TestLookupCommand(t *testing.T) {
	c, ok := LookupCommand("door_open")
	assert.True(t, ok)
	assert.Equal(t, "door", c.Class)
	assert.False(t, c.Stop)

	_, ok = LookupCommand("warp_drive")
	assert.False(t, ok)
}

func TestClassStop(t *testing.T) {
	c, ok := classStop("door")
	assert.True(t, ok)
	assert.Equal(t, "door_stop", c.Name)
	assert.True(t, c.Stop)

	c, ok = classStop("suspension")
	assert.True(t, ok)
	assert.Equal(t, "suspension_stop", c.Name)

	_, ok = classStop("spoiler")
	assert.False(t, ok)
}

func TestCommandsReturnsCopy(t *testing.T) {
	cmds := Commands()
	assert.Equal(t, len(commandTable), len(cmds))
	cmds[0].Name = "mangled"
	assert.NotEqual(t, "mangled", commandTable[0].Name)
}
