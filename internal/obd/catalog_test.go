package obd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalog_IsExhaustive(t *testing.T) {
	c := NewCatalog()

	for _, id := range AllCommandIDs() {
		cmd := c.Get(id)
		assert.Equal(t, id, cmd.ID)
		assert.Equal(t, id.String(), cmd.Name)
		assert.NotEmpty(t, cmd.Bytes, id.String())
		assert.NotNil(t, cmd.Decoder, id.String())
	}
	assert.Len(t, c.All(), int(commandCount))
}

func TestBuildCatalog_RejectsGapsAndDuplicates(t *testing.T) {
	defs := definitions()

	_, err := buildCatalog(defs[1:])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ELM_VERSION has no definition")

	_, err = buildCatalog(append(defs, defs[0]))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ELM_VERSION defined twice")

	broken := append([]Command(nil), defs...)
	broken[2].Decoder = nil
	_, err = buildCatalog(broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENGINE_LOAD has no decoder")
}

func TestCatalog_Lookup(t *testing.T) {
	c := NewCatalog()

	cmd, err := c.Lookup(" fuel_level ")
	require.NoError(t, err)
	assert.Equal(t, CmdFuelLevel, cmd.ID)
	assert.Equal(t, "2129", cmd.Bytes)
	assert.Equal(t, "7C0", cmd.Header)
	assert.Equal(t, 1, cmd.ResponseLen)
	assert.True(t, cmd.Fast)
	assert.Equal(t, ECUAll, cmd.ECU)

	_, err = c.Lookup("FLUX_CAPACITOR")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.True(t, IsConfigurationError(err))
	assert.NotErrorIs(t, err, ErrDecodingFailed)
}

func TestCommand_ModeAndPID(t *testing.T) {
	c := NewCatalog()

	mode, ok := c.Get(CmdRPM).Mode()
	require.True(t, ok)
	assert.Equal(t, byte(0x01), mode)

	pid, ok := c.Get(CmdHVBatteryStatus).PID()
	require.True(t, ok)
	assert.Equal(t, byte(0x98), pid)

	_, ok = c.Get(CmdElmVoltage).Mode()
	assert.False(t, ok)
	assert.True(t, c.Get(CmdElmVoltage).IsAdapterCommand())
}

func TestCommandID_String(t *testing.T) {
	assert.Equal(t, "HV_BATTERY_STATUS", CmdHVBatteryStatus.String())
	assert.Equal(t, "CommandID(99)", CommandID(99).String())
}
