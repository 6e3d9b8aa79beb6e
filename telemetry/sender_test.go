package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildPacket(t *testing.T) {
	packet := BuildPacket(7, 1500*time.Millisecond, 2.5, 0.0125,
		"BIAS_V=1.6500,SCALE=200.00", "ENABLED=YES")

	assert.Equal(t,
		"SEQ=7,TIME=1500,CURRENT=2.500000,VOLTAGE_RMS=0.012500,POWER=300.00,"+
			"CAL_STATUS=BIAS_V=1.6500,SCALE=200.00,AUTO_CAL=ENABLED=YES",
		packet)
}

func TestBuildPacketPowerAssumesMains(t *testing.T) {
	// The power figure is amps at the assumed 120V mains.
	packet := BuildPacket(0, 0, 1.0, 0.005, "", "")
	assert.Contains(t, packet, "POWER=120.00")
}

func TestBuildPacketEmptyAutoCal(t *testing.T) {
	packet := BuildPacket(3, time.Second, 0, 0, "X", "")
	assert.Contains(t, packet, "AUTO_CAL=")
	assert.Contains(t, packet, "SEQ=3,TIME=1000")
}
