package adxl345

import (
	"encoding/binary"

	"go.viam.com/tapsense/components/board/fake"
	"go.viam.com/tapsense/tap"
)

// restingZ is 1g on the Z axis at the default 10-bit +/- 2g range.
const restingZ = 256

// NewSimulatedDevice returns a fake register file that answers like an ADXL345 lying flat.
func NewSimulatedDevice() *fake.Device {
	dev := fake.NewDevice()
	dev.SetRegister(DevID, expectedDeviceID)
	dev.SetBlock(DataX0, accelBytes(tap.AxisReading{Z: restingZ}))
	dev.ClearOnRead(IntSource)
	return dev
}

// StageTap makes the next INT_SOURCE read report a tap along the dominant axis of delta. With
// second set the chip reports it as the second tap of a double.
func StageTap(dev *fake.Device, delta tap.AxisReading, second bool) {
	dev.SetBlock(DataX0, accelBytes(tap.AxisReading{X: delta.X, Y: delta.Y, Z: restingZ + delta.Z}))

	var status byte
	switch dir, _, _ := tap.ResolveDirection(delta); dir {
	case tap.Left, tap.Right:
		status = tapSourceX
	case tap.Up, tap.Down:
		status = tapSourceY
	default:
		status = tapSourceZ
	}
	dev.SetRegister(ActTapStatus, status)

	source := interruptBitPosition[SingleTap]
	if second {
		source |= interruptBitPosition[DoubleTap]
	}
	dev.SetRegister(IntSource, source)
}

func accelBytes(r tap.AxisReading) []byte {
	out := make([]byte, 6)
	binary.LittleEndian.PutUint16(out[0:2], uint16(int16(r.X)))
	binary.LittleEndian.PutUint16(out[2:4], uint16(int16(r.Y)))
	binary.LittleEndian.PutUint16(out[4:6], uint16(int16(r.Z)))
	return out
}
