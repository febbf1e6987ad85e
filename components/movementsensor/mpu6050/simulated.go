package mpu6050

import (
	"encoding/binary"

	"go.viam.com/tapsense/components/board/fake"
	"go.viam.com/tapsense/tap"
)

// restingZ is 1g on the Z axis at +/- 2g.
const restingZ = 16384

// NewSimulatedDevice returns a fake register file that answers like an MPU-6050 lying flat.
func NewSimulatedDevice() *fake.Device {
	dev := fake.NewDevice()
	dev.SetRegister(RegWhoAmI, defaultAddress)
	dev.SetRegister(RegPowerMgmt1, sleepBit)
	dev.SetBlock(RegAccelXOutH, accelBytes(tap.AxisReading{Z: restingZ}))
	dev.ClearOnRead(RegIntStatus)
	return dev
}

// StageTap makes the next INT_STATUS read report motion with delta applied to the resting
// acceleration.
func StageTap(dev *fake.Device, delta tap.AxisReading) {
	rest := tap.AxisReading{Z: restingZ}
	dev.SetBlock(RegAccelXOutH, accelBytes(tap.AxisReading{
		X: rest.X + delta.X,
		Y: rest.Y + delta.Y,
		Z: rest.Z + delta.Z,
	}))
	dev.SetRegister(RegIntStatus, motionInterrupt)
}

func accelBytes(r tap.AxisReading) []byte {
	out := make([]byte, 6)
	binary.BigEndian.PutUint16(out[0:2], uint16(int16(r.X)))
	binary.BigEndian.PutUint16(out[2:4], uint16(int16(r.Y)))
	binary.BigEndian.PutUint16(out[4:6], uint16(int16(r.Z)))
	return out
}
