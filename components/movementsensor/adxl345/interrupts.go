package adxl345

// addresses relevant to taps.
const (
	DevID        byte = 0x00
	ThreshTap    byte = 0x1D
	Dur          byte = 0x21
	Latent       byte = 0x22
	Window       byte = 0x23
	TapAxes      byte = 0x2A
	ActTapStatus byte = 0x2B
	PowerCtl     byte = 0x2D
	IntEnable    byte = 0x2E
	IntMap       byte = 0x2F
	IntSource    byte = 0x30
	DataX0       byte = 0x32
)

// types of interrupts.
const (
	DataReady  string = "DATA_READY"
	SingleTap  string = "SINGLE_TAP"
	DoubleTap  string = "DOUBLE_TAP"
	Activity   string = "Activity"
	Inactivity string = "Inactivity"
	Freefall   string = "FREE_FALL"
	Watermark  string = "WATERMARK"
	Overrun    string = "OVERRUN"
)

var interruptBitPosition = map[string]byte{
	DataReady:  1 << 7,
	SingleTap:  1 << 6,
	DoubleTap:  1 << 5,
	Activity:   1 << 4,
	Inactivity: 1 << 3,
	Freefall:   1 << 2,
	Watermark:  1 << 1,
	Overrun:    1 << 0,
}

// Axis bits shared by TAP_AXES and ACT_TAP_STATUS.
const (
	tapSourceZ byte = 1 << 0
	tapSourceY byte = 1 << 1
	tapSourceX byte = 1 << 2
)
