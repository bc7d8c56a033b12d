package lp5024

// Address is the default address with both ADDR pins low.
const Address = 0x28

// BroadcastAddress reaches every LP5024 on the bus.
const BroadcastAddress = 0x3C

// Registers
const (
	RegDeviceConfig0  = 0x00
	RegDeviceConfig1  = 0x01
	RegLEDConfig0     = 0x02
	RegBankBrightness = 0x03
	RegBankAColor     = 0x04
	RegLED0Brightness = 0x07
	RegOut0Color      = 0x0F
	RegReset          = 0x27
)

// DEVICE_CONFIG0 bits
const (
	config0ChipEn = 1 << 6
)

// DEVICE_CONFIG1 bits
const (
	config1LEDGlobalOff = 1 << iota
	config1MaxCurrent35mA
	config1PWMDithering
	config1AutoIncrement
	config1PowerSave
	config1LogScale
)
