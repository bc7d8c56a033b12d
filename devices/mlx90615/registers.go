package mlx90615

// Address is the factory default I2C address.
const Address = 0x5B

// Command flags; the low bits select the EEPROM or RAM word.
const (
	cmdEEPROM = 0x10
	cmdRAM    = 0x20
)

const (
	RegID0  = cmdEEPROM | 0x0E // Chip ID word
	RegTAmb = cmdRAM | 0x06    // Ambient temperature
	RegTObj = cmdRAM | 0x07    // Object temperature

	cmdEnterSleep    = 0xC6
	cmdEnterSleepPEC = 0x6D // SMBus PEC of the sleep command

	// ID0 is the expected content of RegID0.
	ID0 = 0xCBE0
)
