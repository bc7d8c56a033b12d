//go:build rp2040 || rp2350

package main

import (
	"machine"
)

// InitUSB configures machine.Serial, which is the USB CDC-ACM port on the
// RP2040 family. The USB descriptors come from the TinyGo runtime.
func InitUSB() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

// USBAvailable returns the number of bytes available to read from USB
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead reads a single byte from USB
func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

// USBWriteBytes writes multiple bytes to USB
func USBWriteBytes(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
