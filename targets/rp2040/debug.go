//go:build rp2040 || rp2350

package main

import (
	"machine"
)

var (
	debugUART    *machine.UART
	debugEnabled bool
)

// InitDebugUART brings up UART1 on GP8 (TX) and GP9 (RX) at 115200 baud.
// USB carries bridge frames only, so diagnostics go here.
func InitDebugUART() {
	debugUART = machine.UART1

	err := debugUART.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO8,
		RX:       machine.GPIO9,
	})
	if err != nil {
		debugEnabled = false
		return
	}
	debugEnabled = true

	DebugPrintln("=== I2C bridge debug UART ===")
}

// DebugPrintln writes a string to the debug UART with newline
func DebugPrintln(s string) {
	if !debugEnabled || debugUART == nil {
		return
	}
	debugUART.Write([]byte(s))
	debugUART.Write([]byte("\r\n"))
}
