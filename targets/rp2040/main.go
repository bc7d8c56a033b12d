//go:build rp2040 || rp2350

// Command rp2040 is USB-serial I2C bridge firmware. Request frames from the
// host run on I2C0 through the transaction manager; replies go back over
// the same USB CDC port.
package main

import (
	"machine"
	"time"

	"twimngr/core"
	"twimngr/protocol"
	"twimngr/targets/bridgefw"
)

const (
	queueSize     = 8
	scratchBlocks = 8
	i2cFrequency  = 400000

	// Replies waiting for the USB writer
	outgoingDepth = 16
)

var (
	scanner  *protocol.FrameScanner
	server   *bridgefw.Server
	mngr     *core.Manager
	outgoing chan []byte

	// Debug counters
	messagesReceived         uint32
	messagesSent             uint32
	msgerrors                uint32
	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// Disable the watchdog so a previous session's state does not persist
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	InitDebugUART()
	core.SetDebugWriter(DebugPrintln)
	core.SetDebugEnabled(true)

	mngr = core.New(NewI2CBus(), queueSize)
	err = mngr.Init(core.Config{
		Bus:       core.BusConfig{Frequency: i2cFrequency},
		Allocator: core.NewBlockPool(scratchBlocks, bridgefw.ScratchSize),
	})
	if err != nil {
		DebugPrintln("[BRIDGE] I2C init failed: " + err.Error())
		for {
			ledBlink(3)
		}
	}

	outgoing = make(chan []byte, outgoingDepth)
	scanner = protocol.NewFrameScanner()
	server = bridgefw.New(mngr, func(frame []byte) {
		select {
		case outgoing <- frame:
		default:
			// Host stopped reading; it will time the request out
			msgerrors++
		}
	})

	go usbReaderLoop()

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					DebugPrintln("[BRIDGE] recovered from panic")
					mngr.DumpTrace(DebugPrintln)
				}
			}()

			select {
			case frame := <-outgoing:
				writeUSB(frame)
				messagesSent++
			default:
			}
		}()

		// Yield to other goroutines
		time.Sleep(10 * time.Microsecond)
	}
}

// usbReaderLoop feeds USB data through the frame scanner and hands every
// complete request to the server.
func usbReaderLoop() {
	// Recover from panics to prevent a firmware crash
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			// Restart the reader loop
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	var buf [64]byte
	for {
		n := USBAvailable()
		if n == 0 {
			// Yield to avoid a busy loop
			time.Sleep(100 * time.Microsecond)
			continue
		}
		if n > len(buf) {
			n = len(buf)
		}
		for i := 0; i < n; i++ {
			b, err := USBRead()
			if err != nil {
				msgerrors++
				n = i
				break
			}
			buf[i] = b
		}

		if usbWasDisconnected {
			// Fresh connection: drop whatever the last session left behind
			usbWasDisconnected = false
			scanner = protocol.NewFrameScanner()
			consecutiveWriteFailures = 0
		}

		scanner.Write(buf[:n])
		for {
			frame, ok := scanner.Next()
			if !ok {
				break
			}
			messagesReceived++
			server.Handle(frame)
		}
	}
}

// writeUSB writes one reply frame, handling partial writes.
func writeUSB(frame []byte) {
	written := 0
	for written < len(frame) {
		n, err := USBWriteBytes(frame[written:])
		if err != nil || n == 0 {
			// Write error or no progress - likely disconnect
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				drainOutgoing()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
}

// drainOutgoing discards stale replies after a disconnect.
func drainOutgoing() {
	for {
		select {
		case <-outgoing:
		default:
			return
		}
	}
}

// ledBlink blinks the LED a specific number of times for diagnostics
func ledBlink(count int) {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for i := 0; i < count; i++ {
		led.High()
		time.Sleep(150 * time.Millisecond)
		led.Low()
		time.Sleep(150 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond) // Pause after blink sequence
}
