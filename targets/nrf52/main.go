//go:build nrf52840

// Command nrf52 is firmware for an nRF52840 board with an MLX90615 infrared
// thermometer and an LP5024 LED driver sharing one TWI bus. The object
// temperature is sampled once a second and shown as a blue to red color.
package main

import (
	"machine"
	"time"

	"twimngr/core"
	"twimngr/devices/lp5024"
	"twimngr/devices/mlx90615"
	"twimngr/targets/machinebus"
)

const (
	queueSize    = 8
	twiFrequency = 100000 // The MLX90615 SMBus interface tops out at 100kHz

	// Color range in whole degrees
	coldC = 20
	hotC  = 40

	samplePeriod = time.Second
)

var (
	mngr  *core.Manager
	leds  *lp5024.Device
	temps = make(chan int8, 4)

	sampleErrors uint32
)

func main() {
	core.SetDebugWriter(func(s string) {
		machine.Serial.Write([]byte(s))
		machine.Serial.Write([]byte("\r\n"))
	})
	core.SetDebugEnabled(true)

	twi := machine.I2C0
	bus := machinebus.New(twi, func(frequency uint32) error {
		return twi.Configure(machine.I2CConfig{
			Frequency: frequency,
			SDA:       machine.SDA_PIN,
			SCL:       machine.SCL_PIN,
		})
	})

	mngr = core.New(bus, queueSize)
	if err := mngr.Init(core.Config{Bus: core.BusConfig{Frequency: twiFrequency}}); err != nil {
		halt("[TWI] Init failed: " + err.Error())
	}

	sensor := mlx90615.New(mngr)
	sensor.Configure(mlx90615.Config{})
	if err := sensor.Init(onSensorEvent); err != nil {
		halt("[MLX90615] Init failed: " + err.Error())
	}

	leds = lp5024.New(mngr, lp5024.Address)
	cfg := lp5024.DefaultConfig()
	cfg.LEDConfig0 = 0xFF // Every module follows the bank color
	if err := leds.Init(cfg); err != nil {
		halt("[LP5024] Init failed: " + err.Error())
	}

	ticker := time.NewTicker(samplePeriod)
	for {
		select {
		case <-ticker.C:
			if err := sensor.ReadObjectInt8(); err != nil {
				// Queue full: the bus is behind, skip this sample
				sampleErrors++
			}
		case t := <-temps:
			if err := leds.SetBankColor(colorFor(t)); err != nil {
				sampleErrors++
			}
		}
	}
}

// onSensorEvent runs in the completion context; it only forwards.
func onSensorEvent(evt *mlx90615.Event) {
	switch evt.Type {
	case mlx90615.EvtObjTempInt8Ready:
		select {
		case temps <- evt.Int8Temp:
		default:
		}
	case mlx90615.EvtError:
		sampleErrors++
	}
}

// colorFor maps coldC..hotC linearly from blue to red.
func colorFor(t int8) lp5024.RGB {
	switch {
	case t <= coldC:
		return lp5024.RGB{Blue: 0xFF}
	case t >= hotC:
		return lp5024.RGB{Red: 0xFF}
	}
	red := uint8(int(t-coldC) * 0xFF / (hotC - coldC))
	return lp5024.RGB{Red: red, Blue: 0xFF - red}
}

func halt(msg string) {
	for {
		core.DebugPrintln(msg)
		mngr.DumpTrace(core.DebugPrintln)
		time.Sleep(5 * time.Second)
	}
}
