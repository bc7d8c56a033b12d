//go:build rp2040 || rp2350

package main

import (
	"machine"

	"twimngr/targets/machinebus"
)

// NewI2CBus returns the bus controller for I2C0 on its default pins
// (SDA=GP4, SCL=GP5).
func NewI2CBus() *machinebus.Controller {
	i2c := machine.I2C0
	return machinebus.New(i2c, func(frequency uint32) error {
		return i2c.Configure(machine.I2CConfig{
			Frequency: frequency,
			SDA:       machine.I2C0_SDA_PIN,
			SCL:       machine.I2C0_SCL_PIN,
		})
	})
}
