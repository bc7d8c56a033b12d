package periphbus

import (
	"errors"
	"syscall"

	"twimngr/core"
)

// classifyErrno follows the i2c-dev fault codes
// (Documentation/i2c/fault-codes.rst).
func classifyErrno(err error) error {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return nil
	}
	switch errno {
	case syscall.ENXIO, syscall.EREMOTEIO:
		return core.ErrBusNACK
	case syscall.EAGAIN:
		return core.ErrBusArbitration
	case syscall.ETIMEDOUT:
		return core.ErrBusTimeout
	case syscall.EBUSY:
		return core.ErrBusBusy
	}
	return nil
}
