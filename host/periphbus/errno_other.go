//go:build !linux

package periphbus

func classifyErrno(err error) error {
	return nil
}
