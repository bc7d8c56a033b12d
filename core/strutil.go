package core

// itoa converts an integer to a string without using fmt package
func itoa(n int) string {
	if n < 0 {
		// -(n+1) cannot overflow, even for the smallest int
		return "-" + utoa(uint64(-(n+1))+1)
	}
	return utoa(uint64(n))
}

// utoa converts an unsigned integer to a string
func utoa(n uint64) string {
	if n == 0 {
		return "0"
	}

	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

const hexDigits = "0123456789abcdef"

// hex8 formats a byte as two hex digits
func hex8(v uint8) string {
	return string([]byte{hexDigits[v>>4], hexDigits[v&0x0F]})
}
