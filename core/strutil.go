package core

// itoa converts an integer to a string without using fmt package
// This is a lightweight alternative for embedded systems
func itoa(n int) string {
	if n < 0 {
		return "-" + utoa64(uint64(-n))
	}
	return utoa64(uint64(n))
}

// utoa converts an unsigned integer to a string
func utoa(n uint32) string {
	return utoa64(uint64(n))
}

// utoa64 converts a 64-bit unsigned integer to a string
func utoa64(n uint64) string {
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

// hex8 formats a byte as 0xNN
func hex8(b uint8) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{'0', 'x', digits[b>>4], digits[b&0xF]})
}

// pinName formats a GPIO number for log messages
func pinName(pin uint8) string {
	return "GP" + itoa(int(pin))
}

// Itoa formats n for log messages built outside core
func Itoa(n int) string {
	return itoa(n)
}

// Hex8 formats b as 0xNN for log messages built outside core
func Hex8(b uint8) string {
	return hex8(b)
}
