package file

import (
	"fmt"
	"os"
)

// mode is a parsed open mode such as "r", "w+", "ab".
type mode struct {
	text   string
	flag   int
	read   bool
	write  bool
	binary bool
}

func parseMode(s string) (mode, error) {
	m := mode{text: s}
	var primary byte
	var plus, sawText bool

	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case 'r', 'w', 'a', 'x':
			if primary != 0 {
				return m, invalidMode(s)
			}
			primary = c
		case '+':
			if plus {
				return m, invalidMode(s)
			}
			plus = true
		case 'b':
			if m.binary || sawText {
				return m, invalidMode(s)
			}
			m.binary = true
		case 't':
			if m.binary || sawText {
				return m, invalidMode(s)
			}
			sawText = true
		default:
			return m, invalidMode(s)
		}
	}

	switch primary {
	case 'r':
		m.read = true
	case 'w':
		m.write = true
		m.flag = os.O_CREATE | os.O_TRUNC
	case 'a':
		m.write = true
		m.flag = os.O_CREATE | os.O_APPEND
	case 'x':
		m.write = true
		m.flag = os.O_CREATE | os.O_EXCL
	default:
		return m, invalidMode(s)
	}

	if plus {
		m.read, m.write = true, true
	}
	switch {
	case m.read && m.write:
		m.flag |= os.O_RDWR
	case m.write:
		m.flag |= os.O_WRONLY
	default:
		m.flag |= os.O_RDONLY
	}
	return m, nil
}

func invalidMode(s string) error {
	return newError(CodeInvalid, "open", "", fmt.Errorf("invalid mode %q", s))
}
