package resp

import (
	"fmt"
	"strconv"
)

// parseInt is a specialized version of strconv.ParseInt for RESP integer
// lines, which are always base-10 and may carry a leading sign.
func parseInt(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("resp: empty integer")
	}
	neg := false
	if b[0] == '-' || b[0] == '+' {
		neg = b[0] == '-'
		b = b[1:]
	}
	n, err := parseUint(b)
	if err != nil {
		return 0, err
	}
	if neg {
		return -int64(n), nil
	}
	return int64(n), nil
}

func parseUint(b []byte) (uint64, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("resp: empty integer")
	}
	var n uint64
	for i, c := range b {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("resp: invalid digit %q at %d", c, i)
		}
		n = n*10 + uint64(c-'0')
	}
	return n, nil
}

// parseDouble handles the RESP3 double format, which extends decimal
// notation with "inf", "-inf" and "nan".
func parseDouble(b []byte) (float64, error) {
	return strconv.ParseFloat(string(b), 64)
}
