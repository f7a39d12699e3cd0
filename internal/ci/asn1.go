// Package ci implements the EN 50221 Common Interface transport (TPDU),
// session (SPDU), and application (APDU) layers, the Resource Manager /
// Application Information / Conditional Access Support / Date-Time / MMI
// resources, and CA-PMT delivery, grounded on
// _examples/original_source/modules/dvb/src/ca.c.
package ci

import "fmt"

// EncodeASN1Length appends the EN 50221 variable-length ASN.1 length
// encoding of size to dst and returns the extended slice, mirroring
// asn_1_encode: one byte for size < 0x80, 0x81 NN for size <= 0xFF, and
// 0x82 NN NN for larger sizes (§4.4, §8 B2).
func EncodeASN1Length(dst []byte, size int) []byte {
	switch {
	case size < 0x80:
		return append(dst, byte(size))
	case size <= 0xFF:
		return append(dst, 0x81, byte(size))
	default:
		return append(dst, 0x82, byte(size>>8), byte(size))
	}
}

// DecodeASN1Length decodes the EN 50221 variable-length form at the
// start of buf, returning the decoded size and the number of bytes
// consumed. Forms 0x83 and above are refused (malformed), per §8 B2.
func DecodeASN1Length(buf []byte) (size, consumed int, err error) {
	if len(buf) == 0 {
		return 0, 0, fmt.Errorf("ci: asn.1 length: empty buffer")
	}
	b0 := buf[0]
	switch {
	case b0 < 0x80:
		return int(b0), 1, nil
	case b0 == 0x81:
		if len(buf) < 2 {
			return 0, 0, fmt.Errorf("ci: asn.1 length: short 0x81 form")
		}
		return int(buf[1]), 2, nil
	case b0 == 0x82:
		if len(buf) < 3 {
			return 0, 0, fmt.Errorf("ci: asn.1 length: short 0x82 form")
		}
		return int(buf[1])<<8 | int(buf[2]), 3, nil
	default:
		return 0, 0, fmt.Errorf("ci: asn.1 length: unsupported form 0x%02X", b0)
	}
}
