package meter

// crcPoly is the CRC-16/X-25 polynomial 0x1021 in reflected bit order.
const crcPoly = 0x8408

// Checksum computes the CRC-16/X-25 of data: reflected polynomial
// 0x1021, initial value 0xFFFF, final value inverted. The check value
// for the ASCII string "123456789" is 0x906E.
//
// Kaifa frames carry this checksum as a little-endian trailer over the
// payload between the delimiters.
func Checksum(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for range 8 {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ crcPoly
			} else {
				crc >>= 1
			}
		}
	}
	return ^crc
}
