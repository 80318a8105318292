package gdbserver

// sliceXfer paginates a qXfer object:
// if offset is past the end of data, reply "l"; otherwise reply
// "m<slice>" when more remains, "l<slice>" on the final chunk.
func sliceXfer(data string, offset, length int) string {
	if offset > len(data) {
		return "l"
	}
	end := offset + length
	if end > len(data) {
		end = len(data)
	}
	slice := data[offset:end]
	if end >= len(data) {
		return "l" + slice
	}
	return "m" + slice
}
