package enginetest

// FileBytes returns a minimal Rive file: the RIVE fingerprint, major
// version 7, minor version 0, file id 1 and an empty property table,
// followed by payload.
func FileBytes(payload ...byte) []byte {
	b := []byte{'R', 'I', 'V', 'E', 7, 0, 1, 0}
	return append(b, payload...)
}
