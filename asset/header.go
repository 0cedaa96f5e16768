package asset

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/wippyai/rive-ograf/errors"
)

// Fingerprint opens every Rive file.
var Fingerprint = []byte("RIVE")

// SupportedMajor is the file format major version the runtime reads.
const SupportedMajor = 7

// Header is the fixed prefix of a Rive file.
type Header struct {
	Major  uint64
	Minor  uint64
	FileID uint64
}

func (h Header) String() string {
	return fmt.Sprintf("v%d.%d file %d", h.Major, h.Minor, h.FileID)
}

// ParseHeader reads the fingerprint and the three varuint header fields.
func ParseHeader(data []byte) (Header, error) {
	if !bytes.HasPrefix(data, Fingerprint) {
		return Header{}, errors.InvalidData(errors.PhaseLoad, "missing RIVE fingerprint", nil)
	}

	rest := data[len(Fingerprint):]
	var fields [3]uint64
	for i := range fields {
		v, n := binary.Uvarint(rest)
		if n <= 0 {
			return Header{}, errors.InvalidData(errors.PhaseLoad, "truncated header", nil)
		}
		fields[i] = v
		rest = rest[n:]
	}

	h := Header{Major: fields[0], Minor: fields[1], FileID: fields[2]}
	if h.Major != SupportedMajor {
		return h, errors.New(errors.PhaseLoad, errors.KindUnsupported).
			Detail("file format v%d, runtime reads v%d", h.Major, SupportedMajor).
			Value(h.Major).
			Build()
	}
	return h, nil
}
