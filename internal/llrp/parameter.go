package llrp

import (
	"encoding/binary"

	"github.com/chronokeep/portal-gateway/internal/portalerr"
)

// Parameter type codes actually touched by this gateway (spec §4.A).
// TV-encoded types (first bit of the 16-bit header set) carry a fixed
// length per tvLengths below; everything else is TLV.
const (
	ParamEPC96                    uint16 = 13
	ParamROSpecID                  uint16 = 9
	ParamAntennaID                 uint16 = 1
	ParamPeakRSSI                  uint16 = 6
	ParamFirstSeenTimestampUTC     uint16 = 2
	ParamLastSeenTimestampUTC      uint16 = 4
	ParamC1G2PC                    uint16 = 12
	ParamC1G2CRC                   uint16 = 11

	ParamROSpec                      uint16 = 177
	ParamROBoundarySpec              uint16 = 178
	ParamROSpecStartTrigger          uint16 = 179
	ParamROSpecStopTrigger           uint16 = 182
	ParamAISpec                      uint16 = 183
	ParamAISpecStopTrigger           uint16 = 184
	ParamInventoryParameterSpec      uint16 = 186
	ParamROReportSpec                uint16 = 237
	ParamTagReportContentSelector    uint16 = 238
	ParamTagReportData               uint16 = 240
	ParamC1G2EPCMemorySelector       uint16 = 348
	ParamKeepaliveSpec               uint16 = 220
	ParamReaderEventNotificationSpec uint16 = 244
	ParamEventNotificationState      uint16 = 245
	ParamEventsAndReports            uint16 = 226
	ParamLLRPStatus                  uint16 = 287
	ParamAccessSpec                  uint16 = 207
	ParamCustomParameter             uint16 = 1023
)

var tvLengths = map[uint16]uint16{
	ParamEPC96:                13,
	ParamFirstSeenTimestampUTC: 9,
	ParamLastSeenTimestampUTC:  9,
	ParamROSpecID:              5,
	ParamAntennaID:             3,
	ParamPeakRSSI:              2,
	ParamC1G2PC:                3,
	ParamC1G2CRC:               3,
}

// ParamInfo is the decoded 4-byte head of a parameter: TV parameters
// carry only a type (length implied by tvLengths); TLV parameters
// carry an explicit 16-bit length covering the whole parameter
// including its own 4-byte head.
type ParamInfo struct {
	TV     bool
	Type   uint16
	Length uint16
}

const (
	maskTVReserved    = 0x8000
	maskTVType        = 0x7F00
	maskParamReserved = 0xFC00
	maskParamType     = 0x03FF
)

// DecodeParamHead reads the 4-byte parameter head starting at bits
// (already loaded as a big-endian uint32 by the caller, matching the
// original reader's byte-at-a-time composition).
func DecodeParamHead(bits uint32) (ParamInfo, error) {
	head := uint16(bits >> 16)
	if head&maskTVReserved != 0 {
		kind := (head & maskTVType) >> 8
		return ParamInfo{TV: true, Type: kind, Length: tvLengths[kind]}, nil
	}
	if head&maskParamReserved != 0 {
		return ParamInfo{}, &portalerr.ProtocolError{Reason: "invalid parameter reserved field"}
	}
	return ParamInfo{
		TV:     false,
		Type:   head & maskParamType,
		Length: uint16(bits & 0xFFFF),
	}, nil
}

// DecodeParamHeadAt reads the 4-byte head at buf[offset:offset+4].
func DecodeParamHeadAt(buf []byte, offset int) (ParamInfo, error) {
	if offset+4 > len(buf) {
		return ParamInfo{}, &portalerr.ProtocolError{Reason: "parameter head out of bounds"}
	}
	bits := binary.BigEndian.Uint32(buf[offset : offset+4])
	return DecodeParamHead(bits)
}
