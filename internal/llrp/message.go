// Package llrp implements the slice of the LLRP 1.0.1 wire protocol a
// fixed-position Zebra/Impinj-class reader actually exchanges during
// connect, inventory and teardown (spec §2.A, §4.A). It is a codec
// only: header and parameter framing in, typed Go values out, with no
// knowledge of session sequencing (that lives in internal/readersession).
package llrp

import (
	"encoding/binary"

	"github.com/chronokeep/portal-gateway/internal/portalerr"
)

// Version is the LLRP protocol version field (3 bits). Readers in the
// field are 1.0.1 implementations; this gateway always sends Version 1
// and DecodeHeader accepts Version 1 or 2.
const Version uint16 = 1

// Message type codes (spec §4.A "Message types"), exactly the subset
// the wire exchange actually uses.
const (
	MsgGetReaderCapabilities    uint16 = 1
	MsgGetReaderCapabilitiesRsp uint16 = 11
	MsgGetReaderConfig          uint16 = 2
	MsgGetReaderConfigRsp       uint16 = 12
	MsgSetReaderConfig          uint16 = 3
	MsgSetReaderConfigRsp       uint16 = 13
	MsgCloseConnectionRsp       uint16 = 4
	MsgAddROSpec                uint16 = 20
	MsgAddROSpecRsp              uint16 = 30
	MsgDeleteROSpec              uint16 = 21
	MsgDeleteROSpecRsp           uint16 = 31
	MsgStartROSpec               uint16 = 22
	MsgStartROSpecRsp             uint16 = 32
	MsgStopROSpec                 uint16 = 23
	MsgStopROSpecRsp              uint16 = 33
	MsgEnableROSpec               uint16 = 24
	MsgEnableROSpecRsp            uint16 = 34
	MsgDisableROSpec              uint16 = 25
	MsgDisableROSpecRsp           uint16 = 35
	MsgGetROSpecs                 uint16 = 26
	MsgGetROSpecsRsp              uint16 = 36
	MsgDeleteAccessSpec           uint16 = 41
	MsgDeleteAccessSpecRsp        uint16 = 51
	MsgGetAccessSpecs             uint16 = 44
	MsgGetAccessSpecsRsp          uint16 = 54
	MsgCloseConnection            uint16 = 14
	MsgGetReport                  uint16 = 60
	MsgROAccessReport             uint16 = 61
	MsgKeepalive                  uint16 = 62
	MsgKeepaliveAck               uint16 = 72
	MsgReaderEventNotification    uint16 = 63
	MsgEnableEventsAndReports     uint16 = 64
	MsgErrorMessage               uint16 = 100
	MsgCustomMessage              uint16 = 1023
)

// messageNames backs Header.String for log lines (spec §4.A logging
// "must name the message type").
var messageNames = map[uint16]string{
	MsgGetReaderCapabilities:    "GET_READER_CAPABILITIES",
	MsgGetReaderCapabilitiesRsp: "GET_READER_CAPABILITIES_RESPONSE",
	MsgGetReaderConfig:          "GET_READER_CONFIG",
	MsgGetReaderConfigRsp:       "GET_READER_CONFIG_RESPONSE",
	MsgSetReaderConfig:          "SET_READER_CONFIG",
	MsgSetReaderConfigRsp:       "SET_READER_CONFIG_RESPONSE",
	MsgCloseConnectionRsp:       "CLOSE_CONNECTION_RESPONSE",
	MsgAddROSpec:                "ADD_ROSPEC",
	MsgAddROSpecRsp:             "ADD_ROSPEC_RESPONSE",
	MsgDeleteROSpec:             "DELETE_ROSPEC",
	MsgDeleteROSpecRsp:          "DELETE_ROSPEC_RESPONSE",
	MsgStartROSpec:              "START_ROSPEC",
	MsgStartROSpecRsp:           "START_ROSPEC_RESPONSE",
	MsgStopROSpec:               "STOP_ROSPEC",
	MsgStopROSpecRsp:            "STOP_ROSPEC_RESPONSE",
	MsgEnableROSpec:             "ENABLE_ROSPEC",
	MsgEnableROSpecRsp:          "ENABLE_ROSPEC_RESPONSE",
	MsgDisableROSpec:            "DISABLE_ROSPEC",
	MsgDisableROSpecRsp:         "DISABLE_ROSPEC_RESPONSE",
	MsgGetROSpecs:               "GET_ROSPECS",
	MsgGetROSpecsRsp:            "GET_ROSPECS_RESPONSE",
	MsgDeleteAccessSpec:         "DELETE_ACCESS_SPEC",
	MsgDeleteAccessSpecRsp:      "DELETE_ACCESS_SPEC_RESPONSE",
	MsgGetAccessSpecs:           "GET_ACCESS_SPECS",
	MsgGetAccessSpecsRsp:        "GET_ACCESS_SPECS_RESPONSE",
	MsgCloseConnection:          "CLOSE_CONNECTION",
	MsgGetReport:                "GET_REPORT",
	MsgROAccessReport:           "RO_ACCESS_REPORT",
	MsgKeepalive:                "KEEPALIVE",
	MsgKeepaliveAck:             "KEEPALIVE_ACK",
	MsgReaderEventNotification:  "READER_EVENT_NOTIFICATION",
	MsgEnableEventsAndReports:   "ENABLE_EVENTS_AND_REPORTS",
	MsgErrorMessage:             "ERROR_MESSAGE",
	MsgCustomMessage:            "CUSTOM_MESSAGE",
}

// MessageName returns the spec name for a message type, or "UNKNOWN".
func MessageName(kind uint16) string {
	if name, ok := messageNames[kind]; ok {
		return name
	}
	return "UNKNOWN"
}

// HeaderLen is the fixed 10-byte LLRP message header (spec §4.A).
const HeaderLen = 10

// Header is the decoded first 10 bytes of every LLRP message: 3
// reserved bits (must be 0), 3 version bits, 10 type bits, a 32-bit
// byte length covering the whole message including the header, and a
// 32-bit message id.
type Header struct {
	Version uint16
	Type    uint16
	Length  uint32
	ID      uint32
}

const (
	maskReserved = 0xE000
	maskVersion  = 0x1C00
	maskMsgType  = 0x03FF
)

// DecodeHeader parses the first 10 bytes of buf. It rejects a nonzero
// reserved field and a version outside {1, 2} (spec §4.A invariant).
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, &portalerr.ProtocolError{Reason: "header shorter than 10 bytes"}
	}
	bits := binary.BigEndian.Uint16(buf[0:2])
	if bits&maskReserved != 0 {
		return Header{}, &portalerr.ProtocolError{Reason: "reserved header bits are set"}
	}
	version := (bits & maskVersion) >> 10
	if version != 1 && version != 2 {
		return Header{}, &portalerr.ProtocolError{Reason: "unsupported llrp version"}
	}
	return Header{
		Version: version,
		Type:    bits & maskMsgType,
		Length:  binary.BigEndian.Uint32(buf[2:6]),
		ID:      binary.BigEndian.Uint32(buf[6:10]),
	}, nil
}

// EncodeHeader writes a 10-byte header for the given message type, id
// and total message length. Version is always Version (1).
func EncodeHeader(kind uint16, id uint32, length uint32) []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], (Version<<10)+kind)
	binary.BigEndian.PutUint32(buf[2:6], length)
	binary.BigEndian.PutUint32(buf[6:10], id)
	return buf
}
