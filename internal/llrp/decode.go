package llrp

import (
	"encoding/binary"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/portalerr"
)

// TagReport is a single decoded TAG_REPORT_DATA parameter: one tag
// observation as it appeared in an RO_ACCESS_REPORT (spec §4.A, §4.C).
type TagReport struct {
	EPC       model.Tag
	Antenna   uint16
	RSSI      int8
	FirstSeen int64 // microseconds since Unix epoch, UTC
	LastSeen  int64
}

// DecodeROAccessReport walks the TLV parameter list of an
// RO_ACCESS_REPORT body (buf[bodyStart:bodyEnd], i.e. after the 10-byte
// header) and returns one TagReport per TAG_REPORT_DATA parameter
// found. Parameters this gateway does not need (ROSpecID, C1G2 PC/CRC)
// are skipped by their known TV length rather than decoded.
func DecodeROAccessReport(buf []byte, bodyStart, bodyEnd int) ([]TagReport, error) {
	var reports []TagReport
	ix := bodyStart
	for ix < bodyEnd {
		info, err := DecodeParamHeadAt(buf, ix)
		if err != nil {
			return nil, err
		}
		if info.Type != ParamTagReportData {
			// Skip any other top-level parameter (reader event
			// notification data, etc.) by its own declared length.
			if info.Length < 4 {
				return reports, nil
			}
			ix += int(info.Length)
			continue
		}
		report, consumed, err := decodeTagReportData(buf, ix, bodyEnd)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
		ix = consumed
	}
	return reports, nil
}

// decodeTagReportData parses the sub-parameters of one
// TAG_REPORT_DATA TLV (spec §4.A "TAG_REPORT_DATA"). It returns the
// index immediately following the whole TAG_REPORT_DATA parameter.
func decodeTagReportData(buf []byte, start, maxIx int) (TagReport, int, error) {
	if start+4 > len(buf) {
		return TagReport{}, 0, &portalerr.ProtocolError{Reason: "tag report data truncated"}
	}
	head, err := DecodeParamHeadAt(buf, start)
	if err != nil {
		return TagReport{}, 0, err
	}
	if head.Length < 5 {
		return TagReport{}, 0, &portalerr.ProtocolError{Reason: "tag report data too short"}
	}
	end := start + int(head.Length)
	var tag TagReport
	ix := start + 4
	for ix < end {
		if ix >= len(buf) {
			return TagReport{}, 0, &portalerr.ProtocolError{Reason: "tag report data out of bounds"}
		}
		tvType := uint16(buf[ix] & 0x7F)
		switch tvType {
		case ParamROSpecID:
			ix += 5
		case ParamC1G2PC, ParamC1G2CRC:
			ix += 3
		case ParamEPC96:
			if ix+13 > len(buf) {
				return TagReport{}, 0, &portalerr.ProtocolError{Reason: "tag report data out of bounds"}
			}
			tag.EPC = model.TagFromBigEndian(buf[ix+1 : ix+13])
			ix += 13
		case ParamAntennaID:
			tag.Antenna = binary.BigEndian.Uint16(buf[ix+1 : ix+3])
			ix += 3
		case ParamPeakRSSI:
			tag.RSSI = int8(buf[ix+1])
			ix += 2
		case ParamFirstSeenTimestampUTC:
			tag.FirstSeen = int64(binary.BigEndian.Uint64(buf[ix+1 : ix+9]))
			ix += 9
		case ParamLastSeenTimestampUTC:
			tag.LastSeen = int64(binary.BigEndian.Uint64(buf[ix+1 : ix+9]))
			ix += 9
		default:
			// Unknown TV sub-parameter: nothing safe to skip by length,
			// so stop and accept whatever fields were already decoded.
			ix = end
		}
	}
	return tag, end, nil
}
