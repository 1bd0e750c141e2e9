package llrp

import "encoding/binary"

// The builders below produce byte-exact fixed-length messages for the
// connect, configure and teardown sequence (spec §4.B). Field layouts,
// including the Zebra/Motorola vendor-161 custom parameters and the
// exact content-selector bit patterns, mirror the reader firmware's
// actual wire expectations rather than a generic LLRP encoder -- a
// reader that does not see these exact bytes will reject the spec or
// silently ignore the RO report content selector.

func put16(buf []byte, off int, v uint16) { binary.BigEndian.PutUint16(buf[off:], v) }
func put32(buf []byte, off int, v uint32) { binary.BigEndian.PutUint32(buf[off:], v) }

// GetReaderCapabilities builds GET_READER_CAPABILITIES requesting all
// capabilities, plus the Zebra MotoGeneralRequestCapabilities custom
// parameter (vendor 161, subtype 50).
func GetReaderCapabilities(id uint32) []byte {
	buf := make([]byte, 24)
	copy(buf[0:10], EncodeHeader(MsgGetReaderCapabilities, id, 24))
	buf[10] = 0x00 // requested data: all
	put16(buf[11:], 0, ParamCustomParameter)
	put16(buf[13:], 0, 13) // parameter length
	put32(buf[15:], 0, 161)
	put32(buf[19:], 0, 50)
	buf[23] = 0x00
	return buf
}

// AddROSpec builds ADD_ROSPEC for a single always-on ROSpec: null
// start trigger (spec §4.B "begins disabled, enabled by ENABLE_ROSPEC/
// START_ROSPEC"), null stop trigger, all antennas, every tag reported
// individually (N=1) with RSSI, antenna id and first-seen timestamp
// enabled and the Zebra extended tag-report-content custom parameter.
func AddROSpec(id, roSpecID uint32) []byte {
	buf := make([]byte, 96)
	copy(buf[0:10], EncodeHeader(MsgAddROSpec, id, 96))

	put16(buf[10:], 0, ParamROSpec)
	put16(buf[12:], 0, 0x56) // 86
	put32(buf[14:], 0, roSpecID)
	buf[18] = 0x00 // priority
	buf[19] = 0x00 // current state: disabled

	put16(buf[20:], 0, ParamROBoundarySpec)
	put16(buf[22:], 0, 0x12) // 18
	put16(buf[24:], 0, ParamROSpecStartTrigger)
	put16(buf[26:], 0, 0x05)
	buf[28] = 0x00 // trigger type: null
	put16(buf[29:], 0, ParamROSpecStopTrigger)
	put16(buf[31:], 0, 0x09)
	buf[33] = 0x00 // trigger type: null
	put32(buf[34:], 0, 0)  // duration, ignored

	put16(buf[38:], 0, ParamAISpec)
	put16(buf[40:], 0, 0x18) // 24
	put16(buf[42:], 0, 1)    // antenna count
	put16(buf[44:], 0, 0)    // antenna id 0 = all
	put16(buf[46:], 0, ParamAISpecStopTrigger)
	put16(buf[48:], 0, 0x09)
	buf[50] = 0x00 // trigger type: null
	put32(buf[51:], 0, 0)
	put16(buf[55:], 0, ParamInventoryParameterSpec)
	put16(buf[57:], 0, 0x07)
	put16(buf[59:], 0, 0x13) // inventory parameter spec id 19
	buf[61] = 0x01           // protocol id: C1G2

	put16(buf[62:], 0, ParamROReportSpec)
	put16(buf[64:], 0, 0x22) // 34
	buf[66] = 0x02           // report trigger: at end of every AISpec (per-tag with N=1)
	put16(buf[67:], 0, 1)    // N = 1
	put16(buf[69:], 0, ParamTagReportContentSelector)
	put16(buf[71:], 0, 0x0b)
	buf[73] = 0x96 // ROSpecID, AntennaID, PeakRSSI, FirstSeenTimestamp enabled
	buf[74] = 0x00
	put16(buf[75:], 0, ParamC1G2EPCMemorySelector)
	put16(buf[77:], 0, 0x05)
	buf[79] = 0x00

	put16(buf[80:], 0, ParamCustomParameter)
	put16(buf[82:], 0, 0x10) // 16
	put32(buf[84:], 0, 161)
	put32(buf[88:], 0, 0x02C4) // Moto Tag Report Content Selector 708
	buf[92] = 0x00
	buf[93] = 0x00
	buf[94] = 0x00
	buf[95] = 0x00
	return buf
}

func len14(kind uint16, id, specID uint32) []byte {
	buf := make([]byte, 14)
	copy(buf[0:10], EncodeHeader(kind, id, 14))
	put32(buf[10:], 0, specID)
	return buf
}

func len10(kind uint16, id uint32) []byte {
	buf := make([]byte, 10)
	copy(buf[0:10], EncodeHeader(kind, id, 10))
	return buf
}

func DeleteROSpec(id, roSpecID uint32) []byte  { return len14(MsgDeleteROSpec, id, roSpecID) }
func StartROSpec(id, roSpecID uint32) []byte   { return len14(MsgStartROSpec, id, roSpecID) }
func StopROSpec(id, roSpecID uint32) []byte    { return len14(MsgStopROSpec, id, roSpecID) }
func EnableROSpec(id, roSpecID uint32) []byte  { return len14(MsgEnableROSpec, id, roSpecID) }
func DisableROSpec(id, roSpecID uint32) []byte { return len14(MsgDisableROSpec, id, roSpecID) }
func GetROSpecs(id uint32) []byte              { return len10(MsgGetROSpecs, id) }
func DeleteAccessSpec(id, accessSpecID uint32) []byte {
	return len14(MsgDeleteAccessSpec, id, accessSpecID)
}
func GetAccessSpecs(id uint32) []byte        { return len10(MsgGetAccessSpecs, id) }
func CloseConnection(id uint32) []byte       { return len10(MsgCloseConnection, id) }
func KeepaliveAck(id uint32) []byte          { return len10(MsgKeepaliveAck, id) }
func EnableEventsAndReports(id uint32) []byte { return len10(MsgEnableEventsAndReports, id) }

const customMessagePurgeTags uint16 = MsgCustomMessage

// PurgeTags builds the Zebra vendor custom message that clears the
// reader's internal tag cache before a fresh inventory session starts.
func PurgeTags(id uint32) []byte {
	buf := make([]byte, 16)
	copy(buf[0:10], EncodeHeader(customMessagePurgeTags, id, 16))
	put32(buf[10:], 0, 161)
	buf[14] = 0x03
	buf[15] = 0x00
	return buf
}

// SetKeepalive configures a 2-second periodic keepalive (spec §4.B
// "KEEPALIVE/KEEPALIVE_ACK every T_KEEPALIVE").
func SetKeepalive(id uint32) []byte {
	buf := make([]byte, 20)
	copy(buf[0:10], EncodeHeader(MsgSetReaderConfig, id, 20))
	buf[10] = 0x00 // don't restore factory defaults
	put16(buf[11:], 0, ParamKeepaliveSpec)
	put16(buf[13:], 0, 9)
	buf[15] = 0x01 // periodic
	put32(buf[16:], 0, 2000)
	return buf
}

// SetNoFilter disables the Zebra tag-filtering custom parameter so
// every observed tag is reported (spec §4.B "no duplicate suppression
// at the reader").
func SetNoFilter(id uint32) []byte {
	buf := make([]byte, 27)
	copy(buf[0:10], EncodeHeader(MsgSetReaderConfig, id, 27))
	buf[10] = 0x00
	put16(buf[11:], 0, ParamCustomParameter)
	put16(buf[13:], 0, 16)
	put32(buf[15:], 0, 161)
	put32(buf[19:], 0, 255)
	buf[23] = 0x00
	buf[24], buf[25], buf[26] = 0x00, 0x00, 0x00
	return buf
}

// GetReaderConfig requests one configuration category from the
// reader. config follows the LLRP enumeration (0 = all, 1 =
// identification, ... 11 = EventsAndReports); antennaID 0 means all
// antennas.
func GetReaderConfig(id uint32, antennaID uint16, config byte, gpiPort, gpoPort uint16) []byte {
	buf := make([]byte, 17)
	copy(buf[0:10], EncodeHeader(MsgGetReaderConfig, id, 17))
	put16(buf[10:], 0, antennaID)
	buf[12] = config
	put16(buf[13:], 0, gpiPort)
	put16(buf[15:], 0, gpoPort)
	return buf
}

// SetReaderConfig enables ROSpec, buffer-overflow-warning and reader
// exception event notifications and asks the reader to hold events and
// reports across a reconnect (spec §4.B "reconnect must not lose
// already-buffered reads").
func SetReaderConfig(id uint32) []byte {
	buf := make([]byte, 41)
	copy(buf[0:10], EncodeHeader(MsgSetReaderConfig, id, 41))
	buf[10] = 0x00

	put16(buf[11:], 0, ParamReaderEventNotificationSpec)
	put16(buf[13:], 0, 25)

	writeEventState := func(off int, eventType uint16) {
		put16(buf[off:], 0, ParamEventNotificationState)
		put16(buf[off+2:], 0, 7)
		put16(buf[off+4:], 0, eventType)
		buf[off+6] = 0x80
	}
	writeEventState(15, 2) // ROSpec event
	writeEventState(22, 3) // report buffer fill warning
	writeEventState(29, 4) // reader exception event

	put16(buf[36:], 0, ParamEventsAndReports)
	put16(buf[38:], 0, 5)
	buf[40] = 0x80 // hold events/reports across reconnect
	return buf
}
