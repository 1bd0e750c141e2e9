package readersession

import (
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/chronokeep/portal-gateway/internal/llrp"
	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/portalerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTagReportData assembles one TAG_REPORT_DATA TLV parameter with
// the five sub-parameters decodeTagReportData understands, mirroring
// the fixture in internal/llrp's own tests.
func buildTagReportData(epc model.Tag, antenna uint16, rssi int8, firstSeen, lastSeen int64) []byte {
	const length = 40
	buf := make([]byte, length)
	binary.BigEndian.PutUint16(buf[0:2], llrp.ParamTagReportData)
	binary.BigEndian.PutUint16(buf[2:4], length)

	ix := 4
	buf[ix] = 0x80 | byte(llrp.ParamEPC96)
	copy(buf[ix+1:ix+13], epc[:])
	ix += 13

	buf[ix] = 0x80 | byte(llrp.ParamAntennaID)
	binary.BigEndian.PutUint16(buf[ix+1:ix+3], antenna)
	ix += 3

	buf[ix] = 0x80 | byte(llrp.ParamPeakRSSI)
	buf[ix+1] = byte(rssi)
	ix += 2

	buf[ix] = 0x80 | byte(llrp.ParamFirstSeenTimestampUTC)
	binary.BigEndian.PutUint64(buf[ix+1:ix+9], uint64(firstSeen))
	ix += 9

	buf[ix] = 0x80 | byte(llrp.ParamLastSeenTimestampUTC)
	binary.BigEndian.PutUint64(buf[ix+1:ix+9], uint64(lastSeen))
	ix += 9

	return buf
}

type fakeAggregator struct {
	drained []model.Read
}

func (f *fakeAggregator) Observe(tags []model.TagObservation) []model.Read { return nil }
func (f *fakeAggregator) Tick() []model.Read                               { return nil }
func (f *fakeAggregator) Drain() []model.Read                              { return f.drained }

type fakeSink struct {
	accepted [][]model.Read
}

func (f *fakeSink) AcceptReads(reads []model.Read) {
	f.accepted = append(f.accepted, reads)
}

func newIdleSession(t *testing.T, conn net.Conn) (*Session, *fakeAggregator, *fakeSink) {
	t.Helper()
	agg := &fakeAggregator{}
	sink := &fakeSink{}
	s := New(&model.Reader{Nickname: "r1"}, agg, sink, model.ChipTypeDEC)
	s.conn = conn
	s.state = Idle
	return s, agg, sink
}

func readAllMessages(t *testing.T, buf []byte) []llrp.Header {
	t.Helper()
	var headers []llrp.Header
	ix := 0
	for ix < len(buf) {
		hdr, err := llrp.DecodeHeader(buf[ix : ix+llrp.HeaderLen])
		require.NoError(t, err)
		headers = append(headers, hdr)
		ix += int(hdr.Length)
	}
	return headers
}

func TestStartReadingSendsExpectedSequence(t *testing.T) {
	server, client := net.Pipe()
	s, _, _ := newIdleSession(t, client)

	recv := make(chan []byte, 1)
	go func() {
		b, _ := io.ReadAll(server)
		recv <- b
	}()

	err := s.StartReading()
	require.NoError(t, err)
	assert.Equal(t, Inventorying, s.State())
	assert.True(t, s.reader.Reading)

	client.Close()
	got := <-recv
	headers := readAllMessages(t, got)
	require.Len(t, headers, 5)
	assert.Equal(t, llrp.MsgDeleteAccessSpec, headers[0].Type)
	assert.Equal(t, llrp.MsgDeleteROSpec, headers[1].Type)
	assert.Equal(t, llrp.MsgAddROSpec, headers[2].Type)
	assert.Equal(t, llrp.MsgEnableROSpec, headers[3].Type)
	assert.Equal(t, llrp.MsgStartROSpec, headers[4].Type)
}

func TestStartReadingRejectsWhenNotIdle(t *testing.T) {
	s := New(&model.Reader{Nickname: "r1"}, &fakeAggregator{}, &fakeSink{}, model.ChipTypeDEC)
	err := s.StartReading()
	require.Error(t, err)
	assert.IsType(t, &portalerr.ConnectError{}, err)
}

func TestStartReadingRejectsWhenAlreadyReading(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	s, _, _ := newIdleSession(t, client)
	s.state = Inventorying

	err := s.StartReading()
	require.Error(t, err)
	assert.IsType(t, &portalerr.AlreadyReading{}, err)
}

func TestStopReadingSendsExpectedSequence(t *testing.T) {
	server, client := net.Pipe()
	s, _, _ := newIdleSession(t, client)
	s.state = Inventorying

	recv := make(chan []byte, 1)
	go func() {
		b, _ := io.ReadAll(server)
		recv <- b
	}()

	err := s.StopReading()
	require.NoError(t, err)
	assert.Equal(t, Idle, s.State())
	assert.False(t, s.reader.Reading)

	client.Close()
	got := <-recv
	headers := readAllMessages(t, got)
	require.Len(t, headers, 2)
	assert.Equal(t, llrp.MsgDisableROSpec, headers[0].Type)
	assert.Equal(t, llrp.MsgDeleteROSpec, headers[1].Type)
}

func TestStopReadingRejectsWhenNotReading(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	s, _, _ := newIdleSession(t, client)

	err := s.StopReading()
	require.Error(t, err)
	assert.IsType(t, &portalerr.NotReading{}, err)
}

func TestCloseDrainsAggregatorAndResetsState(t *testing.T) {
	server, client := net.Pipe()
	s, agg, sink := newIdleSession(t, client)
	agg.drained = []model.Read{{Identifier: "123"}}

	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()

	s.Close()

	assert.Equal(t, Disconnected, s.State())
	assert.False(t, s.reader.Connected)
	assert.False(t, s.reader.Reading)
	require.Len(t, sink.accepted, 1)
	assert.Equal(t, agg.drained, sink.accepted[0])
	server.Close()
}

func TestReadOnceAnswersKeepaliveInline(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	s, _, _ := newIdleSession(t, client)

	ackCh := make(chan []byte, 1)
	go func() {
		server.Write(llrp.EncodeHeader(llrp.MsgKeepalive, 5, llrp.HeaderLen))
		ack := make([]byte, llrp.HeaderLen)
		io.ReadFull(server, ack)
		ackCh <- ack
	}()

	buf := make([]byte, 4096)
	reports, err := s.readOnce(buf)
	require.NoError(t, err)
	assert.Empty(t, reports)

	ack := <-ackCh
	hdr, err := llrp.DecodeHeader(ack)
	require.NoError(t, err)
	assert.Equal(t, llrp.MsgKeepaliveAck, hdr.Type)
	assert.Equal(t, uint32(5), hdr.ID)
}

func TestReadOnceDecodesTagReports(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	s, _, _ := newIdleSession(t, client)

	tagBody := buildTagReportData(
		model.TagFromBigEndian([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}),
		2, -40, 10, 20,
	)
	msg := append(llrp.EncodeHeader(llrp.MsgROAccessReport, 9, uint32(llrp.HeaderLen+len(tagBody))), tagBody...)
	go func() {
		server.Write(msg)
	}()

	buf := make([]byte, 4096)
	reports, err := s.readOnce(buf)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, uint16(2), reports[0].Antenna)
	assert.Equal(t, int8(-40), reports[0].RSSI)
}
