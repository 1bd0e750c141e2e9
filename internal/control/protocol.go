// Package control implements the subscriber control protocol of spec
// §6: a newline-delimited JSON request/response exchange over TCP,
// bounded to spec §4.E's subscriber table, wired to the repository,
// event bus and live reader registry.
package control

import (
	"net"
	"time"

	"github.com/chronokeep/portal-gateway/internal/model"
)

// protocolVersion is the "version" field connection_successful
// reports (spec §6).
const protocolVersion = 1

// request is the envelope every inbound line decodes into. Rust's
// original models this as a tagged enum with one variant per command;
// Go has no sum type for that, so every command's optional fields
// live side by side here and each handler reads only the ones its
// command defined (spec §6's per-command field column).
type request struct {
	Command string `json:"command"`

	Reads     *bool `json:"reads,omitempty"`
	Sightings *bool `json:"sightings,omitempty"`

	ID *int64 `json:"id,omitempty"`

	Name        string `json:"name,omitempty"`
	Kind        string `json:"kind,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`
	Port        uint16 `json:"port,omitempty"`
	AutoConnect bool   `json:"auto_connect,omitempty"`

	URI   string `json:"uri,omitempty"`
	Token string `json:"token,omitempty"`

	Settings     []wireSetting     `json:"settings,omitempty"`
	Participants []wireParticipant `json:"participants,omitempty"`

	StartSeconds uint64 `json:"start_seconds,omitempty"`
	EndSeconds   uint64 `json:"end_seconds,omitempty"`
}

type wireSetting struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type wireReader struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	IPAddress   string `json:"ip_address"`
	Port        uint16 `json:"port"`
	AutoConnect bool   `json:"auto_connect"`
	Connected   bool   `json:"connected"`
	Reading     bool   `json:"reading"`
}

func toWireReader(r *model.Reader) wireReader {
	ip := ""
	if r.IPAddress != nil {
		ip = r.IPAddress.String()
	}
	return wireReader{
		ID: r.ID, Name: r.Nickname, Kind: string(r.Kind), IPAddress: ip,
		Port: r.Port, AutoConnect: r.AutoConnect, Connected: r.Connected, Reading: r.Reading,
	}
}

func toWireReaders(readers []*model.Reader) []wireReader {
	out := make([]wireReader, len(readers))
	for i, r := range readers {
		out[i] = toWireReader(r)
	}
	return out
}

type wireAPI struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	URI   string `json:"uri"`
	Token string `json:"token"`
}

func toWireAPI(a model.RemoteAPI) wireAPI {
	return wireAPI{ID: a.ID, Name: a.Name, Kind: string(a.Kind), URI: a.URI, Token: a.Token}
}

func toWireAPIs(apis []model.RemoteAPI) []wireAPI {
	out := make([]wireAPI, len(apis))
	for i, a := range apis {
		out[i] = toWireAPI(a)
	}
	return out
}

type wireParticipant struct {
	Bib       string `json:"bib"`
	First     string `json:"first"`
	Last      string `json:"last"`
	Birthdate string `json:"birthdate"`
	Gender    string `json:"gender"`
	AgeGroup  string `json:"age_group"`
	Distance  string `json:"distance"`
	Anonymous bool   `json:"anonymous"`
}

func toWireParticipant(p model.Participant) wireParticipant {
	return wireParticipant{
		Bib: p.Bib, First: p.First, Last: p.Last, Birthdate: p.Birthdate,
		Gender: p.Gender, AgeGroup: p.AgeGroup, Distance: p.Distance, Anonymous: p.Anonymous,
	}
}

func toModelParticipant(p wireParticipant) model.Participant {
	return model.Participant{
		Bib: p.Bib, First: p.First, Last: p.Last, Birthdate: p.Birthdate,
		Gender: p.Gender, AgeGroup: p.AgeGroup, Distance: p.Distance, Anonymous: p.Anonymous,
	}
}

func toWireParticipants(participants []model.Participant) []wireParticipant {
	out := make([]wireParticipant, len(participants))
	for i, p := range participants {
		out[i] = toWireParticipant(p)
	}
	return out
}

type wireRead struct {
	Identifier         string `json:"identifier"`
	Seconds            uint64 `json:"seconds"`
	Milliseconds       uint32 `json:"milliseconds"`
	ReaderSeconds      uint64 `json:"reader_seconds"`
	ReaderMilliseconds uint32 `json:"reader_milliseconds"`
	Antenna            uint16 `json:"antenna"`
	Reader             string `json:"reader"`
	RSSI               string `json:"rssi"`
	IdentType          string `json:"ident_type"`
	Kind               string `json:"kind"`
	Status             string `json:"status"`
	Uploaded           bool   `json:"uploaded"`
}

func toWireRead(r model.Read) wireRead {
	return wireRead{
		Identifier: r.Identifier, Seconds: r.Seconds, Milliseconds: r.Milliseconds,
		ReaderSeconds: r.ReaderSeconds, ReaderMilliseconds: r.ReaderMilliseconds,
		Antenna: r.Antenna, Reader: r.Reader, RSSI: r.RSSI,
		IdentType: string(r.IdentType), Kind: string(r.Kind), Status: string(r.Status), Uploaded: r.Uploaded,
	}
}

func toWireReads(reads []model.Read) []wireRead {
	out := make([]wireRead, len(reads))
	for i, r := range reads {
		out[i] = toWireRead(r)
	}
	return out
}

type wireSighting struct {
	Participant wireParticipant `json:"participant"`
	Read        wireRead        `json:"read"`
}

func toWireSightings(sightings []model.Sighting) []wireSighting {
	out := make([]wireSighting, len(sightings))
	for i, s := range sightings {
		out[i] = wireSighting{Participant: toWireParticipant(s.Participant), Read: toWireRead(s.Read)}
	}
	return out
}

// errorType enumerates the error_type values of spec §6.
type errorType string

const (
	errUnknownCommand    errorType = "unknown_command"
	errTooManyConns      errorType = "too_many_connections"
	errServerError       errorType = "server_error"
	errDatabaseError     errorType = "database_error"
	errInvalidReaderType errorType = "invalid_reader_type"
	errReaderConnection  errorType = "reader_connection"
	errNotFound          errorType = "not_found"
	errInvalidSetting    errorType = "invalid_setting"
	errInvalidAPIType    errorType = "invalid_api_type"
	errAlreadySubbed     errorType = "already_subscribed"
)

type errorBody struct {
	ErrorType errorType `json:"error_type"`
	Message   string    `json:"message,omitempty"`
}

type errorResponse struct {
	Command string    `json:"command"`
	Error   errorBody `json:"error"`
}

func newError(kind errorType, message string) errorResponse {
	return errorResponse{Command: "error", Error: errorBody{ErrorType: kind, Message: message}}
}

type connectionSuccessfulResponse struct {
	Command             string       `json:"command"`
	Kind                 string       `json:"kind"`
	Version              int          `json:"version"`
	ReadsSubscribed      bool         `json:"reads_subscribed"`
	SightingsSubscribed  bool         `json:"sightings_subscribed"`
	Readers              []wireReader `json:"readers"`
}

type disconnectResponse struct {
	Command string `json:"command"`
}

type readersResponse struct {
	Command string       `json:"command"`
	Readers []wireReader `json:"readers"`
}

type settingsResponse struct {
	Command  string        `json:"command"`
	Settings []wireSetting `json:"settings"`
}

type apiListResponse struct {
	Command string    `json:"command"`
	APIs    []wireAPI `json:"apis"`
}

type participantsResponse struct {
	Command      string            `json:"command"`
	Participants []wireParticipant `json:"participants"`
}

type readsResponse struct {
	Command string     `json:"command"`
	Reads   []wireRead `json:"reads"`
}

type sightingsResponse struct {
	Command   string         `json:"command"`
	Sightings []wireSighting `json:"sightings"`
}

type successResponse struct {
	Command string `json:"command"`
	Count   int    `json:"count"`
}

type timeResponse struct {
	Command string `json:"command"`
	Local   string `json:"local"`
	UTC     string `json:"utc"`
}

// timeLayout matches spec §6's "YYYY-MM-DD HH:MM:SS".
const timeLayout = "2006-01-02 15:04:05"

func newTimeResponse(now time.Time) timeResponse {
	return timeResponse{Command: "time", Local: now.Local().Format(timeLayout), UTC: now.UTC().Format(timeLayout)}
}

type keepaliveMessage struct {
	Command string `json:"command"`
}

type uploaderStatusMessage struct {
	Command string `json:"command"`
	Status  string `json:"status"`
}

// isLoopback reports whether conn's remote address is loopback, for the
// reserved subscriber slot of spec §6 ("one additional slot ... only
// accepted from loopback").
func isLoopback(conn net.Conn) bool {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
