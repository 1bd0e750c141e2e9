// Package discovery implements the zero-configuration UDP responder
// of spec §6: a multicast listener that answers a literal discovery
// request with the portal's name, a stable per-process server id, and
// its control port.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/chronokeep/portal-gateway/pkg/log"
	"github.com/google/uuid"
)

// MulticastAddr and Port are the fixed zero-configuration rendezvous
// point (spec §6).
const (
	MulticastAddr = "224.0.44.88"
	Port          = 4488
)

// Request is the literal discovery request payload responders listen
// for.
const Request = "[DISCOVER_CHRONO_SERVER_REQUEST]"

const readTimeout = 2 * time.Second

// PortalNameFunc returns the portal's current display name; it is
// called fresh on every request so a rename takes effect immediately.
type PortalNameFunc func() string

// Responder answers zero-configuration discovery requests.
type Responder struct {
	conn       *net.UDPConn
	serverID   string
	controlPort uint16
	portalName PortalNameFunc
}

// New joins the discovery multicast group and returns a Responder
// bound to controlPort. The server id is a 10-character token stable
// for the process's lifetime.
func New(controlPort uint16, portalName PortalNameFunc) (*Responder, error) {
	group := net.UDPAddr{IP: net.ParseIP(MulticastAddr), Port: Port}
	conn, err := net.ListenMulticastUDP("udp4", nil, &group)
	if err != nil {
		return nil, fmt.Errorf("discovery: joining multicast group: %w", err)
	}
	return &Responder{
		conn:        conn,
		serverID:    generateServerID(),
		controlPort: controlPort,
		portalName:  portalName,
	}, nil
}

// ServerID returns this process's stable discovery identifier.
func (r *Responder) ServerID() string { return r.serverID }

// Run answers requests until ctx is cancelled or Close is called.
func (r *Responder) Run(ctx context.Context) {
	log.Infof("discovery: listening on %s:%d, server id %s", MulticastAddr, Port, r.serverID)
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, src, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
				log.Warnf("discovery: read error: %v", err)
				continue
			}
		}
		if string(buf[:n]) != Request {
			continue
		}
		response := fmt.Sprintf("[%s|%s|%d]", r.portalName(), r.serverID, r.controlPort)
		if _, err := r.conn.WriteToUDP([]byte(response), src); err != nil {
			log.Warnf("discovery: error responding to %s: %v", src, err)
		}
	}
}

// Close releases the multicast socket.
func (r *Responder) Close() error {
	return r.conn.Close()
}

// generateServerID derives a 10-character alphanumeric token from a
// fresh UUID; the full UUID is discarded, only its hex digits feed the
// token, which is the first 10 of the UUID's 32 hex digits (spec §6
// "10-character alphanumeric token").
func generateServerID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:10]
}
