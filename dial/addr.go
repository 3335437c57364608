// Package dial implements §4.A, the Outgoing Connection Manager: a per-peer
// state machine driving every known address toward Connected, emitting
// DialRequest effects the caller (the overlay, §4.B) must execute.
package dial

import "fmt"

// Addr is a network endpoint (host + port), per §3 PeerAddress. Nodes
// advertise a public address distinct from their bind address; if the bind
// port is zero the actually bound port is substituted by the caller before
// constructing an Addr.
type Addr struct {
	Host string
	Port uint16
}

func (a Addr) String() string { return fmt.Sprintf("%s:%d", a.Host, a.Port) }
