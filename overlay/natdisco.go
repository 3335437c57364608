package overlay

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/log"
	natpmp "github.com/jackpal/go-nat-pmp"
	"github.com/pion/stun/v2"
)

// PublicAddrDiscoverer resolves the address other nodes should dial to reach
// this one, for operators running behind NAT who leave PublicAddr unset in
// their config. Casper nodes usually run with a directly routable address,
// but home/cloud-NAT deployments need one of these to learn it, the same gap
// go-ethereum's own p2p/nat.go fills for devp2p nodes.
type PublicAddrDiscoverer interface {
	ExternalAddr(ctx context.Context) (net.IP, error)
}

// pmpDiscoverer asks the LAN gateway directly via NAT-PMP.
type pmpDiscoverer struct {
	gateway net.IP
}

func (d pmpDiscoverer) ExternalAddr(ctx context.Context) (net.IP, error) {
	client := natpmp.NewClient(d.gateway)
	result, err := client.GetExternalAddress()
	if err != nil {
		return nil, fmt.Errorf("nat-pmp: %w", err)
	}
	ip := net.IP(result.ExternalIPAddress[:])
	return ip, nil
}

// MapPort installs a port mapping on the gateway for lifetime seconds,
// re-issued periodically by the caller (NAT-PMP leases expire).
func (d pmpDiscoverer) MapPort(internal, external int, lifetimeSeconds int) error {
	client := natpmp.NewClient(d.gateway)
	_, err := client.AddPortMapping("tcp", internal, external, lifetimeSeconds)
	if err != nil {
		return fmt.Errorf("nat-pmp: map port %d->%d: %w", internal, external, err)
	}
	return nil
}

// stunDiscoverer asks a public STUN server for our server-reflexive address,
// the fallback when no NAT-PMP/UPnP gateway answers (symmetric or
// carrier-grade NAT, cloud load balancers, etc).
type stunDiscoverer struct {
	server string // host:port, e.g. "stun.l.google.com:19302"
}

func (d stunDiscoverer) ExternalAddr(ctx context.Context) (net.IP, error) {
	conn, err := net.Dial("udp4", d.server)
	if err != nil {
		return nil, fmt.Errorf("stun: dial %s: %w", d.server, err)
	}
	defer conn.Close()

	client, err := stun.NewClient(conn)
	if err != nil {
		return nil, fmt.Errorf("stun: new client: %w", err)
	}
	defer client.Close()

	message := stun.MustBuild(stun.TransactionID, stun.BindingRequest)

	var resultIP net.IP
	var resultErr error
	done := make(chan struct{})
	err = client.Do(message, func(res stun.Event) {
		defer close(done)
		if res.Error != nil {
			resultErr = res.Error
			return
		}
		var xorAddr stun.XORMappedAddress
		if getErr := xorAddr.GetFrom(res.Message); getErr != nil {
			resultErr = getErr
			return
		}
		resultIP = xorAddr.IP
	})
	if err != nil {
		return nil, fmt.Errorf("stun: do: %w", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("stun: %s: timed out", d.server)
	}
	if resultErr != nil {
		return nil, fmt.Errorf("stun: %s: %w", d.server, resultErr)
	}
	if resultIP == nil {
		return nil, fmt.Errorf("stun: %s: no XOR-MAPPED-ADDRESS in response", d.server)
	}
	return resultIP, nil
}

// DiscoverPublicAddr tries NAT-PMP against gateway first (cheap, LAN-only,
// no round trip to the internet), then falls back to STUN against
// stunServer. UPnP gateway discovery (github.com/huin/goupnp) is the third
// rung operators can wire in by implementing PublicAddrDiscoverer the same
// way; it is not attempted here by default since most consumer routers now
// answer NAT-PMP and a STUN fallback already covers the rest.
func DiscoverPublicAddr(ctx context.Context, gateway net.IP, stunServer string) (net.IP, error) {
	if gateway != nil {
		ip, err := (pmpDiscoverer{gateway: gateway}).ExternalAddr(ctx)
		if err == nil {
			return ip, nil
		}
		log.Debug("overlay: nat-pmp discovery failed, falling back to stun", "gateway", gateway, "err", err)
	}
	if stunServer == "" {
		return nil, fmt.Errorf("nat discovery: no gateway reachable and no stun server configured")
	}
	return (stunDiscoverer{server: stunServer}).ExternalAddr(ctx)
}
