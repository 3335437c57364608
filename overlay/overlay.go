// Package overlay implements §4.B, the fully-connected peer overlay network:
// it owns every socket, drives the outgoing connection manager (§4.A, package
// dial) through dial requests, and routes messages to/from peers. Connection
// handling follows the accept-loop/register-unregister pattern read from the
// neo-go p2p server (the pack's only peer-to-peer example), while logging,
// metrics and announcements keep the teacher's go-ethereum idiom.
package overlay

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"math/big"
	mathrand "math/rand"
	"net"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"golang.org/x/sync/errgroup"

	"github.com/casper-network/casper-node-go/crypto/identity"
	"github.com/casper-network/casper-node-go/dial"
	"github.com/casper-network/casper-node-go/ratelimit"
	"github.com/casper-network/casper-node-go/wire"
)

var (
	metricPeersConnected = metrics.NewRegisteredGauge("overlay/peers/connected", nil)
	metricIncomingConns  = metrics.NewRegisteredGauge("overlay/peers/incoming", nil)
	metricMessagesIn     = metrics.NewRegisteredMeter("overlay/messages/in", nil)
	metricMessagesOut    = metrics.NewRegisteredMeter("overlay/messages/out", nil)
	metricGossipSent     = metrics.NewRegisteredMeter("overlay/gossip/sent", nil)
)

// Config bundles the overlay's tunables, per §4.B / §6.
type Config struct {
	BindAddr                 string
	PublicAddr               dial.Addr
	ChainName                string
	MaxFrameLength           uint32
	MaxIncomingPeerConns     int
	GossipInterval           time.Duration
	GossipTargetsPerRequest  int
	RateLimits               ratelimit.Config
}

// DefaultConfig fills in the constants named in §4.B/§6.
func DefaultConfig() Config {
	return Config{
		MaxFrameLength:          wire.DefaultMaxFrameLength,
		MaxIncomingPeerConns:    64,
		GossipInterval:          30 * time.Second,
		GossipTargetsPerRequest: 3,
		RateLimits: ratelimit.Config{
			ValidatorMessagesPerSec:    1000,
			ValidatorBurstMessages:     200,
			ValidatorBytesPerSec:       50 << 20,
			ValidatorBurstBytes:        10 << 20,
			NonValidatorMessagesPerSec: 100,
			NonValidatorBurstMessages:  20,
			NonValidatorBytesPerSec:    5 << 20,
			NonValidatorBurstBytes:     1 << 20,
		},
	}
}

// Peer is one established, bidirectional connection, per §3/§6.
type Peer struct {
	NodeID         identity.NodeId
	Addr           dial.Addr
	Outgoing       bool
	IsSyncing      bool
	conn           net.Conn
	writeMu        sync.Mutex
	bw             *wire.FrameWriter
	bufReader      *bufio.Reader
	limiter        *ratelimit.PeerLimiter
	closed         chan struct{}
	closeOnce      sync.Once
	unregisterOnce sync.Once
}

func newPeer(conn net.Conn, nodeID identity.NodeId, addr dial.Addr, outgoing bool, maxLen uint32) *Peer {
	return &Peer{
		NodeID: nodeID,
		Addr:   addr,
		Outgoing: outgoing,
		conn:   conn,
		bw:     wire.NewFrameWriter(conn, maxLen),
		closed: make(chan struct{}),
	}
}

// Close tears down the connection exactly once (satisfies dial.SendHandle).
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.conn.Close()
	})
}

// Send frames and writes env to the peer, guarded against concurrent
// writers. Outbound payload bytes are metered against the peer's tiered
// byte-rate bucket (§5) before the write; handshake/ping/pong control
// traffic sent before the peer is registered has no limiter yet and goes
// straight through.
func (p *Peer) Send(env wire.Envelope) error {
	if p.limiter != nil && len(env.Payload) > 0 {
		if err := p.limiter.WaitBytes(context.Background(), len(env.Payload)); err != nil {
			return fmt.Errorf("overlay: rate limit wait: %w", err)
		}
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	select {
	case <-p.closed:
		return fmt.Errorf("overlay: peer %s closed", p.NodeID)
	default:
	}
	if err := wire.WriteEnvelope(p.bw, env); err != nil {
		return err
	}
	metricMessagesOut.Mark(1)
	return nil
}

// PeerConnectedEvent, PeerDisconnectedEvent and MessageEvent are the overlay's
// announcements, posted through go-ethereum's event.Feed, matching the
// NewTxsEvent/NewPreconfTxEvent pattern the teacher uses in core/events.go.
type PeerConnectedEvent struct {
	NodeID   identity.NodeId
	Outgoing bool
}

type PeerDisconnectedEvent struct {
	NodeID identity.NodeId
}

type MessageEvent struct {
	From    identity.NodeId
	Payload []byte
	Kind    wire.Kind
}

// Network is the overlay's top-level owner of all sockets.
type Network struct {
	cfg      Config
	id       *identity.Identity
	dialMgr  *dial.Manager

	mu         sync.RWMutex
	peers      map[identity.NodeId]*Peer
	incoming   int
	syncing    mapset.Set[identity.NodeId]
	excluded   mapset.Set[identity.NodeId] // gossip exclude-set: peers we just received an address from
	validators mapset.Set[identity.NodeId] // current era's validators, for rate-limit tiering per §5

	connectedFeed    event.Feed
	disconnectedFeed event.Feed
	messageFeed      event.Feed

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New constructs a Network bound to id's TLS identity and backed by dialMgr.
func New(cfg Config, id *identity.Identity, dialMgr *dial.Manager) *Network {
	return &Network{
		cfg:      cfg,
		id:       id,
		dialMgr:  dialMgr,
		peers:      make(map[identity.NodeId]*Peer),
		syncing:    mapset.NewSet[identity.NodeId](),
		excluded:   mapset.NewSet[identity.NodeId](),
		validators: mapset.NewSet[identity.NodeId](),
	}
}

// SetValidators replaces the current era's validator set, consulted at the
// next peer registration and available for re-tiering existing peers, per
// §5's "non-validators face stricter limits than the current era's
// validators" rule.
func (n *Network) SetValidators(ids []identity.NodeId) {
	next := mapset.NewSet(ids...)
	n.mu.Lock()
	n.validators = next
	for id, p := range n.peers {
		p.limiter = ratelimit.NewPeerLimiter(n.cfg.RateLimits, tierOf(next, id))
	}
	n.mu.Unlock()
}

func tierOf(validators mapset.Set[identity.NodeId], id identity.NodeId) ratelimit.Tier {
	if validators.Contains(id) {
		return ratelimit.TierValidator
	}
	return ratelimit.TierNonValidator
}

// SubscribeConnected, SubscribeDisconnected, SubscribeMessages are the
// Announcements of §6, implemented with event.Feed exactly as the teacher's
// core/events.go posts NewTxsEvent/NewPreconfTxEvent to subscribers.
func (n *Network) SubscribeConnected(ch chan<- PeerConnectedEvent) event.Subscription {
	return n.connectedFeed.Subscribe(ch)
}

func (n *Network) SubscribeDisconnected(ch chan<- PeerDisconnectedEvent) event.Subscription {
	return n.disconnectedFeed.Subscribe(ch)
}

func (n *Network) SubscribeMessages(ch chan<- MessageEvent) event.Subscription {
	return n.messageFeed.Subscribe(ch)
}

// Start brings up the listener and the background dial/housekeeping loops.
func (n *Network) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	group, ctx := errgroup.WithContext(ctx)
	n.group = group

	ln, err := tls.Listen("tcp", n.cfg.BindAddr, n.id.TLSConfig())
	if err != nil {
		cancel()
		return fmt.Errorf("overlay: listen %s: %w", n.cfg.BindAddr, err)
	}
	log.Info("overlay: listening", "addr", n.cfg.BindAddr, "node", n.id.ID)

	group.Go(func() error { return n.acceptLoop(ctx, ln) })
	group.Go(func() error { return n.housekeepingLoop(ctx) })
	group.Go(func() error { return n.gossipLoop(ctx) })
	return nil
}

// Stop cancels all background loops and waits for them to exit.
func (n *Network) Stop() error {
	if n.cancel != nil {
		n.cancel()
	}
	if n.group != nil {
		return n.group.Wait()
	}
	return nil
}

func (n *Network) acceptLoop(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Warn("overlay: accept failed", "err", err)
				continue
			}
		}
		n.mu.RLock()
		tooMany := n.incoming >= n.cfg.MaxIncomingPeerConns
		n.mu.RUnlock()
		if tooMany {
			log.Debug("overlay: rejecting incoming connection, at capacity", "remote", conn.RemoteAddr())
			conn.Close()
			continue
		}
		go n.handleIncoming(ctx, conn)
	}
}

func (n *Network) handleIncoming(ctx context.Context, conn net.Conn) {
	n.mu.Lock()
	n.incoming++
	n.mu.Unlock()
	metricIncomingConns.Update(int64(n.incoming))
	defer func() {
		n.mu.Lock()
		n.incoming--
		n.mu.Unlock()
		metricIncomingConns.Update(int64(n.incoming))
	}()

	peer, err := n.completeHandshake(conn, false, dial.Addr{})
	if err != nil {
		log.Debug("overlay: incoming handshake failed", "remote", conn.RemoteAddr(), "err", err)
		conn.Close()
		return
	}
	n.registerPeer(peer)
	defer n.unregisterPeer(peer)
	n.readLoop(ctx, peer)
}

// DialAndHandshake executes a dial.DialRequest: dial addr, perform the
// mutual TLS + application handshake, and register the resulting peer. The
// outcome is reported back to the dial manager via HandleDialOutcome.
// correlationID ties every log line in this attempt back to the DialRequest
// that triggered it.
func (n *Network) DialAndHandshake(ctx context.Context, addr dial.Addr, correlationID string) {
	d := tls.Dialer{Config: n.id.TLSConfig()}
	conn, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		log.Debug("overlay: dial failed", "addr", addr, "corr", correlationID, "err", err)
		n.dialMgr.HandleDialOutcome(addr, dial.DialFailed, identity.NodeId{}, nil, time.Now())
		return
	}
	peer, err := n.completeHandshake(conn, true, addr)
	if err != nil {
		log.Debug("overlay: outgoing handshake failed", "addr", addr, "corr", correlationID, "err", err)
		conn.Close()
		n.dialMgr.HandleDialOutcome(addr, dial.DialFailed, identity.NodeId{}, nil, time.Now())
		return
	}
	if peer.NodeID == n.id.ID {
		conn.Close()
		n.dialMgr.HandleDialOutcome(addr, dial.DialLoopback, peer.NodeID, nil, time.Now())
		return
	}
	log.Info("overlay: outgoing handshake complete", "addr", addr, "node", peer.NodeID, "corr", correlationID)
	n.dialMgr.HandleDialOutcome(addr, dial.DialSuccessful, peer.NodeID, peer, time.Now())
	n.registerPeer(peer)
	go func() {
		defer n.unregisterPeer(peer)
		n.readLoop(ctx, peer)
	}()
}

// completeHandshake performs the post-TLS application handshake: exchanging
// Handshake envelopes and verifying chain name, per §4.B/§6. The peer's
// NodeId is derived from the TLS certificate fingerprint, not asserted by
// the remote.
func (n *Network) completeHandshake(conn net.Conn, outgoing bool, knownAddr dial.Addr) (*Peer, error) {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil, fmt.Errorf("overlay: not a TLS connection")
	}
	if err := tlsConn.Handshake(); err != nil {
		return nil, fmt.Errorf("overlay: TLS handshake: %w", err)
	}
	nodeID, err := identity.FingerprintConn(tlsConn.ConnectionState())
	if err != nil {
		return nil, err
	}

	bw := wire.NewFrameWriter(conn, n.cfg.MaxFrameLength)
	ours := wire.Handshake{
		ChainName:  n.cfg.ChainName,
		PublicAddr: n.cfg.PublicAddr.String(),
	}
	if err := wire.WriteEnvelope(bw, wire.Envelope{Kind: wire.KindHandshake, Handshake: &ours}); err != nil {
		return nil, fmt.Errorf("overlay: send handshake: %w", err)
	}

	br := newBufReader(conn)
	env, err := wire.ReadEnvelope(br, n.cfg.MaxFrameLength)
	if err != nil {
		return nil, fmt.Errorf("overlay: read handshake: %w", err)
	}
	if env.Kind != wire.KindHandshake || env.Handshake == nil {
		return nil, fmt.Errorf("overlay: expected handshake, got kind %d", env.Kind)
	}
	if env.Handshake.ChainName != n.cfg.ChainName {
		return nil, fmt.Errorf("overlay: chain name mismatch: want %q got %q", n.cfg.ChainName, env.Handshake.ChainName)
	}

	addr := knownAddr
	if !outgoing {
		addr = parsePublicAddr(env.Handshake.PublicAddr)
	}
	peer := newPeer(conn, nodeID, addr, outgoing, n.cfg.MaxFrameLength)
	peer.bufReader = br
	peer.IsSyncing = env.Handshake.IsSyncing
	return peer, nil
}

func (n *Network) registerPeer(p *Peer) {
	n.mu.Lock()
	p.limiter = ratelimit.NewPeerLimiter(n.cfg.RateLimits, tierOf(n.validators, p.NodeID))
	n.peers[p.NodeID] = p
	if p.IsSyncing {
		n.syncing.Add(p.NodeID)
	}
	count := len(n.peers)
	n.mu.Unlock()
	metricPeersConnected.Update(int64(count))
	log.Info("overlay: peer connected", "node", p.NodeID, "outgoing", p.Outgoing)
	n.connectedFeed.Send(PeerConnectedEvent{NodeID: p.NodeID, Outgoing: p.Outgoing})
}

func (n *Network) unregisterPeer(p *Peer) {
	p.unregisterOnce.Do(func() {
		n.mu.Lock()
		delete(n.peers, p.NodeID)
		n.syncing.Remove(p.NodeID)
		count := len(n.peers)
		n.mu.Unlock()
		metricPeersConnected.Update(int64(count))
		p.Close()
		n.dialMgr.HandleConnectionDrop(p.Addr, time.Now())
		n.dialMgr.ForgetHealth(p.NodeID)
		log.Info("overlay: peer disconnected", "node", p.NodeID)
		n.disconnectedFeed.Send(PeerDisconnectedEvent{NodeID: p.NodeID})
	})
}

func (n *Network) readLoop(ctx context.Context, p *Peer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.closed:
			return
		default:
		}
		env, err := wire.ReadEnvelope(p.bufReader, n.cfg.MaxFrameLength)
		if err != nil {
			log.Debug("overlay: read error, dropping peer", "node", p.NodeID, "err", err)
			return
		}
		metricMessagesIn.Mark(1)
		if p.limiter != nil {
			if err := p.limiter.WaitMessage(ctx); err != nil {
				log.Debug("overlay: rate limit wait interrupted, dropping peer", "node", p.NodeID, "err", err)
				return
			}
		}
		switch env.Kind {
		case wire.KindPing:
			if env.Ping != nil {
				_ = p.Send(wire.Envelope{Kind: wire.KindPong, Pong: &wire.Pong{Nonce: env.Ping.Nonce}})
			}
		case wire.KindPong:
			if env.Pong != nil {
				if n.dialMgr.RecordPong(p.NodeID, env.Pong.Nonce) {
					log.Warn("overlay: peer exceeded outstanding pong limit", "node", p.NodeID)
				}
			}
		case wire.KindPayload:
			n.messageFeed.Send(MessageEvent{From: p.NodeID, Payload: env.Payload})
		case wire.KindHandshake:
			log.Warn("overlay: handshake received on established connection", "node", p.NodeID)
		default:
			log.Debug("overlay: unexpected envelope kind on established connection", "node", p.NodeID, "kind", env.Kind)
		}
	}
}

func (n *Network) housekeepingLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	rng := newRand()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dials, _ := n.dialMgr.PerformHousekeeping(now, rng)
			for _, d := range dials {
				go n.DialAndHandshake(ctx, d.Addr, d.CorrelationID)
			}
			n.checkPeerHealth(now, rng)
		}
	}
}

// checkPeerHealth drives §4.A's active health protocol to completion: peers
// whose PING_INTERVAL has elapsed are sent a fresh Ping, and peers whose
// outstanding unanswered pings have reached the pong limit (PING_TIMEOUT
// exceeded PING_RETRIES times over) are severed outright.
func (n *Network) checkPeerHealth(now time.Time, rng *mathrand.Rand) {
	n.mu.RLock()
	connected := make([]identity.NodeId, 0, len(n.peers))
	byID := make(map[identity.NodeId]*Peer, len(n.peers))
	for id, p := range n.peers {
		connected = append(connected, id)
		byID[id] = p
	}
	n.mu.RUnlock()

	due, sever := n.dialMgr.CheckHealth(connected, now)
	for _, id := range sever {
		p, ok := byID[id]
		if !ok {
			continue
		}
		log.Warn("overlay: severing peer, exceeded ping retry limit", "node", id)
		n.unregisterPeer(p)
	}
	for _, id := range due {
		p, ok := byID[id]
		if !ok {
			continue
		}
		nonce := rng.Uint64()
		if err := p.Send(wire.Envelope{Kind: wire.KindPing, Ping: &wire.Ping{Nonce: nonce}}); err != nil {
			log.Debug("overlay: ping send failed", "node", id, "err", err)
			continue
		}
		n.dialMgr.NotePingSent(id, nonce, now)
	}
}

// SendTo routes a payload to one peer by NodeId, per §6 send_message.
func (n *Network) SendTo(peer identity.NodeId, payload []byte) error {
	n.mu.RLock()
	p, ok := n.peers[peer]
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("overlay: no route to %s", peer)
	}
	return p.Send(wire.Envelope{Kind: wire.KindPayload, Payload: payload})
}

// BroadcastToValidators sends payload to every connected peer known (by the
// caller-supplied set) to be a validator in the current era, per §6.
func (n *Network) BroadcastToValidators(validators mapset.Set[identity.NodeId], payload []byte) {
	n.mu.RLock()
	targets := make([]*Peer, 0, len(n.peers))
	for id, p := range n.peers {
		if validators.Contains(id) {
			targets = append(targets, p)
		}
	}
	n.mu.RUnlock()
	for _, p := range targets {
		if err := p.Send(wire.Envelope{Kind: wire.KindPayload, Payload: payload}); err != nil {
			log.Debug("overlay: broadcast send failed", "node", p.NodeID, "err", err)
		}
	}
}

// ConnectedPeerIDs returns the currently connected peers, excluding those
// flagged as still syncing if excludeSyncing is set (§4.B "unsafe-for-syncing
// message filtering").
func (n *Network) ConnectedPeerIDs(excludeSyncing bool) []identity.NodeId {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]identity.NodeId, 0, len(n.peers))
	for id := range n.peers {
		if excludeSyncing && n.syncing.Contains(id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func newBufReader(conn net.Conn) *bufio.Reader {
	return bufio.NewReader(conn)
}

// newRand seeds a math/rand source from crypto/rand, the way the housekeeping
// loop's jittered unblock/backoff timings want a fast, non-cryptographic PRNG
// without a predictable fixed seed.
func newRand() *mathrand.Rand {
	var seed int64
	if n, err := rand.Int(rand.Reader, big.NewInt(0).SetUint64(^uint64(0)>>1)); err == nil {
		seed = n.Int64()
	} else {
		var b [8]byte
		_, _ = rand.Read(b[:])
		seed = int64(binary.BigEndian.Uint64(b[:]))
	}
	return mathrand.New(mathrand.NewSource(seed))
}

func parsePublicAddr(s string) dial.Addr {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return dial.Addr{}
	}
	var port uint16
	fmt.Sscanf(portStr, "%d", &port)
	return dial.Addr{Host: host, Port: port}
}
