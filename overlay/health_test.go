package overlay

import (
	"bufio"
	"math/rand"
	"net"
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/require"

	"github.com/casper-network/casper-node-go/crypto/identity"
	"github.com/casper-network/casper-node-go/dial"
	"github.com/casper-network/casper-node-go/wire"
)

func newTestNetwork() *Network {
	return &Network{
		cfg:        DefaultConfig(),
		dialMgr:    dial.NewManager(dial.DefaultConfig()),
		peers:      map[identity.NodeId]*Peer{},
		syncing:    mapset.NewSet[identity.NodeId](),
		excluded:   mapset.NewSet[identity.NodeId](),
		validators: mapset.NewSet[identity.NodeId](),
	}
}

func newPipePeer(t *testing.T, id identity.NodeId) (*Peer, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	p := newPeer(server, id, dial.Addr{}, true, wire.DefaultMaxFrameLength)
	p.bufReader = bufio.NewReader(server)
	return p, client
}

func TestCheckPeerHealthSendsPingWhenDue(t *testing.T) {
	n := newTestNetwork()
	id := nodeID(20)
	p, client := newPipePeer(t, id)
	n.registerPeer(p)

	done := make(chan wire.Envelope, 1)
	go func() {
		env, err := wire.ReadEnvelope(bufio.NewReader(client), wire.DefaultMaxFrameLength)
		require.NoError(t, err)
		done <- env
	}()

	n.checkPeerHealth(time.Now(), rand.New(rand.NewSource(1)))

	select {
	case env := <-done:
		require.Equal(t, wire.KindPing, env.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected a ping to be sent")
	}

	n.mu.RLock()
	_, stillConnected := n.peers[id]
	n.mu.RUnlock()
	require.True(t, stillConnected)
}

func TestCheckPeerHealthSeversPeerOverPongLimit(t *testing.T) {
	n := newTestNetwork()
	id := nodeID(21)
	p, _ := newPipePeer(t, id)
	n.registerPeer(p)

	now := time.Now()
	for i := 0; i < pongLimitForTest+1; i++ {
		n.dialMgr.NotePingSent(id, uint64(i), now)
	}

	n.checkPeerHealth(now.Add(dial.PingInterval+time.Second), rand.New(rand.NewSource(1)))

	n.mu.RLock()
	_, stillConnected := n.peers[id]
	n.mu.RUnlock()
	require.False(t, stillConnected)
}

// pongLimitForTest mirrors the unexported dial.pongLimit constant's value
// ((1 + PingRetries) * 2) without reaching into the dial package's internals.
const pongLimitForTest = int(1+dial.PingRetries) * 2
