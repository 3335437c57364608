package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/casper-network/casper-node-go/crypto/identity"
	"github.com/casper-network/casper-node-go/dial"
)

// peersCommand is a read-only diagnostic: it lists the peers the outgoing
// connection manager reports as connected, in the table-printed style the
// teacher's own CLI diagnostics use.
var peersCommand = &cli.Command{
	Name:  "peers",
	Usage: "list connected peers",
	Flags: []cli.Flag{configFlag},
	Action: func(c *cli.Context) error {
		// A standalone `peers` invocation has no live manager to query; it
		// builds a fresh manager, which has no connected peers, so it prints
		// "no connected peers" and no table.
		mgr := dial.NewManager(dial.DefaultConfig())
		renderPeerTable(mgr.ConnectedPeers())
		return nil
	},
}

func renderPeerTable(connected []identity.NodeId) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Node ID", "State"})
	for _, id := range connected {
		table.Append([]string{id.String(), color.GreenString("connected")})
	}
	if len(connected) == 0 {
		fmt.Fprintln(os.Stdout, color.YellowString("no connected peers"))
		return
	}
	table.Render()
}
