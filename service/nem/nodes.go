package nem

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the NIS HTTP API port.
const DefaultPort = 7890

// Network is a NEM network name.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// NetworkForAddress infers the network from an address: mainnet addresses start with N.
func NetworkForAddress(address string) Network {
	if strings.HasPrefix(NormalizeAddress(address), "N") {
		return Mainnet
	}
	return Testnet
}

// Node is a NIS node.
type Node struct {
	Host string
	Port int
}

// ParseNode parses "host" or "host:port". Without a port, DefaultPort is used.
func ParseNode(s string) (Node, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Node{}, fmt.Errorf("empty node address")
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port present.
		return Node{Host: s, Port: DefaultPort}, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Node{}, fmt.Errorf("invalid port in node address %q", s)
	}
	return Node{Host: host, Port: port}, nil
}

func (n Node) String() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// URL returns the full request URL for path on this node.
func (n Node) URL(path string) string {
	return "http://" + n.String() + path
}

// NodeSet is an ordered list of nodes, tried first to last.
type NodeSet []Node

var (
	mainnetHosts = []string{"bigalice3.nem.ninja", "alice2.nem.ninja", "go.nem.ninja"}
	testnetHosts = []string{"bob.nem.ninja", "104.128.226.60", "192.3.61.243"}
)

// DefaultNodes returns the built-in node list for a network.
func DefaultNodes(network Network) NodeSet {
	hosts := mainnetHosts
	if network == Testnet {
		hosts = testnetHosts
	}
	nodes := make(NodeSet, 0, len(hosts))
	for _, h := range hosts {
		nodes = append(nodes, Node{Host: h, Port: DefaultPort})
	}
	return nodes
}

// ParseNodes parses a list of node addresses, skipping blank entries.
func ParseNodes(entries []string) (NodeSet, error) {
	var nodes NodeSet
	for _, entry := range entries {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		n, err := ParseNode(entry)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}
