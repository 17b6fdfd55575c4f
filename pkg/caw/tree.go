package caw

import (
	"sync"
	"unicode/utf8"
)

// Node is one character step in the subscription tree. A client in
// subscribers is subscribed to the prefix spelled by the path from the root.
// Empty nodes are never pruned.
type Node struct {
	children    map[rune]*Node
	subscribers map[*Client]struct{}
}

func newNode() *Node {
	return &Node{
		children:    make(map[rune]*Node),
		subscribers: make(map[*Client]struct{}),
	}
}

func (n *Node) install(suffix string, c *Client) {
	if suffix == "" {
		if _, ok := n.subscribers[c]; ok {
			return
		}
		n.subscribers[c] = struct{}{}
		c.nodes = append(c.nodes, n)
		return
	}

	r, size := utf8.DecodeRuneInString(suffix)
	next, ok := n.children[r]
	if !ok {
		next = newNode()
		n.children[r] = next
	}
	next.install(suffix[size:], c)
}

func (n *Node) find(eventID string, seen map[*Client]struct{}, out []*Client) []*Client {
	for c := range n.subscribers {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	if eventID == "" {
		return out
	}

	r, size := utf8.DecodeRuneInString(eventID)
	next, ok := n.children[r]
	if !ok {
		return out
	}
	return next.find(eventID[size:], seen, out)
}

func (n *Node) walk(prefix string) *Node {
	for prefix != "" {
		r, size := utf8.DecodeRuneInString(prefix)
		next, ok := n.children[r]
		if !ok {
			return nil
		}
		n = next
		prefix = prefix[size:]
	}
	return n
}

func (n *Node) remove(c *Client) {
	delete(n.subscribers, c)
}

// Tree is a prefix tree of event-id subscriptions. All methods are safe for
// concurrent use; Client.nodes is guarded by the tree lock.
type Tree struct {
	mu   sync.RWMutex
	root *Node
}

// NewTree creates an empty subscription tree.
func NewTree() *Tree {
	return &Tree{root: newNode()}
}

// Install subscribes c to every event whose id starts with prefix.
// The empty prefix matches all events. Installing twice is a no-op.
func (t *Tree) Install(prefix string, c *Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.root.install(prefix, c)
}

// Find returns every client subscribed to a prefix of eventID, each at most once.
func (t *Tree) Find(eventID string) []*Client {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root.find(eventID, make(map[*Client]struct{}), nil)
}

// Remove drops c from every node it was installed into.
func (t *Tree) Remove(c *Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range c.nodes {
		n.remove(c)
	}
	c.nodes = nil
}

// RemovePrefix drops a single subscription of c.
func (t *Tree) RemovePrefix(prefix string, c *Client) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.root.walk(prefix)
	if n == nil {
		return
	}
	n.remove(c)
	for i, rec := range c.nodes {
		if rec == n {
			c.nodes = append(c.nodes[:i], c.nodes[i+1:]...)
			break
		}
	}
}
