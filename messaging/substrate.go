package messaging

import "context"

// Recipient names a party reachable over the substrate. RoutingHint is
// substrate specific and travels opaque through this service.
type Recipient struct {
	Address     string `json:"address"`
	RoutingHint string `json:"routing_hint,omitempty"`
}

// Handler is the receive callback. The substrate hands us the decrypted
// payload together with the sender routing hint and the correlation topic it
// arrived under.
type Handler func(payload []byte, hint string, topic string)

// Substrate is the confidentiality and integrity preserving transport between
// parties. It is an external collaborator: this repo only depends on the
// interface. The substrate may deliver concurrently or sequentially; every
// consumer here must be correct under either.
type Substrate interface {
	// Send encrypts payload to the recipient and hands it to the transport.
	// The topic is carried alongside for reply correlation.
	Send(ctx context.Context, to Recipient, topic string, payload []byte) error

	// Subscribe registers the receive callback for an address. The returned
	// function cancels the subscription.
	Subscribe(address string, h Handler) (func(), error)
}
