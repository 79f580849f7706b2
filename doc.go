// Package nostrdm implements the secure messaging substrate of an
// end-to-end-encrypted direct-messaging client over a public relay
// network.
//
// The substrate has three components: the crypto service (key
// management, wire-level encryption, event signing, gift-wrap envelope
// construction), the message store (durable message log and outgoing
// retry queue with per-record at-rest encryption), and the retry
// coordinator (exponential backoff with jitter plus per-relay circuit
// breakers). This package wires the three together; the controller that
// orchestrates sends over a relay transport is an external collaborator
// programmed against the RelayPublisher interface.
//
// Example:
//
//	options := nostrdm.NewOptions()
//	options.IdentitySecret = keys.PrivateKey
//	options.EncryptAtRest = true
//
//	client, err := nostrdm.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Kill()
package nostrdm
