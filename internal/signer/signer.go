package signer

// Signer produces detached signatures over rendered manifests
type Signer interface {
	// SignDetached returns an armored detached signature of data
	SignDetached(data []byte) ([]byte, error)

	// PublicKey returns the armored public key clients verify against
	PublicKey() ([]byte, error)
}
