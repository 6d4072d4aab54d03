package storage

// envelope is the on-disk form of an encrypted session file.
type envelope struct {
	Version int    `json:"version"`
	Salt    []byte `json:"salt"` // argon2id salt, base64 in JSON
	Data    []byte `json:"data"` // nonce || AES-GCM ciphertext of a models.SessionRecord
}

const envelopeVersion = 1
