package transform

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
)

// Sealer encrypts values to age X25519 recipients and decrypts them with an
// identity. A Sealer without an identity can write but not read.
type Sealer struct {
	identity   *age.X25519Identity
	recipients []age.Recipient
}

// NewSealer parses an AGE-SECRET-KEY-1... identity and age1... recipients.
// The identity's own recipient is always included, so a store can read what it wrote.
// Pass an empty identity for a write-only sealer; at least one recipient is then required.
func NewSealer(identity string, recipientKeys ...string) (*Sealer, error) {
	s := &Sealer{}
	if identity != "" {
		id, err := age.ParseX25519Identity(identity)
		if err != nil {
			return nil, fmt.Errorf("parsing identity: %w", err)
		}
		s.identity = id
		s.recipients = append(s.recipients, id.Recipient())
	}
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		s.recipients = append(s.recipients, recipient)
	}
	if len(s.recipients) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	return s, nil
}

func (s *Sealer) TransformOut(plaintext string) (string, error) {
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, s.recipients...)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := io.WriteString(writer, plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return encodeText(ciphertext.Bytes()), nil
}

func (s *Sealer) TransformIn(ciphertext string) (string, error) {
	if s.identity == nil {
		return "", fmt.Errorf("decrypting: sealer has no identity")
	}
	raw, err := decodeText(ciphertext)
	if err != nil {
		return "", err
	}
	reader, err := age.Decrypt(bytes.NewReader(raw), s.identity)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return string(plaintext), nil
}
