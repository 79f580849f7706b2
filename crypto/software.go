package crypto

import "github.com/opd-ai/nostrdm/event"

// softwareService implements Service with in-process cryptography. It is
// stateless; every method delegates to the package-level functions.
type softwareService struct{}

func (s *softwareService) GenerateKeyPair() (*KeyPair, error) {
	return GenerateKeyPair()
}

func (s *softwareService) EncryptDirectMessage(plaintext, recipientPublicKey, senderPrivateKey string) (string, error) {
	return EncryptDirectMessage(plaintext, recipientPublicKey, senderPrivateKey)
}

func (s *softwareService) DecryptDirectMessage(ciphertext, senderPublicKey, recipientPrivateKey string) (string, error) {
	return DecryptDirectMessage(ciphertext, senderPublicKey, recipientPrivateKey)
}

func (s *softwareService) SignEvent(unsigned *event.Event, privateKey string) (*event.Event, error) {
	return SignEvent(unsigned, privateKey)
}

func (s *softwareService) VerifyEventSignature(ev *event.Event) bool {
	return VerifyEventSignature(ev)
}

func (s *softwareService) EncryptGiftWrap(rumor *event.Event, senderPrivateKey, recipientPublicKey string) (*event.Event, error) {
	return EncryptGiftWrap(rumor, senderPrivateKey, recipientPublicKey)
}

func (s *softwareService) DecryptGiftWrap(wrap *event.Event, recipientPrivateKey string) (*event.Event, error) {
	return DecryptGiftWrap(wrap, recipientPrivateKey)
}

func (s *softwareService) DeriveSharedSecret(privateKey, publicKey string) ([]byte, error) {
	return DeriveSharedSecret(privateKey, publicKey)
}

func (s *softwareService) GenerateInviteID() (string, error) {
	return GenerateInviteID()
}

func (s *softwareService) SignInviteData(payload map[string]interface{}, privateKey string) (string, error) {
	return SignInviteData(payload, privateKey)
}

func (s *softwareService) VerifyInviteSignature(payload map[string]interface{}, signature, publicKey string) bool {
	return VerifyInviteSignature(payload, signature, publicKey)
}

func (s *softwareService) EncryptInviteData(plaintext string, key []byte) (string, error) {
	return EncryptInviteData(plaintext, key)
}

func (s *softwareService) DecryptInviteData(ciphertext string, key []byte) (string, error) {
	return DecryptInviteData(ciphertext, key)
}

func (s *softwareService) GenerateSecureRandom(n int) ([]byte, error) {
	return GenerateSecureRandom(n)
}
