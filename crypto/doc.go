// Package crypto implements the cryptographic service for the nostrdm
// messaging substrate.
//
// This package handles identity key generation, direct-message encryption,
// event signing and verification, gift-wrap envelope construction, invite
// signatures, and the security utilities (secure wipe, constant-time
// comparison, log redaction) the rest of the module relies on.
//
// All operations are exposed twice: as package-level functions for direct
// in-process use, and through the Service interface so consumers can be
// handed a software, worker-proxied, or native-keystore-backed
// implementation without branching call sites.
//
// Example:
//
//	svc, err := crypto.NewService(crypto.Config{Backend: crypto.BackendSoftware})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	keys, err := svc.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Public key:", keys.PublicKey)
package crypto
