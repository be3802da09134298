// Package adaptive wraps the two AEADs used for data at rest behind one
// Cipher interface. New picks AES-256-GCM where the CPU accelerates it and
// ChaCha20-Poly1305 elsewhere; NewWithType pins the choice.
//
// Ciphertexts carry their random nonce as a prefix:
//
//	nonce || sealed(plaintext) || tag
//
// so Decrypt needs nothing but the key and the same additional data.
package adaptive
