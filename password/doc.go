// Package password hashes and verifies credentials for the signin path.
//
// Two encodings are produced:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>   (Argon2)
//	$2a$<cost>$<salt+hash>                                          (Bcrypt)
//
// [Dispatch] verifies either encoding, so accounts created under one hasher
// keep working after the service switches to the other. [Hasher.NeedsRehash]
// reports when a stored hash should be replaced after a successful signin.
//
// # Architecture boundaries
//
// Strength rules live in package policy. This package accepts any non-empty
// password and only turns it into an opaque hash.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Log plaintext passwords.
package password
