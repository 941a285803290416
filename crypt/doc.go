// Package crypt implements the PDF standard security handler: password
// authentication and object decryption for encrypted documents.
//
// Supported schemes cover revisions 2 through 6: RC4 with 40- and 128-bit
// keys, AES-128 (CBC) and AES-256. Authentication yields an [AuthResult]
// rather than an error; a wrong password is AuthDenied, and the result never
// reveals which internal comparison failed. Password comparisons use
// constant-time primitives.
//
// The handler only gates and decrypts. What a denied document may still
// expose (metadata, nothing) is policy decided by the caller.
package crypt
