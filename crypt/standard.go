package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/tsawler/vellum/core"
)

// AuthResult is the outcome of a password check.
type AuthResult int

const (
	AuthDenied AuthResult = iota
	AuthUser
	AuthOwner
)

// String returns the result name.
func (r AuthResult) String() string {
	switch r {
	case AuthOwner:
		return "owner"
	case AuthUser:
		return "user"
	default:
		return "denied"
	}
}

// Scheme identifies the encryption algorithm in use.
type Scheme int

const (
	SchemeRC4_40 Scheme = iota
	SchemeRC4_128
	SchemeAES_128
	SchemeAES_256
)

// ErrNotAuthenticated is returned by decryption before a successful
// Authenticate call.
var ErrNotAuthenticated = errors.New("crypt: not authenticated")

// ErrUnsupported is returned for encryption dictionaries this handler does
// not implement (non-Standard filters, unknown revisions).
var ErrUnsupported = errors.New("crypt: unsupported encryption")

// passwordPad is the 32-byte padding string from the PDF specification,
// appended to short passwords for revisions 2-4.
var passwordPad = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// StandardHandler implements the standard security handler.
type StandardHandler struct {
	scheme      Scheme
	version     int    // V entry (1-5)
	revision    int    // R entry (2-6)
	keyLength   int    // bits
	permissions int32  // P entry
	ownerKey    []byte // O
	userKey     []byte // U
	ownerEnc    []byte // OE (R6)
	userEnc     []byte // UE (R6)
	docID       []byte // first element of the trailer /ID array
	encryptMeta bool

	fileKey []byte // set on successful authentication
}

// NewStandardHandler builds a handler from the document's /Encrypt
// dictionary and the first element of the trailer /ID array (empty when the
// document has no ID).
func NewStandardHandler(encryptDict core.Dict, docID []byte) (*StandardHandler, error) {
	if filter, _ := encryptDict.GetName("Filter"); filter != "Standard" {
		return nil, fmt.Errorf("%w: filter %q", ErrUnsupported, filter)
	}

	h := &StandardHandler{
		keyLength:   40,
		encryptMeta: true,
		docID:       docID,
	}

	if v, ok := encryptDict.GetInt("V"); ok {
		h.version = int(v)
	}
	if r, ok := encryptDict.GetInt("R"); ok {
		h.revision = int(r)
	}
	if length, ok := encryptDict.GetInt("Length"); ok {
		h.keyLength = int(length)
	}
	if p, ok := encryptDict.GetInt("P"); ok {
		h.permissions = int32(p)
	}
	if o, ok := encryptDict.GetString("O"); ok {
		h.ownerKey = []byte(o)
	}
	if u, ok := encryptDict.GetString("U"); ok {
		h.userKey = []byte(u)
	}
	if oe, ok := encryptDict.GetString("OE"); ok {
		h.ownerEnc = []byte(oe)
	}
	if ue, ok := encryptDict.GetString("UE"); ok {
		h.userEnc = []byte(ue)
	}
	if em, ok := encryptDict.GetBool("EncryptMetadata"); ok {
		h.encryptMeta = bool(em)
	}

	switch h.version {
	case 1:
		h.scheme = SchemeRC4_40
		h.keyLength = 40
	case 2:
		if h.keyLength <= 40 {
			h.scheme = SchemeRC4_40
		} else {
			h.scheme = SchemeRC4_128
		}
	case 3:
		h.scheme = SchemeRC4_128
	case 4:
		// V4 names its algorithm through the crypt filter dictionary.
		h.scheme = SchemeRC4_128
		if cf, ok := encryptDict.GetDict("CF"); ok {
			if std, ok := cf.GetDict("StdCF"); ok {
				if cfm, _ := std.GetName("CFM"); cfm == "AESV2" {
					h.scheme = SchemeAES_128
				}
			}
		}
	case 5:
		h.scheme = SchemeAES_256
	default:
		return nil, fmt.Errorf("%w: V=%d", ErrUnsupported, h.version)
	}

	if h.revision < 2 || h.revision > 6 {
		return nil, fmt.Errorf("%w: R=%d", ErrUnsupported, h.revision)
	}
	return h, nil
}

// Scheme returns the encryption scheme in use.
func (h *StandardHandler) Scheme() Scheme { return h.scheme }

// Authenticated reports whether a password has been accepted.
func (h *StandardHandler) Authenticated() bool { return h.fileKey != nil }

// Authenticate checks password against the owner and user credentials, in
// that order, and on success stores the file key for decryption. A wrong
// password returns AuthDenied with no indication of which check failed.
func (h *StandardHandler) Authenticate(password string) AuthResult {
	if h.revision == 6 {
		return h.authenticateR6(password)
	}
	if h.authenticateOwner(password) {
		return AuthOwner
	}
	if h.authenticateUser(password) {
		return AuthUser
	}
	return AuthDenied
}

// authenticateUser runs algorithm 6: recompute U from the password and
// compare.
func (h *StandardHandler) authenticateUser(password string) bool {
	key := h.computeFileKey(password)
	computed := h.computeUserValue(key)

	n := 32
	if h.revision >= 3 {
		// Only the first 16 bytes of U are meaningful for R3+.
		n = 16
	}
	if len(computed) < n || len(h.userKey) < n {
		return false
	}
	if subtle.ConstantTimeCompare(computed[:n], h.userKey[:n]) != 1 {
		return false
	}
	h.fileKey = key
	return true
}

// authenticateOwner runs algorithm 7: derive the user password by decrypting
// O with the owner-password key, then authenticate as that user.
func (h *StandardHandler) authenticateOwner(password string) bool {
	digest := md5.Sum(padPassword(password))
	if h.revision >= 3 {
		for i := 0; i < 50; i++ {
			digest = md5.Sum(digest[:])
		}
	}
	key := digest[:h.keyBytes()]

	userPwd := make([]byte, len(h.ownerKey))
	copy(userPwd, h.ownerKey)
	if h.revision >= 3 {
		for i := 19; i >= 0; i-- {
			step := make([]byte, len(key))
			for j := range key {
				step[j] = key[j] ^ byte(i)
			}
			c, err := rc4.NewCipher(step)
			if err != nil {
				return false
			}
			c.XORKeyStream(userPwd, userPwd)
		}
	} else {
		c, err := rc4.NewCipher(key)
		if err != nil {
			return false
		}
		c.XORKeyStream(userPwd, userPwd)
	}

	return h.authenticateUser(string(userPwd))
}

// computeFileKey runs algorithm 2: derive the file encryption key from a
// (user) password for revisions 2-4.
func (h *StandardHandler) computeFileKey(password string) []byte {
	hash := md5.New()
	hash.Write(padPassword(password))
	hash.Write(h.ownerKey)
	p := h.permissions
	hash.Write([]byte{byte(p), byte(p >> 8), byte(p >> 16), byte(p >> 24)})
	hash.Write(h.docID)
	if h.revision >= 4 && !h.encryptMeta {
		hash.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	digest := hash.Sum(nil)

	n := h.keyBytes()
	if h.revision >= 3 {
		for i := 0; i < 50; i++ {
			d := md5.Sum(digest[:n])
			digest = d[:]
		}
	}
	return digest[:n]
}

// computeUserValue runs algorithms 4 and 5: produce the U entry from a file
// key.
func (h *StandardHandler) computeUserValue(key []byte) []byte {
	if h.revision == 2 {
		c, err := rc4.NewCipher(key)
		if err != nil {
			return nil
		}
		out := make([]byte, 32)
		c.XORKeyStream(out, passwordPad)
		return out
	}

	hash := md5.New()
	hash.Write(passwordPad)
	hash.Write(h.docID)
	digest := hash.Sum(nil)

	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil
	}
	out := make([]byte, 16)
	c.XORKeyStream(out, digest[:16])

	for i := 1; i <= 19; i++ {
		step := make([]byte, len(key))
		for j := range key {
			step[j] = key[j] ^ byte(i)
		}
		c, err := rc4.NewCipher(step)
		if err != nil {
			return nil
		}
		c.XORKeyStream(out, out)
	}

	padded := make([]byte, 32)
	copy(padded, out)
	return padded
}

// authenticateR6 implements the AES-256 checks (algorithm 2.A). U and O are
// 48 bytes: a 32-byte hash, an 8-byte validation salt and an 8-byte key salt.
func (h *StandardHandler) authenticateR6(password string) AuthResult {
	if len(h.userKey) < 48 || len(h.ownerKey) < 48 {
		return AuthDenied
	}
	pwd := []byte(password)
	if len(pwd) > 127 {
		pwd = pwd[:127]
	}

	ownerHash := hash2B(pwd, h.ownerKey[32:40], h.userKey[:48])
	if subtle.ConstantTimeCompare(ownerHash, h.ownerKey[:32]) == 1 {
		ikey := hash2B(pwd, h.ownerKey[40:48], h.userKey[:48])
		if key := decryptKeyNoPad(ikey, h.ownerEnc); key != nil {
			h.fileKey = key
			return AuthOwner
		}
		return AuthDenied
	}

	userHash := hash2B(pwd, h.userKey[32:40], nil)
	if subtle.ConstantTimeCompare(userHash, h.userKey[:32]) == 1 {
		ikey := hash2B(pwd, h.userKey[40:48], nil)
		if key := decryptKeyNoPad(ikey, h.userEnc); key != nil {
			h.fileKey = key
			return AuthUser
		}
	}
	return AuthDenied
}

// hash2B is the revision 6 hardened hash (algorithm 2.B).
func hash2B(password, salt, userData []byte) []byte {
	input := append(append(append([]byte{}, password...), salt...), userData...)
	sum := sha256.Sum256(input)
	k := sum[:]

	for round := 0; ; round++ {
		k1 := make([]byte, 0, 64*(len(password)+len(k)+len(userData)))
		for i := 0; i < 64; i++ {
			k1 = append(k1, password...)
			k1 = append(k1, k...)
			k1 = append(k1, userData...)
		}

		block, err := aes.NewCipher(k[:16])
		if err != nil {
			return nil
		}
		e := make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)

		var mod int
		for _, b := range e[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			s := sha256.Sum256(e)
			k = s[:]
		case 1:
			s := sha512.Sum384(e)
			k = s[:]
		case 2:
			s := sha512.Sum512(e)
			k = s[:]
		}

		if round >= 63 && int(e[len(e)-1]) <= round-31 {
			break
		}
	}
	return k[:32]
}

// decryptKeyNoPad decrypts a 32-byte OE/UE value with AES-256-CBC, zero IV,
// no padding, yielding the file key.
func decryptKeyNoPad(key, enc []byte) []byte {
	if len(key) < 32 || len(enc) < 32 {
		return nil
	}
	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil
	}
	out := make([]byte, 32)
	iv := make([]byte, 16)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, enc[:32])
	return out
}

// objectKey derives the per-object key (algorithm 1). For AES-256 the file
// key is used directly.
func (h *StandardHandler) objectKey(objNum, genNum int) []byte {
	if h.scheme == SchemeAES_256 {
		return h.fileKey
	}

	hash := md5.New()
	hash.Write(h.fileKey)
	hash.Write([]byte{byte(objNum), byte(objNum >> 8), byte(objNum >> 16)})
	hash.Write([]byte{byte(genNum), byte(genNum >> 8)})
	if h.scheme == SchemeAES_128 {
		hash.Write([]byte("sAlT"))
	}
	digest := hash.Sum(nil)

	n := len(h.fileKey) + 5
	if n > 16 {
		n = 16
	}
	return digest[:n]
}

// DecryptStream decrypts a stream payload belonging to object objNum/genNum.
func (h *StandardHandler) DecryptStream(data []byte, objNum, genNum int) ([]byte, error) {
	return h.decrypt(data, objNum, genNum)
}

// DecryptString decrypts a string object belonging to object objNum/genNum.
func (h *StandardHandler) DecryptString(data []byte, objNum, genNum int) ([]byte, error) {
	return h.decrypt(data, objNum, genNum)
}

func (h *StandardHandler) decrypt(data []byte, objNum, genNum int) ([]byte, error) {
	if h.fileKey == nil {
		return nil, ErrNotAuthenticated
	}
	key := h.objectKey(objNum, genNum)

	switch h.scheme {
	case SchemeRC4_40, SchemeRC4_128:
		c, err := rc4.NewCipher(key)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(data))
		c.XORKeyStream(out, data)
		return out, nil

	case SchemeAES_128, SchemeAES_256:
		return decryptAESCBC(data, key)
	}
	return nil, ErrUnsupported
}

// decryptAESCBC decrypts an AES-CBC payload whose first 16 bytes are the IV,
// removing PKCS#7 padding.
func decryptAESCBC(data, key []byte) ([]byte, error) {
	if len(data) < aes.BlockSize {
		return nil, errors.New("crypt: AES payload shorter than one block")
	}
	iv := data[:aes.BlockSize]
	ciphertext := data[aes.BlockSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("crypt: AES payload not block aligned")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	if n := len(plaintext); n > 0 {
		pad := int(plaintext[n-1])
		if pad > 0 && pad <= aes.BlockSize && pad <= n {
			plaintext = plaintext[:n-pad]
		}
	}
	return plaintext, nil
}

// keyBytes returns the file key length in bytes, capped at 16 for the
// RC4/AES-128 family.
func (h *StandardHandler) keyBytes() int {
	n := h.keyLength / 8
	if n < 5 {
		n = 5
	}
	if n > 16 {
		n = 16
	}
	return n
}

// padPassword truncates or pads a password to exactly 32 bytes using the
// specification padding string.
func padPassword(password string) []byte {
	pwd := []byte(password)
	if len(pwd) > 32 {
		pwd = pwd[:32]
	}
	out := make([]byte, 32)
	n := copy(out, pwd)
	copy(out[n:], passwordPad)
	return out
}

// Permission bits from the P entry.
const (
	permPrint    = 1 << 2
	permModify   = 1 << 3
	permCopy     = 1 << 4
	permAnnotate = 1 << 5
)

// CanPrint reports whether the permissions allow printing.
func (h *StandardHandler) CanPrint() bool { return h.permissions&permPrint != 0 }

// CanModify reports whether the permissions allow modification.
func (h *StandardHandler) CanModify() bool { return h.permissions&permModify != 0 }

// CanCopy reports whether the permissions allow content copying.
func (h *StandardHandler) CanCopy() bool { return h.permissions&permCopy != 0 }

// CanAnnotate reports whether the permissions allow annotation.
func (h *StandardHandler) CanAnnotate() bool { return h.permissions&permAnnotate != 0 }

// EncryptMetadata reports whether the document metadata stream is encrypted.
func (h *StandardHandler) EncryptMetadata() bool { return h.encryptMeta }
