// TLS dissection (spec §4.1, optional): "if a key file is supplied,
// decrypt the record layer; emit plaintext to SIP dissector. Without
// keys, yield none."
//
// Decryption is deliberately narrow, matching what capture-side TLS
// decryption tools have supported for this use case for decades: static
// RSA key-exchange cipher suites only (TLS_RSA_WITH_AES_128_CBC_SHA and
// its SHA-256 variant). (EC)DHE suites provide forward secrecy and are
// not decryptable from a captured private key — a TCP flow negotiating
// one yields ErrNoKey for that session, same as having no key at all.
package dissect

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"hash"
	"os"
)

// TLS record content types (RFC 5246 §6.2.1).
const (
	tlsContentChangeCipherSpec = 20
	tlsContentAlert            = 21
	tlsContentHandshake        = 22
	tlsContentApplicationData  = 23
)

const tlsRecordHeaderLen = 5

// TLSRecord is the record attached to a Packet at packet.ProtoTLS: the
// record layer envelope, decrypted when possible.
type TLSRecord struct {
	ContentType uint8
	Version     uint16
	Plaintext   []byte // nil when decryption was not possible
}

// TLSKeyring loads a PEM RSA private key (config key tls.keyfile,
// spec §6) and decrypts the static-RSA-key-exchange sessions of TCP
// flows whose server endpoint matches tls.server.
type TLSKeyring struct {
	key *rsa.PrivateKey
}

// LoadTLSKeyring reads an RSA private key from a PEM file.
func LoadTLSKeyring(path string) (*TLSKeyring, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tls: read keyfile: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("tls: no PEM block in keyfile")
	}

	var key *rsa.PrivateKey
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		key = k
	} else {
		generic, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("tls: parse private key: %w", err)
		}
		rk, ok := generic.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("tls: private key is not RSA")
		}
		key = rk
	}
	return &TLSKeyring{key: key}, nil
}

// tlsFlowState accumulates the handshake material needed to derive
// session keys for one TCP 4-tuple: the two random nonces and, once the
// ClientKeyExchange is seen, the decrypted premaster secret and derived
// keys.
type tlsFlowState struct {
	clientRandom [32]byte
	serverRandom [32]byte
	cipherSuite  uint16
	haveRandoms  bool

	clientWriteKey, serverWriteKey []byte
	clientWriteIV, serverWriteIV   []byte
	clientMACKey, serverMACKey     []byte
	keysReady                      bool
}

// ParseRecord splits the next TLS record off data, returning the record
// and the residual bytes for the next record in the same segment.
func ParseRecord(data []byte) (rec *TLSRecord, residual []byte, err error) {
	if len(data) < tlsRecordHeaderLen {
		return nil, nil, fmt.Errorf("%w: tls record header", ErrPacketTooShort)
	}
	contentType := data[0]
	version := binary.BigEndian.Uint16(data[1:3])
	length := int(binary.BigEndian.Uint16(data[3:5]))
	if len(data) < tlsRecordHeaderLen+length {
		return nil, nil, ErrNeedMoreData
	}
	fragment := data[tlsRecordHeaderLen : tlsRecordHeaderLen+length]
	residual = data[tlsRecordHeaderLen+length:]
	return &TLSRecord{ContentType: contentType, Version: version, Plaintext: fragment}, residual, nil
}

// Decrypt attempts to recover the plaintext of an application-data record
// for the given flow state. Returns ErrNoKey if the negotiated cipher
// suite isn't one of the supported static-RSA suites, or keys haven't
// been derived yet (handshake not fully observed).
func (k *TLSKeyring) Decrypt(state *tlsFlowState, ciphertext []byte, fromClient bool) ([]byte, error) {
	if k == nil || !state.keysReady {
		return nil, ErrNoKey
	}
	key, iv, macKey := state.serverWriteKey, state.serverWriteIV, state.serverMACKey
	if fromClient {
		key, iv, macKey = state.clientWriteKey, state.clientWriteIV, state.clientMACKey
	}
	if len(ciphertext) < aes.BlockSize || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: tls ciphertext not block-aligned", ErrDecodeSkip)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: aes key: %v", ErrDecodeSkip, err)
	}
	mode := cipher.NewCBCDecrypter(block, iv)
	plain := make([]byte, len(ciphertext))
	mode.CryptBlocks(plain, ciphertext)

	plain = stripPKCS7Padding(plain)
	macLen := macHasher(state.cipherSuite)().Size()
	if len(plain) < macLen {
		return nil, fmt.Errorf("%w: tls record shorter than MAC", ErrDecodeSkip)
	}
	payload := plain[:len(plain)-macLen]
	gotMAC := plain[len(plain)-macLen:]
	mac := hmac.New(macHasher(state.cipherSuite), macKey)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), gotMAC) {
		return nil, fmt.Errorf("%w: tls MAC mismatch", ErrDecodeSkip)
	}
	return payload, nil
}

func macHasher(cipherSuite uint16) func() hash.Hash {
	if cipherSuite == cipherSuiteRSAAES128CBCSHA256 {
		return sha256.New
	}
	return sha1.New
}

func stripPKCS7Padding(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	padLen := int(b[len(b)-1])
	if padLen <= 0 || padLen > len(b) {
		return b
	}
	return b[:len(b)-padLen]
}

// Supported static-RSA cipher suite identifiers (RFC 5246 appendix A.5).
const (
	cipherSuiteRSAAES128CBCSHA    = 0x002F
	cipherSuiteRSAAES128CBCSHA256 = 0x003C
)

// deriveKeys implements the TLS 1.0-1.2 PRF-based key_block derivation
// (RFC 5246 §6.3) for the supported AES-128-CBC suites, given an already
// RSA-decrypted 48-byte premaster secret.
func deriveKeys(state *tlsFlowState, premaster []byte) {
	master := prf(premaster, "master secret", append(state.clientRandom[:], state.serverRandom[:]...), 48)
	keyBlock := prf(master, "key expansion", append(state.serverRandom[:], state.clientRandom[:]...), 2*(20+16+16))

	macLen := 20
	keyLen := 16
	ivLen := 16
	off := 0
	state.clientMACKey = keyBlock[off : off+macLen]
	off += macLen
	state.serverMACKey = keyBlock[off : off+macLen]
	off += macLen
	state.clientWriteKey = keyBlock[off : off+keyLen]
	off += keyLen
	state.serverWriteKey = keyBlock[off : off+keyLen]
	off += keyLen
	state.clientWriteIV = keyBlock[off : off+ivLen]
	off += ivLen
	state.serverWriteIV = keyBlock[off : off+ivLen]
	state.keysReady = true
}

// parseHandshakeRecord scans a plaintext TLS handshake record for the
// ClientHello, ServerHello, and ClientKeyExchange messages needed to
// derive session keys, updating state in place. A ClientHello or
// ServerHello split across more than one TLS record is not reassembled
// — that session falls back to ErrNoKey, matching the narrow scope
// documented above.
func parseHandshakeRecord(keyring *TLSKeyring, state *tlsFlowState, data []byte) {
	for len(data) >= 4 {
		msgType := data[0]
		length := int(data[1])<<16 | int(data[2])<<8 | int(data[3])
		if len(data) < 4+length {
			return
		}
		body := data[4 : 4+length]
		switch msgType {
		case 1: // ClientHello
			if len(body) >= 34 {
				copy(state.clientRandom[:], body[2:34])
				state.haveRandoms = true
			}
		case 2: // ServerHello
			if len(body) >= 34 {
				copy(state.serverRandom[:], body[2:34])
				off := 34
				if off < len(body) {
					off += 1 + int(body[off])
				}
				if off+2 <= len(body) {
					state.cipherSuite = binary.BigEndian.Uint16(body[off : off+2])
				}
			}
		case 16: // ClientKeyExchange
			if keyring != nil && state.haveRandoms && len(body) >= 2 {
				encLen := int(binary.BigEndian.Uint16(body[:2]))
				if len(body) >= 2+encLen {
					if pre, err := keyring.recoverPremaster(body[2 : 2+encLen]); err == nil {
						if state.cipherSuite == cipherSuiteRSAAES128CBCSHA || state.cipherSuite == cipherSuiteRSAAES128CBCSHA256 {
							deriveKeys(state, pre)
						}
					}
				}
			}
		}
		data = data[4+length:]
	}
}

// prf implements the TLS 1.0-1.2 P_SHA256-backed pseudo-random function
// over secret/label/seed, producing outLen bytes.
func prf(secret []byte, label string, seed []byte, outLen int) []byte {
	labelSeed := append([]byte(label), seed...)
	var out []byte
	a := labelSeed
	for len(out) < outLen {
		mac := hmac.New(sha256.New, secret)
		mac.Write(a)
		a = mac.Sum(nil)

		mac = hmac.New(sha256.New, secret)
		mac.Write(a)
		mac.Write(labelSeed)
		out = append(out, mac.Sum(nil)...)
	}
	return out[:outLen]
}

// recoverPremaster decrypts an RSA-encrypted premaster secret from a
// ClientKeyExchange message using the configured private key.
func (k *TLSKeyring) recoverPremaster(encrypted []byte) ([]byte, error) {
	pre, err := rsa.DecryptPKCS1v15(nil, k.key, encrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: rsa premaster decrypt: %v", ErrNoKey, err)
	}
	if len(pre) != 48 {
		return nil, fmt.Errorf("%w: premaster wrong length", ErrDecodeSkip)
	}
	return pre, nil
}
