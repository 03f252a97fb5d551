package ircore

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"hash"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// SASLMechanism identifies a supported AUTHENTICATE mechanism.
type SASLMechanism string

const (
	SASLPlain         SASLMechanism = "PLAIN"
	SASLExternal      SASLMechanism = "EXTERNAL"
	SASLScramSHA1     SASLMechanism = "SCRAM-SHA-1"
	SASLScramSHA256   SASLMechanism = "SCRAM-SHA-256"
	SASLScramSHA512   SASLMechanism = "SCRAM-SHA-512"
	SASLECDSANIST256P SASLMechanism = "ECDSA-NIST256P-CHALLENGE"
)

// SASLFailPolicy selects what happens when authentication fails.
type SASLFailPolicy uint8

const (
	SASLFailContinue SASLFailPolicy = iota
	SASLFailReconnect
	SASLFailDisconnect
)

// defaultSASLTimeout is the option sasl_timeout default.
const defaultSASLTimeout = 15 * time.Second

// saslSession drives one AUTHENTICATE exchange. Caching fields are wiped
// on success or failure.
type saslSession struct {
	mechanism SASLMechanism
	username  string
	password  string
	authzid   string
	keyFile   string

	step int

	// SCRAM caching.
	clientFirstBare string
	serverFirstMsg  string
	saltedPassword  []byte
	authMessage     string

	deadline time.Time
}

func newSASLSession(mech SASLMechanism, username, password, authzid, keyFile string) *saslSession {
	return &saslSession{mechanism: mech, username: username, password: password, authzid: authzid, keyFile: keyFile}
}

// Start returns the first AUTHENTICATE payload (already base64-encoded
// where applicable, or "+" for EXTERNAL/mechanism negotiation).
func (s *saslSession) Start() string {
	s.deadline = time.Now().Add(defaultSASLTimeout)

	switch s.mechanism {
	case SASLPlain:
		return b64(fmt.Sprintf("%s\x00%s\x00%s", s.authzid, s.username, s.password))
	case SASLExternal:
		return "+"
	case SASLScramSHA1, SASLScramSHA256, SASLScramSHA512:
		s.clientFirstBare = "n=" + scramEscape(s.username) + ",r=" + scramNonce()
		return b64("n,," + s.clientFirstBare)
	case SASLECDSANIST256P:
		return b64(s.username)
	default:
		return "+"
	}
}

// Next consumes one server AUTHENTICATE chunk (raw, pre-base64-decode)
// and returns the client's reply, or an empty reply when no further reply
// is needed (the caller then awaits the 90x numeric).
func (s *saslSession) Next(serverChunk string) (reply string, err error) {
	raw, decErr := base64.StdEncoding.DecodeString(serverChunk)
	if decErr != nil && serverChunk != "+" {
		return "", &AuthError{Mechanism: string(s.mechanism), Reason: "bad base64 from server"}
	}

	switch s.mechanism {
	case SASLScramSHA1, SASLScramSHA256, SASLScramSHA512:
		return s.scramNext(string(raw))
	case SASLECDSANIST256P:
		return s.signChallenge(raw)
	default:
		return "", &AuthError{Mechanism: string(s.mechanism), Reason: "unexpected continuation"}
	}
}

func (s *saslSession) hashFor() func() hash.Hash {
	switch s.mechanism {
	case SASLScramSHA256:
		return sha256.New
	case SASLScramSHA512:
		return sha512.New
	default:
		return sha1.New
	}
}

func (s *saslSession) scramNext(serverFirst string) (string, error) {
	if s.step == 0 {
		s.serverFirstMsg = serverFirst

		fields := parseSCRAMFields(serverFirst)
		nonce := fields["r"]
		salt, err := base64.StdEncoding.DecodeString(fields["s"])
		if err != nil {
			return "", &AuthError{Mechanism: string(s.mechanism), Reason: "bad salt"}
		}

		var iters int
		fmt.Sscanf(fields["i"], "%d", &iters)
		if iters <= 0 {
			iters = 4096
		}

		newHash := s.hashFor()
		s.saltedPassword = pbkdf2.Key([]byte(s.password), salt, iters, newHash().Size(), newHash)

		clientFinalNoProof := "c=" + b64("n,,") + ",r=" + nonce
		s.authMessage = s.clientFirstBare + "," + serverFirst + "," + clientFinalNoProof

		clientKey := hmacSum(newHash, s.saltedPassword, []byte("Client Key"))
		storedKey := hashSum(newHash, clientKey)
		clientSig := hmacSum(newHash, storedKey, []byte(s.authMessage))

		proof := xorBytes(clientKey, clientSig)

		s.step = 1
		return b64(clientFinalNoProof + ",p=" + base64.StdEncoding.EncodeToString(proof)), nil
	}

	// step 1: server-final verifier check.
	fields := parseSCRAMFields(serverFirst)
	v, ok := fields["v"]
	if !ok {
		return "", &AuthError{Mechanism: string(s.mechanism), Reason: "missing verifier"}
	}

	newHash := s.hashFor()
	serverKey := hmacSum(newHash, s.saltedPassword, []byte("Server Key"))
	expected := base64.StdEncoding.EncodeToString(hmacSum(newHash, serverKey, []byte(s.authMessage)))
	if v != expected {
		return "", &AuthError{Mechanism: string(s.mechanism), Reason: "server signature mismatch"}
	}

	s.wipe()
	return "", nil
}

func (s *saslSession) signChallenge(challenge []byte) (string, error) {
	priv, err := loadECDSAKey(s.keyFile)
	if err != nil {
		return "", &AuthError{Mechanism: string(s.mechanism), Reason: err.Error()}
	}

	r, sig, err := ecdsa.Sign(rand.Reader, priv, challenge)
	if err != nil {
		return "", &AuthError{Mechanism: string(s.mechanism), Reason: err.Error()}
	}

	out := append(r.Bytes(), sig.Bytes()...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// loadECDSAKey loads a PEM-encoded EC private key from path (the
// sasl_key option).
func loadECDSAKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return nil, fmt.Errorf("sasl_key not configured")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sasl_key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("sasl_key %s: not PEM-encoded", path)
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("sasl_key %s: %w", path, err)
	}

	return key, nil
}

func (s *saslSession) wipe() {
	s.clientFirstBare = ""
	s.serverFirstMsg = ""
	s.saltedPassword = nil
	s.authMessage = ""
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func scramEscape(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	return strings.ReplaceAll(s, ",", "=2C")
}

func scramNonce() string {
	buf := make([]byte, 18)
	_, _ = rand.Read(buf)
	return base64.RawStdEncoding.EncodeToString(buf)
}

func parseSCRAMFields(s string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		if len(part) < 2 || part[1] != '=' {
			continue
		}
		out[part[:1]] = part[2:]
	}
	return out
}

func hmacSum(newHash func() hash.Hash, key, data []byte) []byte {
	mac := hmac.New(newHash, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func hashSum(newHash func() hash.Hash, data []byte) []byte {
	h := newHash()
	h.Write(data)
	return h.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// classifySASLNumeric maps the 900-907 numeric range to success/failure
//
func classifySASLNumeric(numeric string) (success, failure bool) {
	switch numeric {
	case RPL_LOGGEDIN, RPL_SASLSUCCESS, RPL_LOGGEDOUT:
		return true, false
	case ERR_NICKLOCKED, ERR_SASLFAIL, ERR_SASLTOOLONG, ERR_SASLABORTED, ERR_SASLALREADY:
		return false, true
	default:
		return false, false
	}
}
