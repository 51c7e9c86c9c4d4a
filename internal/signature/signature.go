// Package signature signs and verifies HTTP requests with RSA-SHA256 (PKCS#1 v1.5)
// over a canonical string:
//
//	lower(method) \n path \n headers \n compact(body)
//
// headers holds "name:value" lines for the Host header and every X-Api-* header,
// names lower-cased, values trimmed, sorted by name and joined with \n.
package signature

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
)

// Header carries the base64 signature. It is outside the x-api- namespace so it never
// signs itself.
const Header = "X-Signature"

const signedPrefix = "x-api-"

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMissingSignature = errors.New("missing signature")
	ErrNoKey            = errors.New("signature key not configured")
)

// Canonical builds the string to sign. host may be empty.
func Canonical(method, path, host string, header http.Header, body []byte) string {
	type kv struct{ k, v string }
	var lines []kv
	if h := strings.TrimSpace(host); h != "" {
		lines = append(lines, kv{"host", h})
	}
	for name, values := range header {
		lower := strings.ToLower(name)
		if lower == "host" || !strings.HasPrefix(lower, signedPrefix) {
			continue
		}
		trimmed := make([]string, len(values))
		for i, v := range values {
			trimmed[i] = strings.TrimSpace(v)
		}
		lines = append(lines, kv{lower, strings.Join(trimmed, ",")})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].k < lines[j].k })

	rendered := make([]string, len(lines))
	for i, l := range lines {
		rendered[i] = l.k + ":" + l.v
	}

	var b strings.Builder
	b.WriteString(strings.ToLower(method))
	b.WriteByte('\n')
	b.WriteString(path)
	b.WriteByte('\n')
	b.WriteString(strings.Join(rendered, "\n"))
	b.WriteByte('\n')
	b.Write(compactJSON(body))
	return b.String()
}

// CanonicalRequest canonicalizes r using body, which the caller has already read.
func CanonicalRequest(r *http.Request, body []byte) string {
	host := r.Host
	if host == "" && r.URL != nil {
		host = r.URL.Host
	}
	return Canonical(r.Method, r.URL.Path, host, r.Header, body)
}

func compactJSON(body []byte) []byte {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return body
	}
	return buf.Bytes()
}

// Service holds an optional private key for outbound signatures and an optional public
// key for inbound verification.
type Service struct {
	priv *rsa.PrivateKey
	pub  *rsa.PublicKey
}

func New(priv *rsa.PrivateKey, pub *rsa.PublicKey) *Service {
	return &Service{priv: priv, pub: pub}
}

// Load reads PEM keys from disk. Empty paths leave the corresponding key unset.
func Load(privateKeyPath, publicKeyPath string) (*Service, error) {
	s := &Service{}
	if privateKeyPath != "" {
		data, err := os.ReadFile(privateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		if s.priv, err = ParsePrivateKey(data); err != nil {
			return nil, err
		}
	}
	if publicKeyPath != "" {
		data, err := os.ReadFile(publicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		if s.pub, err = ParsePublicKey(data); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) CanSign() bool   { return s != nil && s.priv != nil }
func (s *Service) CanVerify() bool { return s != nil && s.pub != nil }

func (s *Service) Sign(canonical string) (string, error) {
	if !s.CanSign() {
		return "", ErrNoKey
	}
	h := sha256.Sum256([]byte(canonical))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.priv, crypto.SHA256, h[:])
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func (s *Service) Verify(canonical, signature string) error {
	if !s.CanVerify() {
		return ErrNoKey
	}
	if signature == "" {
		return ErrMissingSignature
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return ErrInvalidSignature
	}
	h := sha256.Sum256([]byte(canonical))
	if err := rsa.VerifyPKCS1v15(s.pub, crypto.SHA256, h[:], sig); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// SignRequest sets the signature header on an outbound request whose body is body.
func (s *Service) SignRequest(req *http.Request, body []byte) error {
	sig, err := s.Sign(CanonicalRequest(req, body))
	if err != nil {
		return err
	}
	req.Header.Set(Header, sig)
	return nil
}

func (s *Service) VerifyRequest(r *http.Request, body []byte) error {
	return s.Verify(CanonicalRequest(r, body), r.Header.Get(Header))
}

// ParsePrivateKey accepts PKCS#8 or PKCS#1 PEM.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("private key: no PEM block")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pk1, err1 := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err1 != nil {
			return nil, fmt.Errorf("private key: %w", err)
		}
		return pk1, nil
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key: not RSA")
	}
	return rsaKey, nil
}

// ParsePublicKey accepts PKIX or PKCS#1 PEM.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("public key: no PEM block")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		pk1, err1 := x509.ParsePKCS1PublicKey(block.Bytes)
		if err1 != nil {
			return nil, fmt.Errorf("public key: %w", err)
		}
		return pk1, nil
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key: not RSA")
	}
	return rsaKey, nil
}
