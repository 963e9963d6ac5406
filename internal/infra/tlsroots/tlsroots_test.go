package tlsroots

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeCert writes a self-signed localhost certificate with the given
// serial and returns its PEM.
func writeCert(t *testing.T, certFile, keyFile string, serial int64) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: "memkv-test"},
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certFile, certPEM, 0o644); err != nil {
		t.Fatal(err)
	}
	if keyFile != "" {
		keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
		if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return certPEM
}

func TestPool_AddCertPEM(t *testing.T) {
	dir := t.TempDir()
	certPEM := writeCert(t, filepath.Join(dir, "ca.crt"), "", 1)
	junk := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("junk")})
	keyOnly := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: []byte("k")})

	tests := []struct {
		name    string
		data    []byte
		wantErr error
		anyErr  bool
	}{
		{"one cert", certPEM, nil, false},
		{"two certs", append(append([]byte{}, certPEM...), certPEM...), nil, false},
		{"cert after key block", append(append([]byte{}, keyOnly...), certPEM...), nil, false},
		{"empty", nil, ErrNoCertsFound, true},
		{"not pem", []byte("hello"), ErrNoCertsFound, true},
		{"only key", keyOnly, ErrNoCertsFound, true},
		{"bad der", junk, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEmptyPool().AddCertPEM(tt.data)
			if (err != nil) != tt.anyErr {
				t.Fatalf("AddCertPEM() error = %v, wantErr %v", err, tt.anyErr)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("AddCertPEM() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadCAFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ca.crt")
	writeCert(t, path, "", 1)

	p, err := LoadCAFile(path)
	if err != nil {
		t.Fatalf("LoadCAFile() error = %v", err)
	}
	tr := p.Transport()
	if tr.TLSClientConfig == nil || tr.TLSClientConfig.RootCAs != p.Pool() {
		t.Error("Transport() does not trust the pool")
	}
	if tr == http.DefaultTransport {
		t.Error("Transport() must not return the shared default transport")
	}

	if _, err := LoadCAFile(filepath.Join(dir, "missing.crt")); err == nil {
		t.Error("LoadCAFile() of a missing file should fail")
	}
}

func TestLoadKeyPair_Invalid(t *testing.T) {
	dir := t.TempDir()
	cert, key := filepath.Join(dir, "tls.crt"), filepath.Join(dir, "tls.key")
	_ = os.WriteFile(cert, []byte("invalid"), 0o644)
	_ = os.WriteFile(key, []byte("invalid"), 0o600)

	if _, err := LoadKeyPair(cert, key); err == nil {
		t.Error("LoadKeyPair() should reject invalid files")
	}
	if _, err := LoadKeyPair(filepath.Join(dir, "nope.crt"), key); err == nil {
		t.Error("LoadKeyPair() should reject missing files")
	}
}

func TestKeyPair_ServesTLS(t *testing.T) {
	dir := t.TempDir()
	cert, key := filepath.Join(dir, "tls.crt"), filepath.Join(dir, "tls.key")
	writeCert(t, cert, key, 1)

	kp, err := LoadKeyPair(cert, key)
	if err != nil {
		t.Fatal(err)
	}
	// Serve through ServerConfig alone, the way the admin server does, so
	// the certificate can only come from GetCertificate.
	ln, err := tls.Listen("tcp", "127.0.0.1:0", kp.ServerConfig())
	if err != nil {
		t.Fatal(err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	roots, err := LoadCAFile(cert)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{Transport: roots.Transport(), Timeout: 5 * time.Second}
	resp, err := client.Get("https://" + ln.Addr().String())
	if err != nil {
		t.Fatalf("GET over TLS: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
}

func TestKeyPair_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	cert, key := filepath.Join(dir, "tls.crt"), filepath.Join(dir, "tls.key")
	writeCert(t, cert, key, 1)

	kp, err := LoadKeyPair(cert, key,
		WithDebounce(20*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- kp.Watch(ctx) }()
	time.Sleep(50 * time.Millisecond)

	writeCert(t, cert, key, 2)

	deadline := time.Now().Add(3 * time.Second)
	for {
		c, _ := kp.GetCertificate(nil)
		leaf, err := x509.ParseCertificate(c.Certificate[0])
		if err != nil {
			t.Fatal(err)
		}
		if leaf.SerialNumber.Int64() == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("serial = %d, certificate was not reloaded", leaf.SerialNumber.Int64())
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Watch() did not return after cancel")
	}
}
