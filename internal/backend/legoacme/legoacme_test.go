package legoacme

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testConfig(t *testing.T, contents string) *ini.File {
	t.Helper()

	f, err := ini.LoadSources(ini.LoadOptions{AllowPythonMultilineValues: true}, []byte(contents))
	if err != nil {
		t.Fatalf("failed to parse test config: %v", err)
	}
	return f
}

func validSection(t *testing.T) string {
	t.Helper()

	return fmt.Sprintf(`[legoacme]
directory_url = https://acme-staging-v02.api.letsencrypt.org/directory
email = hostmaster@example.com
account_key_path = %s
dns_plugin = pdns
dns_plugin_config =
	PDNS_API_URL = https://pdns.example.com
	PDNS_API_KEY = secret
`, filepath.Join(t.TempDir(), "account.key"))
}

func TestNew(t *testing.T) {
	b, err := New(testConfig(t, validSection(t)), testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if b.dnsPlugin != "pdns" {
		t.Errorf("Expected dns_plugin pdns, got %s", b.dnsPlugin)
	}
	if b.propagation != 300*time.Second {
		t.Errorf("Expected default propagation 300s, got %v", b.propagation)
	}
}

func TestNew_MissingSection(t *testing.T) {
	_, err := New(testConfig(t, "[gateway]\nbackend = legoacme\n"), testLogger())
	if err == nil {
		t.Error("Expected error when legoacme section is missing")
	}
}

func TestNew_RequiredKeys(t *testing.T) {
	required := []string{"directory_url", "email", "account_key_path", "dns_plugin", "dns_plugin_config"}

	for _, missing := range required {
		t.Run(missing, func(t *testing.T) {
			cfg := testConfig(t, validSection(t))
			cfg.Section("legoacme").DeleteKey(missing)

			if _, err := New(cfg, testLogger()); err == nil {
				t.Errorf("Expected error when %s is missing", missing)
			}
		})
	}
}

func TestNew_EABRequiresBothKeys(t *testing.T) {
	cfg := testConfig(t, validSection(t)+"eab_kid = kid-only\n")

	if _, err := New(cfg, testLogger()); err == nil {
		t.Error("Expected error when only eab_kid is set")
	}
}

func TestDecodeCSR(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: "www.example.com"},
		DNSNames: []string{"www.example.com", "example.com"},
	}, key)
	if err != nil {
		t.Fatalf("failed to create CSR: %v", err)
	}

	csrPem := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der})

	csr, err := decodeCSR(csrPem)
	if err != nil {
		t.Fatalf("decodeCSR() failed: %v", err)
	}

	if csr.Subject.CommonName != "www.example.com" {
		t.Errorf("Expected CN www.example.com, got %s", csr.Subject.CommonName)
	}
}

func TestDecodeCSR_Invalid(t *testing.T) {
	if _, err := decodeCSR([]byte("not pem at all")); err == nil {
		t.Error("Expected error for non-PEM input")
	}
}

func TestLoadOrCreateAccountKey(t *testing.T) {
	b, err := New(testConfig(t, validSection(t)), testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	// First call generates and persists a key.
	first, err := b.loadOrCreateAccountKey()
	if err != nil {
		t.Fatalf("loadOrCreateAccountKey() failed: %v", err)
	}

	info, err := os.Stat(b.accountKeyPath)
	if err != nil {
		t.Fatalf("account key was not persisted: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Expected account key mode 0600, got %v", info.Mode().Perm())
	}

	// Second call loads the same key.
	second, err := b.loadOrCreateAccountKey()
	if err != nil {
		t.Fatalf("loadOrCreateAccountKey() reload failed: %v", err)
	}

	firstKey, ok := first.(*ecdsa.PrivateKey)
	if !ok {
		t.Fatalf("Expected ECDSA key, got %T", first)
	}
	secondKey, ok := second.(*ecdsa.PrivateKey)
	if !ok {
		t.Fatalf("Expected ECDSA key, got %T", second)
	}

	if !firstKey.Equal(secondKey) {
		t.Error("Reloaded account key differs from the generated one")
	}
}
