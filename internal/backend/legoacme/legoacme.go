// Package legoacme signs CSRs against an ACME directory directly,
// using go-acme/lego instead of an external acme.sh installation. It
// honors the same signing contract and the same dns_plugin /
// dns_plugin_config configuration grammar: the credential block is
// translated into environment variables, which is how lego's named
// DNS-01 providers pick up their credentials.
package legoacme

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge/dns01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/providers/dns"
	"github.com/go-acme/lego/v4/registration"
	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"go_certgw/internal/backend"
)

const defaultPropagationSeconds = 300

// Backend obtains certificates through an embedded ACME client.
type Backend struct {
	directoryURL    string
	email           string
	accountKeyPath  string
	dnsPlugin       string
	dnsPluginConfig string
	eabKid          string
	eabHmacKey      string
	propagation     time.Duration

	logger *logrus.Entry
}

// New validates the [legoacme] section and returns a ready backend.
func New(cfg *ini.File, logger *logrus.Entry) (*Backend, error) {
	sec, err := cfg.GetSection("legoacme")
	if err != nil {
		return nil, errors.New("legoacme section missing from config")
	}

	b := &Backend{
		directoryURL:    sec.Key("directory_url").String(),
		email:           sec.Key("email").String(),
		accountKeyPath:  sec.Key("account_key_path").String(),
		dnsPlugin:       sec.Key("dns_plugin").String(),
		dnsPluginConfig: sec.Key("dns_plugin_config").String(),
		eabKid:          sec.Key("eab_kid").String(),
		eabHmacKey:      sec.Key("eab_hmac_key").String(),
		propagation:     time.Duration(sec.Key("dns_propagation_seconds").MustInt(defaultPropagationSeconds)) * time.Second,
		logger:          logger.WithField("component", "legoacme-backend"),
	}

	switch {
	case b.directoryURL == "":
		return nil, errors.New("directory_url not specified in legoacme section")
	case b.email == "":
		return nil, errors.New("email not specified in legoacme section")
	case b.accountKeyPath == "":
		return nil, errors.New("account_key_path not specified in legoacme section")
	case b.dnsPlugin == "":
		return nil, errors.New("dns_plugin not specified in legoacme section")
	case b.dnsPluginConfig == "":
		return nil, errors.New("dns_plugin_config not specified in legoacme section")
	}

	if (b.eabKid == "") != (b.eabHmacKey == "") {
		return nil, errors.New("eab_kid and eab_hmac_key must be set together")
	}

	return b, nil
}

// user implements registration.User for lego.
type user struct {
	email        string
	registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *user) GetEmail() string                        { return u.email }
func (u *user) GetRegistration() *registration.Resource { return u.registration }
func (u *user) GetPrivateKey() crypto.PrivateKey        { return u.key }

// Sign obtains a certificate for the CSR via the configured ACME
// directory, solving DNS-01 challenges with the named lego provider.
func (b *Backend) Sign(ctx context.Context, req backend.SigningRequest) (string, error) {
	if len(req.SubjectAltNames) == 0 {
		return "", errors.New("signing request has no subject alternative names")
	}

	csr, err := decodeCSR(req.CSR)
	if err != nil {
		return "", err
	}

	pluginEnv, err := backend.ParsePluginConfig(b.dnsPluginConfig)
	if err != nil {
		return "", err
	}
	// lego's named providers read their credentials from the process
	// environment; export the translated block before building one.
	for key, value := range pluginEnv {
		if err := os.Setenv(key, value); err != nil {
			return "", fmt.Errorf("failed to export %s for DNS provider: %w", key, err)
		}
	}

	key, err := b.loadOrCreateAccountKey()
	if err != nil {
		return "", err
	}

	u := &user{email: b.email, key: key}

	config := lego.NewConfig(u)
	config.CADirURL = b.directoryURL

	client, err := lego.NewClient(config)
	if err != nil {
		return "", fmt.Errorf("failed to create ACME client: %w", err)
	}

	provider, err := dns.NewDNSChallengeProviderByName(b.dnsPlugin)
	if err != nil {
		return "", fmt.Errorf("failed to initialize DNS provider %q: %w", b.dnsPlugin, err)
	}

	err = client.Challenge.SetDNS01Provider(provider,
		dns01.PropagationWait(b.propagation, false),
	)
	if err != nil {
		return "", fmt.Errorf("failed to set DNS-01 provider: %w", err)
	}

	if err := b.ensureRegistration(client, u); err != nil {
		return "", err
	}

	b.logger.WithFields(logrus.Fields{
		"identity": req.SubjectAltNames[0],
		"subject":  req.SubjectDN,
	}).Infof("Requesting certificate for %d name(s)", len(req.SubjectAltNames))

	res, err := client.Certificate.ObtainForCSR(certificate.ObtainForCSRRequest{
		CSR:    csr,
		Bundle: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to obtain certificate: %w", err)
	}

	return string(res.Certificate), nil
}

// ensureRegistration resolves an existing account for the key, or
// registers a new one (with EAB when configured).
func (b *Backend) ensureRegistration(client *lego.Client, u *user) error {
	if reg, err := client.Registration.ResolveAccountByKey(); err == nil {
		u.registration = reg
		return nil
	}

	var reg *registration.Resource
	var err error
	if b.eabKid != "" {
		reg, err = client.Registration.RegisterWithExternalAccountBinding(registration.RegisterEABOptions{
			TermsOfServiceAgreed: true,
			Kid:                  b.eabKid,
			HmacEncoded:          b.eabHmacKey,
		})
	} else {
		reg, err = client.Registration.Register(registration.RegisterOptions{
			TermsOfServiceAgreed: true,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to register ACME account: %w", err)
	}

	u.registration = reg
	return nil
}

// loadOrCreateAccountKey loads the ECDSA account key from the
// configured path, generating and persisting one on first use.
func (b *Backend) loadOrCreateAccountKey() (crypto.PrivateKey, error) {
	data, err := os.ReadFile(b.accountKeyPath)
	if err == nil {
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("account key %q is not valid PEM", b.accountKeyPath)
		}
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse account key: %w", err)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read account key: %w", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate account key: %w", err)
	}

	keyBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode account key: %w", err)
	}
	keyPem := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})

	if err := os.WriteFile(b.accountKeyPath, keyPem, 0o600); err != nil {
		return nil, fmt.Errorf("failed to save account key: %w", err)
	}

	b.logger.Infof("Generated new ACME account key at %s", b.accountKeyPath)
	return key, nil
}

// decodeCSR parses a PEM-encoded certificate signing request.
func decodeCSR(csrPem []byte) (*x509.CertificateRequest, error) {
	block, _ := pem.Decode(csrPem)
	if block == nil {
		return nil, errors.New("failed to decode CSR PEM block")
	}

	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSR: %w", err)
	}
	return csr, nil
}
