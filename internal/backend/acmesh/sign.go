package acmesh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go_certgw/internal/backend"
)

// Sign stages the CSR to a private scratch directory, invokes acme.sh
// in DNS-01 mode, and returns the issued certificate chain.
//
// acme.sh writes the chain to <home>/certificates/<sans[0]>.pem, a
// stable identity-keyed path that persists across calls. Concurrent
// calls sharing the same first subject alternative name race on it;
// callers serialize per identity (see the keylock package).
func (b *Backend) Sign(ctx context.Context, req backend.SigningRequest) (string, error) {
	if len(req.SubjectAltNames) == 0 {
		return "", errors.New("signing request has no subject alternative names")
	}

	// Derived fresh per call; never cached or shared across calls.
	pluginEnv, err := backend.ParsePluginConfig(b.dnsPluginConfig)
	if err != nil {
		return "", err
	}

	logger := b.logger.WithFields(logrus.Fields{
		"invocation": uuid.New().String(),
		"identity":   req.SubjectAltNames[0],
		"subject":    req.SubjectDN,
	})

	tmpDir, err := os.MkdirTemp("", "certgw-acmesh")
	if err != nil {
		return "", fmt.Errorf("failed to create CSR staging directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	csrFile := filepath.Join(tmpDir, "csr.pem")
	if err := os.WriteFile(csrFile, req.CSR, 0o600); err != nil {
		return "", fmt.Errorf("failed to stage CSR: %w", err)
	}

	certsDir := filepath.Join(b.homePath, "certificates")
	if err := os.MkdirAll(certsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create certificates directory: %w", err)
	}
	fullchainFile := filepath.Join(certsDir, req.SubjectAltNames[0]+".pem")

	args := []string{
		"--sign-csr",
		"--csr", csrFile,
		"--dns", b.dnsPlugin,
		"--fullchain-file", fullchainFile,
		"--home", b.homePath,
		"--dnssleep", strconv.Itoa(b.dnsSleepSeconds),
	}
	if b.debugMode {
		args = append(args, "--debug")
	}

	// acme.sh needs the inherited environment (PATH, HOME, ...) in
	// addition to the DNS plugin credentials.
	env := os.Environ()
	for key, value := range pluginEnv {
		env = append(env, key+"="+value)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	logger.Infof("Invoking acme.sh for %d name(s) via %s", len(req.SubjectAltNames), b.dnsPlugin)

	output, exitCode, err := b.executor.Run(ctx, b.binaryPath, args, env)
	if err != nil {
		return "", fmt.Errorf("acme.sh invocation failed: %w", err)
	}

	switch exitCode {
	case 0:
	case 2:
		// acme.sh exits 2 when the certificate was already issued;
		// reuse the existing chain.
		logger.Info("Certificate already issued, returning existing chain")
	default:
		return "", fmt.Errorf("acme.sh exited with error %d and output:\n%s", exitCode, output)
	}

	chain, err := os.ReadFile(fullchainFile)
	if err != nil {
		return "", fmt.Errorf("failed to read certificate chain %q: %w", fullchainFile, err)
	}

	logger.Infof("Issued certificate chain at %s", fullchainFile)
	return string(chain), nil
}
