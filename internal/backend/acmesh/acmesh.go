// Package acmesh signs CSRs by delegating domain validation and
// issuance to an already configured acme.sh installation using DNS-01
// validation. The DNS plugin credentials are handed to acme.sh through
// environment variables, the same mechanism its dnsapi plugins use.
//
// Example config.ini:
//
//	[gateway]
//	backend = acmesh
//
//	[acmesh]
//	acmesh_binary_path = /root/.acme.sh/acme.sh
//	acmesh_home_path = /root/.acme.sh
//	dns_plugin = dns_pdns
//	dns_plugin_config =
//		pdns_url = https://pdns.example.com
//		pdns_token = your_api_token
//		pdns_serverid = localhost
//		pdns_ttl = 60
//
// The plugin config keys depend on the dns_plugin used. For reference,
// see https://github.com/acmesh-official/acme.sh/wiki/dnsapi
package acmesh

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

const (
	defaultBinaryPath = "/root/.acme.sh/acme.sh"
	defaultHomePath   = "/root/.acme.sh"
	defaultDNSSleep   = 300

	// signTimeout bounds one acme.sh invocation. DNS propagation plus
	// validation can run for minutes; anything past this is hung.
	signTimeout = 900 * time.Second
)

// Backend invokes acme.sh as a subprocess. Construct with New; an
// invalid configuration never yields a usable backend.
type Backend struct {
	binaryPath      string
	homePath        string
	dnsPlugin       string
	dnsPluginConfig string
	dnsSleepSeconds int
	debugMode       bool

	executor Executor
	timeout  time.Duration
	logger   *logrus.Entry
}

// New validates the [acmesh] section and returns a ready backend.
func New(cfg *ini.File, logger *logrus.Entry) (*Backend, error) {
	sec, err := cfg.GetSection("acmesh")
	if err != nil {
		return nil, errors.New("acmesh section missing from config")
	}

	binaryPath := sec.Key("acmesh_binary_path").MustString(defaultBinaryPath)
	if err := checkExecutable(binaryPath); err != nil {
		return nil, fmt.Errorf("acme.sh %q is not executable: %w", binaryPath, err)
	}

	homePath := sec.Key("acmesh_home_path").MustString(defaultHomePath)
	if _, err := os.Stat(homePath); err != nil {
		return nil, fmt.Errorf("acme.sh home path %q does not exist: %w", homePath, err)
	}

	dnsPlugin := sec.Key("dns_plugin").String()
	if dnsPlugin == "" {
		return nil, errors.New("dns_plugin not specified in acmesh section")
	}

	dnsPluginConfig := sec.Key("dns_plugin_config").String()
	if dnsPluginConfig == "" {
		return nil, errors.New("dns_plugin_config not specified in acmesh section")
	}

	return &Backend{
		binaryPath:      binaryPath,
		homePath:        homePath,
		dnsPlugin:       dnsPlugin,
		dnsPluginConfig: dnsPluginConfig,
		dnsSleepSeconds: sec.Key("dns_sleep_time").MustInt(defaultDNSSleep),
		debugMode:       sec.Key("debug_mode").MustBool(false),
		executor:        execExecutor{},
		timeout:         signTimeout,
		logger:          logger.WithField("component", "acmesh-backend"),
	}, nil
}

// checkExecutable verifies the path names a regular file with execute
// permission.
func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return errors.New("not a regular file")
	}
	if info.Mode().Perm()&0o111 == 0 {
		return errors.New("no execute permission")
	}
	return nil
}
