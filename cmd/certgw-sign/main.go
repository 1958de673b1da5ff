package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"go_certgw/internal/backend"
	"go_certgw/internal/backend/registry"
	"go_certgw/internal/config"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to the INI configuration file (default $CERTGW_CONFIG or config.ini)")
	csrPath := flag.String("csr", "", "path to the PEM-encoded CSR (required)")
	subjectDN := flag.String("dn", "", "subject distinguished name (informational)")
	sans := flag.String("san", "", "comma-separated subject alternative names (required, first names the artifact)")
	email := flag.String("email", "", "contact email (informational)")
	outPath := flag.String("out", "", "write the certificate chain here instead of stdout")
	flag.Parse()

	if *csrPath == "" {
		log.Fatalf("-csr is required")
	}

	names := splitNames(*sans)
	if len(names) == 0 {
		log.Fatalf("-san requires at least one name")
	}

	path := *configPath
	if path == "" {
		path = getEnv("CERTGW_CONFIG", "config.ini")
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	csr, err := os.ReadFile(*csrPath)
	if err != nil {
		log.Fatalf("Failed to read CSR: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	be, err := registry.New(cfg.Backend, cfg.File, logrus.NewEntry(logger))
	if err != nil {
		log.Fatalf("Failed to construct %s backend: %v", cfg.Backend, err)
	}

	chain, err := be.Sign(context.Background(), backend.SigningRequest{
		CSR:             csr,
		SubjectDN:       *subjectDN,
		SubjectAltNames: names,
		Email:           *email,
	})
	if err != nil {
		log.Fatalf("Signing failed: %v", err)
	}

	if *outPath == "" {
		os.Stdout.WriteString(chain)
		return
	}

	if err := os.WriteFile(*outPath, []byte(chain), 0o644); err != nil {
		log.Fatalf("Failed to write chain: %v", err)
	}
	log.Printf("Wrote certificate chain for %s to %s", names[0], *outPath)
}

// splitNames parses a comma-separated SAN list, dropping empty entries.
func splitNames(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
