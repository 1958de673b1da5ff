// Package registry maps configured backend names to constructors.
package registry

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"go_certgw/internal/backend"
	"go_certgw/internal/backend/acmesh"
	"go_certgw/internal/backend/legoacme"
)

// New constructs the named signing backend from its configuration
// section. Construction fails outright on invalid configuration; no
// partially usable backend is returned.
func New(name string, cfg *ini.File, logger *logrus.Entry) (backend.Backend, error) {
	switch name {
	case "acmesh":
		return acmesh.New(cfg, logger)
	case "legoacme":
		return legoacme.New(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}
