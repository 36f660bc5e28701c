package erpdb

import (
	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/erp"
)

// gateway bundles the three ERP ports into the single erp.Gateway the
// workflow consumes: database reads, REST-adapter writes, and the direct
// status corrections.
type gateway struct {
	erp.Reader
	erp.Writer
	erp.Corrector
}

// NewGateway composes the full ERP gateway from its three ports
func NewGateway(reader erp.Reader, writer erp.Writer, corrector erp.Corrector) erp.Gateway {
	return &gateway{Reader: reader, Writer: writer, Corrector: corrector}
}
