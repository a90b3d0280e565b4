// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"

	"github.com/jwinr/TechNexus-sub000/internal/core/domain"
)

// CounterStore incrementa e avalia o contador de uma chave de forma atômica.
type CounterStore interface {
	Check(limit int, key domain.ClientKey) (domain.Outcome, error)
}

// StatsRecorder persiste eventos de admissão. Implementações são best-effort.
type StatsRecorder interface {
	Record(ctx context.Context, ev domain.AdmissionEvent) error
}
