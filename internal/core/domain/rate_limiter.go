// Package domain concentra entidades e estruturas centrais do rate limiter.
package domain

import "time"

// ClientKey identifica o cliente cujo contador está sendo avaliado (normalmente o IP).
type ClientKey string

// LoopbackKey é a identidade usada quando a requisição não traz nenhum endereço
// utilizável ou quando vem da própria máquina.
const LoopbackKey ClientKey = "127.0.0.1"

func (k ClientKey) IsLoopback() bool {
	return k == LoopbackKey
}

type RateLimitRule struct {
	ProductionRequests int
	LoopbackRequests   int
}

type RateLimitRequest struct {
	IP ClientKey
}

// Outcome é o resultado de uma verificação no store: admitido com saldo
// restante, ou rejeitado.
type Outcome struct {
	Admitted  bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func Admitted(limit, remaining int, resetAt time.Time) Outcome {
	return Outcome{Admitted: true, Limit: limit, Remaining: remaining, ResetAt: resetAt}
}

func Rejected(limit int, resetAt time.Time) Outcome {
	return Outcome{Admitted: false, Limit: limit, Remaining: 0, ResetAt: resetAt}
}

type Decision struct {
	Outcome
	Identifier ClientKey
}
