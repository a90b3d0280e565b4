package domain

import "time"

type Verdict string

const (
	VerdictAdmitted    Verdict = "admitted"
	VerdictRateLimited Verdict = "rate_limited"
	VerdictForbidden   Verdict = "forbidden"
	VerdictError       Verdict = "error"
)

// AdmissionEvent descreve uma decisão tomada pelo gate para uma requisição.
// Nunca carrega a credencial apresentada pelo cliente.
type AdmissionEvent struct {
	Identifier ClientKey
	Verdict    Verdict
	Method     string
	Path       string
	At         time.Time
}
