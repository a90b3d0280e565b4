package domain

import "errors"

var (
	// ErrInvalidConfig sinaliza capacidade, janela ou limites inválidos na inicialização.
	ErrInvalidConfig = errors.New("invalid rate limiter configuration")
	ErrInvalidLimit  = errors.New("limit must be positive")
	ErrForbidden     = errors.New("missing or invalid api key")
)

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrForbidden)
}
