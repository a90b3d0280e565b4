package services

import (
	"crypto/subtle"
	"path"
	"strings"

	"github.com/jwinr/TechNexus-sub000/internal/core/domain"
	"github.com/jwinr/TechNexus-sub000/internal/core/ports"
)

// APIKeyService protege um namespace de rotas (ex.: /api) com uma chave fixa.
type APIKeyService struct {
	expected []byte
	prefix   string
}

var _ ports.APIKeyGuard = (*APIKeyService)(nil)

// NewAPIKeyService cria o guard. Com expected vazio, toda rota protegida é negada.
func NewAPIKeyService(expected, protectedPrefix string) *APIKeyService {
	prefix := "/" + strings.Trim(strings.TrimSpace(protectedPrefix), "/")
	return &APIKeyService{expected: []byte(expected), prefix: prefix}
}

func (s *APIKeyService) Prefix() string { return s.prefix }

// Protects informa se o caminho, já normalizado, está dentro do namespace protegido.
func (s *APIKeyService) Protects(p string) bool {
	if s.prefix == "/" {
		return true
	}
	clean := cleanPath(p)
	return clean == s.prefix || strings.HasPrefix(clean, s.prefix+"/")
}

func (s *APIKeyService) Authorize(p, presented string) error {
	if !s.Protects(p) {
		return nil
	}
	if len(s.expected) == 0 {
		return domain.ErrForbidden
	}
	if subtle.ConstantTimeCompare([]byte(presented), s.expected) != 1 {
		return domain.ErrForbidden
	}
	return nil
}

func cleanPath(p string) string {
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}
