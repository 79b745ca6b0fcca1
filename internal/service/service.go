// Package service porte les règles métier de la pharmacie au-dessus des dépôts.
package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrForbidden = errors.New("action non autorisée")
	ErrInvalid   = errors.New("requête invalide")
	ErrConflict  = errors.New("conflit d'état")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Clock est remplacée dans les tests pour ordonner les créations.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}
