package repository

import "errors"

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un conflicto (ej: duplicado, constraint violation).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indica que los datos de entrada son inválidos.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indica que la operación no está implementada por este driver.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnauthorized indica que la operación no está autorizada.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrIdentityLinked indica que la identidad externa ya pertenece a otro usuario.
	ErrIdentityLinked = errors.New("external identity linked to another user")

	// ErrLastIdentity indica que no se puede eliminar la última identidad de un usuario.
	ErrLastIdentity = errors.New("cannot remove last identity")

	// ErrSessionEnded indica que la sesión ya fue cerrada o expiró.
	ErrSessionEnded = errors.New("session ended")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
