package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrEngine     = errors.New("engine error")
	ErrRepository = errors.New("repository error")
	ErrValidation = errors.New("validation error")
)

func wrapEngine(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrEngine, err)
}

func wrapRepo(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrRepository, err)
}
