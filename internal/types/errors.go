package types

import (
	"errors"
	"fmt"
)

var (
	ErrDataNotFound     = errors.New("data not found")
	ErrInvalidFormat    = errors.New("invalid format")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrNoDevices        = errors.New("no devices supplied")
	ErrMissingDevice    = errors.New("device directory does not exist")
	ErrCorruptArchive   = errors.New("corrupted gzip archive, read as plain text")
	ErrCorruptIndex     = errors.New("corrupt cache index")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error in field %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

type LoaderError struct {
	Path string
	Err  error
}

func (e LoaderError) Error() string {
	return fmt.Sprintf("failed to load from %s: %v", e.Path, e.Err)
}

func (e LoaderError) Unwrap() error {
	return e.Err
}

type ParseError struct {
	File string
	Line int
	Err  error
}

func (e ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse error in %s at line %d: %v", e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("parse error at line %d: %v", e.Line, e.Err)
}

func (e ParseError) Unwrap() error {
	return e.Err
}

// DeviceError attributes a failure to one device of the fleet
type DeviceError struct {
	Device string
	Err    error
}

func (e DeviceError) Error() string {
	return fmt.Sprintf("device %s: %v", e.Device, e.Err)
}

func (e DeviceError) Unwrap() error {
	return e.Err
}
