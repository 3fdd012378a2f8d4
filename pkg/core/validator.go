package core

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Validator checks frames, method names and settings before they reach the
// wire
type Validator struct {
	maxMethodNameLength int
	maxRequestIDLength  int
	maxFrameSize        int
	minTimeout          time.Duration
	maxTimeout          time.Duration
	methodNamePattern   *regexp.Regexp
	requestIDPattern    *regexp.Regexp
}

// NewValidator creates a validator with default limits
func NewValidator() *Validator {
	return &Validator{
		maxMethodNameLength: 128,
		maxRequestIDLength:  64,
		maxFrameSize:        5 * 1024 * 1024,
		minTimeout:          100 * time.Millisecond,
		maxTimeout:          10 * time.Minute,
		methodNamePattern:   regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]*$`),
		requestIDPattern:    regexp.MustCompile(`^[a-zA-Z0-9_-]+$`),
	}
}

// ValidateMethodName rejects empty, oversized or non-identifier method names
func (v *Validator) ValidateMethodName(method string) error {
	if method == "" {
		return fmt.Errorf("method name cannot be empty")
	}
	if len(method) > v.maxMethodNameLength {
		return fmt.Errorf("method name length %d exceeds maximum %d", len(method), v.maxMethodNameLength)
	}
	if !v.methodNamePattern.MatchString(method) {
		return fmt.Errorf("method name %q contains invalid characters", method)
	}
	return nil
}

// ValidateRequestID checks the shape of a request id
func (v *Validator) ValidateRequestID(id string) error {
	if id == "" {
		return fmt.Errorf("request ID cannot be empty")
	}
	if len(id) > v.maxRequestIDLength {
		return fmt.Errorf("request ID exceeds maximum length of %d characters", v.maxRequestIDLength)
	}
	if !v.requestIDPattern.MatchString(id) {
		return fmt.Errorf("request ID contains invalid characters")
	}
	return nil
}

// ValidateFrame checks an encoded frame: size, UTF-8 and a top-level JSON
// object
func (v *Validator) ValidateFrame(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("frame cannot be empty")
	}
	if len(data) > v.maxFrameSize {
		return fmt.Errorf("frame size %d exceeds maximum %d", len(data), v.maxFrameSize)
	}
	if !utf8.Valid(data) {
		return fmt.Errorf("frame contains invalid UTF-8 sequences")
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' || trimmed[len(trimmed)-1] != '}' {
		return fmt.Errorf("invalid JSON structure: must be an object")
	}
	return nil
}

// ValidateTimeout bounds per-call timeouts
func (v *Validator) ValidateTimeout(timeout time.Duration) error {
	if timeout < v.minTimeout {
		return fmt.Errorf("timeout %v is below minimum %v", timeout, v.minTimeout)
	}
	if timeout > v.maxTimeout {
		return fmt.Errorf("timeout %v exceeds maximum %v", timeout, v.maxTimeout)
	}
	return nil
}

// ValidateStringContent rejects null bytes and invalid UTF-8
func (v *Validator) ValidateStringContent(s string) error {
	if strings.ContainsRune(s, 0) {
		return fmt.Errorf("string contains null bytes")
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("string contains invalid UTF-8")
	}
	return nil
}

// ValidateAddress rejects device addresses that cannot be a host[:port]
func (v *Validator) ValidateAddress(address string) error {
	if err := v.ValidateStringContent(address); err != nil {
		return fmt.Errorf("address: %w", err)
	}
	if strings.ContainsAny(address, " \t\r\n/?#@") {
		return fmt.Errorf("address %q must be host or host:port", address)
	}
	return nil
}

// SetMaxFrameSize overrides the frame size limit
func (v *Validator) SetMaxFrameSize(size int) {
	if size > 0 {
		v.maxFrameSize = size
	}
}
