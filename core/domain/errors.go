package domain

import "errors"

var (
	ErrBuildFailed         = errors.New("image build failed")
	ErrBuildNotFound       = errors.New("build not found")
	ErrCastingCommand      = errors.New("casting build command")
	ErrInvalidDescriptor   = errors.New("invalid descriptor")
	ErrInvalidTransition   = errors.New("invalid stage transition")
	ErrManifestMalformed   = errors.New("dependency manifest malformed")
	ErrManifestNotFound    = errors.New("dependency manifest not found")
	ErrMissingBuildID      = errors.New("missing build ID")
	ErrMissingRequirement  = errors.New("missing required package")
	ErrMockError           = errors.New("mock error")
	ErrPrivilegeEscalation = errors.New("privilege escalation after identity drop")
	ErrPrivilegedIdentity  = errors.New("execution identity is privileged")
	ErrUnhealthy           = errors.New("health check failed")
)
