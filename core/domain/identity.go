package domain

import (
	"fmt"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"
)

const (
	DefaultUID   = 1000
	DefaultGID   = 1000
	DefaultUser  = "appuser"
	DefaultGroup = "appgroup"
	maxID        = 65535
)

// ExecutionIdentity is the non-privileged user the service runs as.
// Numeric ids are fixed so ownership is portable across hosts.
type ExecutionIdentity struct {
	UID   int    `json:"uid"`
	GID   int    `json:"gid"`
	User  string `json:"user"`
	Group string `json:"group"`
}

func DefaultIdentity() ExecutionIdentity {
	return ExecutionIdentity{
		UID:   DefaultUID,
		GID:   DefaultGID,
		User:  DefaultUser,
		Group: DefaultGroup,
	}
}

// Privileged is true when any part of the identity maps to root
func (i ExecutionIdentity) Privileged() bool {
	return i.UID == 0 || i.GID == 0 || i.User == "root" || i.Group == "root"
}

// Owner returns the numeric uid:gid pair used for USER and --chown
func (i ExecutionIdentity) Owner() string {
	return fmt.Sprintf("%d:%d", i.UID, i.GID)
}

func (i ExecutionIdentity) Validate() error {
	if i.Privileged() {
		return fmt.Errorf("%w: %s (%s:%s)", ErrPrivilegedIdentity, i.Owner(), i.User, i.Group)
	}
	if i.UID < 0 || i.UID > maxID || i.GID < 0 || i.GID > maxID {
		return fmt.Errorf("%w: ids out of range: %s", ErrInvalidDescriptor, i.Owner())
	}
	for _, n := range []string{i.User, i.Group} {
		if errs := validation.IsDNS1123Label(n); len(errs) != 0 {
			return fmt.Errorf("%w: invalid account name %q: %s", ErrInvalidDescriptor, n, strings.Join(errs, "; "))
		}
	}
	return nil
}

// IsRootUser reports whether a USER instruction argument resolves to root.
// Accepts "name", "uid", "name:group" and "uid:gid" forms.
func IsRootUser(user string) bool {
	user = strings.TrimSpace(user)
	if user == "" {
		// an empty USER means the image default, which is root
		return true
	}
	u, g, _ := strings.Cut(user, ":")
	if u == "root" || g == "root" {
		return true
	}
	if n, err := strconv.Atoi(u); err == nil && n == 0 {
		return true
	}
	if n, err := strconv.Atoi(g); err == nil && n == 0 {
		return true
	}
	return false
}
