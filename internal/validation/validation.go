// Package validation checks operator-supplied identifiers before they
// reach the chain or the database.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/mod/semver"
)

// ValidateContractAddress checks a verifier contract address: 0x followed
// by 40 hex digits. Mixed-case addresses must carry a valid checksum.
func ValidateContractAddress(addr string) error {
	if addr == "" {
		return errors.New("contract address is empty")
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return errors.New("invalid address: must start with 0x")
	}
	if !common.IsHexAddress(addr) {
		return errors.New("invalid address: must be 0x followed by 40 hex characters")
	}
	body := addr[2:]
	if strings.ToLower(body) != body && strings.ToUpper(body) != body {
		if common.HexToAddress(addr).Hex() != addr {
			return errors.New("invalid address: checksum mismatch")
		}
	}
	return nil
}

// CheckTargetURL reports a problem with a URL about to be submitted. The
// contract fetches whatever it is given, so this only catches obvious
// typos; an empty string is left to the submission path to reject.
func CheckTargetURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("unparsable url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme %q is not http or https", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url has no host")
	}
	return nil
}

var keyNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._-]{0,63}$`)

// ValidateKeyName checks the label given to a new API key.
func ValidateKeyName(name string) error {
	if !keyNameRegex.MatchString(name) {
		return errors.New("key name must be 1-64 characters of letters, digits, space, dot, underscore or hyphen")
	}
	return nil
}

// ValidateSubmissionID checks that id is a UUID as issued by the journal.
func ValidateSubmissionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid submission id: %w", err)
	}
	return nil
}

// NormalizeVersion strips a leading 'v'.
func NormalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// AtLeast reports whether version satisfies the minimum. An empty minimum
// always passes; an invalid version never does.
func AtLeast(version, minimum string) (bool, error) {
	if NormalizeVersion(minimum) == "" {
		return true, nil
	}
	m := "v" + NormalizeVersion(minimum)
	if !semver.IsValid(m) {
		return false, fmt.Errorf("invalid minimum version %q", minimum)
	}
	v := "v" + NormalizeVersion(version)
	if !semver.IsValid(v) {
		return false, nil
	}
	return semver.Compare(v, m) >= 0, nil
}
