// Package environment classifies where the process is running and, from
// that, which directory holds its configuration.
package environment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ahrav/mountgate/pkg/common/fsutil"
)

// MarkerFile is the configuration file whose presence signals that the
// configuration root is usable.
const MarkerFile = ".env"

// DefaultMountPath is where the storage volume is mounted when MOUNT_PATH
// is not set.
const DefaultMountPath = "/mnt/storage"

// ErrUnknownMode is returned when a forced mode is not recognised.
var ErrUnknownMode = errors.New("unknown environment mode")

// Mode distinguishes a developer workstation from a deployed instance.
type Mode string

const (
	ModeLocal    Mode = "local"
	ModeDeployed Mode = "deployed"
)

// ParseMode converts a string to a Mode with validation.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeLocal, ModeDeployed:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Environment is resolved once at startup and handed to every component
// that needs to know where configuration lives.
type Environment struct {
	Mode Mode
	// Root is the configuration root: the working directory in local mode,
	// the mount path when deployed.
	Root string
	// Marker is the full path of the configuration file under Root.
	Marker string
}

// Local returns a local-development environment rooted at dir.
func Local(dir string) Environment {
	return Environment{Mode: ModeLocal, Root: dir, Marker: filepath.Join(dir, MarkerFile)}
}

// Deployed returns a deployed environment rooted at the mount path.
func Deployed(mountPath string) Environment {
	if mountPath == "" {
		mountPath = DefaultMountPath
	}
	return Environment{Mode: ModeDeployed, Root: mountPath, Marker: filepath.Join(mountPath, MarkerFile)}
}

// IsLocal reports whether the environment is a developer workstation.
func (e Environment) IsLocal() bool { return e.Mode == ModeLocal }

// Detector resolves the Environment from the host. The function fields
// default to the os package and are replaced in tests.
type Detector struct {
	GOOS      string
	Getenv    func(string) string
	UserHome  func() (string, error)
	Getwd     func() (string, error)
	FileExist func(path string) bool
}

// NewDetector returns a Detector backed by the real host.
func NewDetector() Detector {
	return Detector{
		GOOS:      runtime.GOOS,
		Getenv:    os.Getenv,
		UserHome:  os.UserHomeDir,
		Getwd:     os.Getwd,
		FileExist: fsutil.IsRegularFile,
	}
}

// Detect classifies the host. APP_ENVIRONMENT forces a mode; otherwise the
// presence of gcloud application default credentials means local
// development. Deployed mode roots configuration at MOUNT_PATH.
func (d Detector) Detect() (Environment, error) {
	mode := ModeDeployed
	if forced := d.Getenv("APP_ENVIRONMENT"); forced != "" {
		m, err := ParseMode(forced)
		if err != nil {
			return Environment{}, err
		}
		mode = m
	} else if d.CredentialsExist() {
		mode = ModeLocal
	}

	if mode == ModeDeployed {
		return Deployed(d.Getenv("MOUNT_PATH")), nil
	}

	wd, err := d.Getwd()
	if err != nil {
		return Environment{}, fmt.Errorf("resolving working directory: %w", err)
	}
	return Local(wd), nil
}

// CredentialsExist reports whether local cloud credential material is
// present for the current user.
func (d Detector) CredentialsExist() bool {
	home, err := d.UserHome()
	if err != nil || home == "" {
		return false
	}
	return d.FileExist(CredentialsPath(d.GOOS, home))
}

// CredentialsPath returns the location of the gcloud application default
// credentials file for the given OS and home directory.
func CredentialsPath(goos, home string) string {
	const file = "application_default_credentials.json"
	if goos == "windows" {
		return filepath.Join(home, "AppData", "Roaming", "gcloud", file)
	}
	return filepath.Join(home, ".config", "gcloud", file)
}
