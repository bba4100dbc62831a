package dto

// RecommendedLocation is the storage helper's placement advice for a package.
type RecommendedLocation int32

const (
	RecommendInstallInternal RecommendedLocation = iota + 1
	RecommendInstallExternal
	RecommendFailedInsufficientStorage
	RecommendFailedInvalidArchive
	RecommendFailedInvalidURI
	RecommendFailedInvalidLocation
	RecommendMediaUnavailable
)

// Status maps a failed recommendation onto the install status it causes.
func (r RecommendedLocation) Status() Status {
	switch r {
	case RecommendInstallInternal, RecommendInstallExternal:
		return Succeeded
	case RecommendFailedInsufficientStorage:
		return FailedInsufficientStorage
	case RecommendFailedInvalidArchive:
		return FailedInvalidArchive
	case RecommendFailedInvalidURI:
		return FailedInvalidURI
	case RecommendFailedInvalidLocation:
		return FailedInvalidInstallLocation
	case RecommendMediaUnavailable:
		return FailedMediaUnavailable
	default:
		return FailedInternalError
	}
}

// VerifierInfo is a verification agent declared by a package manifest.
type VerifierInfo struct {
	Package   string `json:"package"`
	PublicKey string `json:"publicKey"`
}

// PackageInfoLite is what the helper reports about an archive before copy.
type PackageInfoLite struct {
	Package             string              `json:"package"`
	Version             int64               `json:"version"`
	InstallLocation     string              `json:"installLocation"`
	RecommendedLocation RecommendedLocation `json:"recommendedLocation"`
	Verifiers           []VerifierInfo      `json:"verifiers,omitempty"`
	Size                int64               `json:"size"`
}

// ContainerCopyRequest asks the helper to materialize a package in a container.
type ContainerCopyRequest struct {
	URI               string `json:"uri"`
	ContainerID       string `json:"containerId"`
	Key               string `json:"key"`
	ResFileName       string `json:"resFileName"`
	PublicResFileName string `json:"publicResFileName,omitempty"`
	OwnerUID          int    `json:"ownerUid"`
	External          bool   `json:"external"`
	ForwardLocked     bool   `json:"forwardLocked"`
}
