package dto

import "fmt"

// Status is the single terminal code delivered to an observer.
type Status int32

const (
	Succeeded Status = 1

	FailedAlreadyExists          Status = -1
	FailedInvalidArchive         Status = -2
	FailedInvalidURI             Status = -3
	FailedInsufficientStorage    Status = -4
	FailedDuplicatePackage       Status = -5
	FailedUpdateIncompatible     Status = -7
	FailedDexopt                 Status = -11
	FailedContainerError         Status = -18
	FailedInvalidInstallLocation Status = -19
	FailedMediaUnavailable       Status = -20
	FailedVerificationTimeout    Status = -21
	FailedVerificationFailure    Status = -22
	FailedPackageChanged         Status = -23
	FailedDoesntExist            Status = -30
	FailedOperationPending       Status = -31
	FailedInvalidLocation        Status = -32
	FailedHelperUnavailable      Status = -100
	FailedInternalError          Status = -110
)

var statusNames = map[Status]string{
	Succeeded:                    "SUCCESS",
	FailedAlreadyExists:          "ALREADY_EXISTS",
	FailedInvalidArchive:         "INVALID_ARCHIVE",
	FailedInvalidURI:             "INVALID_URI",
	FailedInsufficientStorage:    "INSUFFICIENT_STORAGE",
	FailedDuplicatePackage:       "DUPLICATE_PACKAGE",
	FailedUpdateIncompatible:     "UPDATE_INCOMPATIBLE",
	FailedDexopt:                 "DEXOPT",
	FailedContainerError:         "CONTAINER_ERROR",
	FailedInvalidInstallLocation: "INVALID_INSTALL_LOCATION",
	FailedMediaUnavailable:       "MEDIA_UNAVAILABLE",
	FailedVerificationTimeout:    "VERIFICATION_TIMEOUT",
	FailedVerificationFailure:    "VERIFICATION_FAILURE",
	FailedPackageChanged:         "PACKAGE_CHANGED",
	FailedDoesntExist:            "DOESNT_EXIST",
	FailedOperationPending:       "OPERATION_PENDING",
	FailedInvalidLocation:        "INVALID_LOCATION",
	FailedHelperUnavailable:      "HELPER_UNAVAILABLE",
	FailedInternalError:          "INTERNAL_ERROR",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", int32(s))
}

// OK reports whether s is Succeeded.
func (s Status) OK() bool {
	return s == Succeeded
}
