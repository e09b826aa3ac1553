package lifecycle

import (
	"fmt"
	"strings"

	"lootCrate/api"
)

// Error codes carried in Result.Errors. Each entry is the code, optionally
// followed by ": detail".
const (
	CodeUnauthenticated            = "Unauthenticated"
	CodeNotFound                   = "NotFound"
	CodeForbidden                  = "Forbidden"
	CodeExpired                    = "Expired"
	CodeInactive                   = "Inactive"
	CodeOrganizerCannotParticipate = "OrganizerCannotParticipate"
	CodeNoTriesRemaining           = "NoTriesRemaining"
	CodeValidationError            = "ValidationError"
	CodeStorageUnavailable         = "StorageUnavailable"
)

// Result is the uniform shape every lifecycle operation returns. No error
// ever crosses the service boundary; failures land in Errors.
type Result struct {
	Success  bool     `json:"success"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}

// ErrorCode returns the taxonomy code of the first error, or "".
func (r Result) ErrorCode() string {
	if len(r.Errors) == 0 {
		return ""
	}
	code, _, _ := strings.Cut(r.Errors[0], ":")
	return code
}

func okResult() Result {
	return Result{Success: true, Errors: []string{}}
}

func okWarn(warnings []string) Result {
	r := okResult()
	r.Warnings = warnings
	return r
}

func fail(code, detail string) Result {
	return Result{Success: false, Errors: []string{fmt.Sprintf("%s: %s", code, detail)}}
}

func failErr(code string, err error) Result {
	return fail(code, err.Error())
}

type CreateResult struct {
	Result
	GroupBoxID string             `json:"groupBoxId,omitempty"`
	Box        *api.Participation `json:"box,omitempty"`
}

type JoinResult struct {
	Result
	AlreadyJoined bool               `json:"alreadyJoined"`
	Box           *api.Participation `json:"box,omitempty"`
}

type SpinResult struct {
	Result
	Outcome        *api.SpinOutcome `json:"outcome,omitempty"`
	RemainingTries int              `json:"remainingTries"`
}

type SyncResult struct {
	Result
	Box *api.Participation `json:"box,omitempty"`
}

type ListResult struct {
	Result
	Boxes []api.Participation `json:"boxes"`
}

type HistoryResult struct {
	Result
	Entries []api.HistoryEntry `json:"entries"`
	Lines   []string           `json:"lines"`
}
