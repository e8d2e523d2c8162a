// Package apperrors defines the error kind hierarchy used across
// pgbackupctl and maps kinds to the one-shot front end's exit codes.
package apperrors

import "fmt"

// Kind identifies the category of a failure, in order of specificity.
type Kind int

const (
	KindUnknown Kind = iota
	KindCatalogIssue
	KindArchiveIssue
	KindStreamingFailure
	KindConnectionFailure
	KindExecutionFailure
	KindWorkerFailure
	KindLauncherFailure
	KindSHMFailure
	KindRetentionFailure
	KindParserIssue
)

func (k Kind) String() string {
	switch k {
	case KindCatalogIssue:
		return "CatalogIssue"
	case KindArchiveIssue:
		return "ArchiveIssue"
	case KindStreamingFailure:
		return "StreamingFailure"
	case KindConnectionFailure:
		return "ConnectionFailure"
	case KindExecutionFailure:
		return "ExecutionFailure"
	case KindWorkerFailure:
		return "WorkerFailure"
	case KindLauncherFailure:
		return "LauncherFailure"
	case KindSHMFailure:
		return "SHMFailure"
	case KindRetentionFailure:
		return "RetentionFailure"
	case KindParserIssue:
		return "ParserIssue"
	default:
		return "Unknown"
	}
}

// ExitCode maps a Kind onto the one-shot front end's exit code table
// : 0 success, 1 catalog error, 2 archive error, 3 parser
// error, 255 generic failure.
func (k Kind) ExitCode() int {
	switch k {
	case KindCatalogIssue:
		return 1
	case KindArchiveIssue:
		return 2
	case KindParserIssue:
		return 3
	default:
		return 255
	}
}

// Error is a kind-tagged error. Every package-level constructor below
// produces one of these so callers can recover the Kind with errors.As.
type Error struct {
	Kind    Kind
	Op      string
	Err     error
	Hint    string
	SQLState string
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Op, e.Hint, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Catalog(op string, err error) *Error   { return newf(KindCatalogIssue, op, err) }
func Archive(op string, err error) *Error   { return newf(KindArchiveIssue, op, err) }
func Streaming(op string, err error) *Error { return newf(KindStreamingFailure, op, err) }
func Connection(op string, err error) *Error {
	return newf(KindConnectionFailure, op, err)
}
func Execution(op string, sqlState string, err error) *Error {
	e := newf(KindExecutionFailure, op, err)
	e.SQLState = sqlState
	return e
}
func Worker(op string, err error) *Error    { return newf(KindWorkerFailure, op, err) }
func Launcher(op string, err error) *Error  { return newf(KindLauncherFailure, op, err) }
func SHM(op string, err error) *Error       { return newf(KindSHMFailure, op, err) }
func Parser(op string, err error) *Error    { return newf(KindParserIssue, op, err) }

// Retention builds a RetentionFailure carrying an operator-facing hint.
func Retention(op string, hint string, err error) *Error {
	e := newf(KindRetentionFailure, op, err)
	e.Hint = hint
	return e
}

// KindOf extracts the Kind from err, or KindUnknown if err is not one of
// ours.
func KindOf(err error) Kind {
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// asError walks err's Unwrap chain by hand (errors.As is not used) and
// stores the first *Error it finds in target. Only single-error
// Unwrap() error chains are followed; Unwrap() []error is not traversed.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
