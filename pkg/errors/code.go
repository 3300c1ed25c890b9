package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 12000-12999: Problem errors
// 13000-13999: Submission & Dispatch errors
// 14000-14999: Contest & Scoreboard errors
// 15000-15999: Judger registry errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError     ErrorCode = 10100
	RecordNotFound    ErrorCode = 10101
	TransactionFailed ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// Storage errors (10400-10499)
	StorageError   ErrorCode = 10400
	ObjectNotFound ErrorCode = 10401

	// ========== Problem Errors (12000-12999) ==========

	ProblemNotFound ErrorCode = 12000

	// ========== Submission & Dispatch Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003

	// Dispatch & result ingestion (13100-13199)
	InvalidVerdict      ErrorCode = 13100
	ReportRejected      ErrorCode = 13101
	ClaimNotHeld        ErrorCode = 13102
	RejudgeFailed       ErrorCode = 13103
	DispatchUnavailable ErrorCode = 13104

	// ========== Contest & Scoreboard Errors (14000-14999) ==========

	ContestNotFound     ErrorCode = 14000
	ContestNotStarted   ErrorCode = 14001
	ContestEnded        ErrorCode = 14002
	ProblemNotInContest ErrorCode = 14003

	// ========== Judger Registry Errors (15000-15999) ==========

	JudgerNotFound   ErrorCode = 15000
	JudgerKeyInvalid ErrorCode = 15001
	TestDataNotFound ErrorCode = 15002
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:     "Database operation failed",
	RecordNotFound:    "Record not found in database",
	TransactionFailed: "Database transaction failed",

	// Cache
	CacheError: "Cache operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Storage
	StorageError:   "Object storage operation failed",
	ObjectNotFound: "Object not found in storage",

	// Problem
	ProblemNotFound: "Problem not found",

	// Submission
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",

	// Dispatch
	InvalidVerdict:      "Verdict is not in the accepted vocabulary",
	ReportRejected:      "Result report rejected",
	ClaimNotHeld:        "Reporting judger does not hold the claim",
	RejudgeFailed:       "Failed to rejudge submission",
	DispatchUnavailable: "Dispatch backing store unavailable",

	// Contest & Scoreboard
	ContestNotFound:     "Contest not found",
	ContestNotStarted:   "Contest has not started yet",
	ContestEnded:        "Contest has ended",
	ProblemNotInContest: "Problem is not part of this contest",

	// Judger registry
	JudgerNotFound:   "Judger not found",
	JudgerKeyInvalid: "The judger name and key is not valid",
	TestDataNotFound: "The file does not exist",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == JudgerKeyInvalid:
		return 401
	case c == Forbidden, c == ClaimNotHeld:
		return 403
	case c == NotFound, c == RecordNotFound, c == ProblemNotFound,
		c == SubmissionNotFound, c == ContestNotFound,
		c == ObjectNotFound, c == JudgerNotFound, c == TestDataNotFound:
		return 404
	case c == ServiceUnavailable, c == DispatchUnavailable:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == InvalidVerdict, c == ReportRejected,
		c == CodeTooLarge, c == LanguageNotSupported,
		c == ContestNotStarted, c == ContestEnded, c == ProblemNotInContest:
		return 400
	default:
		return 500
	}
}

// Retryable reports whether the failure is transient and the caller may
// retry on its own poll cadence.
func (c ErrorCode) Retryable() bool {
	switch c {
	case DatabaseError, TransactionFailed, CacheError, StorageError,
		ServiceUnavailable, DispatchUnavailable, Timeout:
		return true
	default:
		return false
	}
}
