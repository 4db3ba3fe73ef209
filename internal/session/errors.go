package session

import (
	"errors"
	"strings"
)

// Sentinel errors returned by the session service. Handlers translate them
// with MapError; no internal detail crosses the caller boundary.
var (
	ErrNotFound          = errors.New("session not found")
	ErrInvalidState      = errors.New("invalid session state")
	ErrMappingIncomplete = errors.New("mapping requires manual input")
	ErrInvalidRows       = errors.New("preview contains invalid rows")
	ErrUnknownAction     = errors.New("unknown confirm action")
	ErrTransactionGone   = errors.New("transaction not found")

	// ErrSessionCommitted is returned by Store.CommitImport when the session
	// was committed by a concurrent confirm. The service answers with the
	// stored result instead of writing a second batch.
	ErrSessionCommitted = errors.New("session already committed")
)

// UserMessage is the stable error surface exposed to callers: a code for
// support reference, what happened, and what to do about it.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive, substring
// match) to user messages. First match wins; specific before general.
var errorPatterns = []errorPattern{
	// File errors (FILE001-FILE099)
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file has no transactions",
			Action:  "Upload a CSV with at least one data row",
			Code:    "FILE001",
		},
	},
	{
		pattern: "parse csv",
		msg: UserMessage{
			Message: "The file could not be read as CSV",
			Action:  "Ensure the file is comma-separated text",
			Code:    "FILE002",
		},
	},

	// Session errors (SES001-SES099)
	{
		pattern: "session not found",
		msg: UserMessage{
			Message: "Import session not found",
			Action:  "The session may have expired. Start a new upload",
			Code:    "SES001",
		},
	},
	{
		pattern: "invalid session state",
		msg: UserMessage{
			Message: "This action is not allowed in the session's current state",
			Action:  "Reload the session and try again",
			Code:    "SES002",
		},
	},
	{
		pattern: "mapping requires manual input",
		msg: UserMessage{
			Message: "Column detection was not confident enough to import",
			Action:  "Review and correct the column mapping, then confirm again",
			Code:    "SES003",
		},
	},
	{
		pattern: "preview contains invalid rows",
		msg: UserMessage{
			Message: "Some rows have validation errors",
			Action:  "Fix the rows in the preview or confirm with invalid_action=skip",
			Code:    "SES004",
		},
	},
	{
		pattern: "unknown confirm action",
		msg: UserMessage{
			Message: "Unrecognized confirm option",
			Action:  "Use duplicate_action skip/overwrite/import and invalid_action skip/abort",
			Code:    "SES005",
		},
	},
	{
		pattern: "already committed",
		msg: UserMessage{
			Message: "This import was already confirmed",
			Action:  "Fetch the session to see its committed result",
			Code:    "SES007",
		},
	},
	{
		pattern: "transaction not found",
		msg: UserMessage{
			Message: "Transaction not found",
			Action:  "It may belong to another user or have been removed",
			Code:    "SES006",
		},
	},

	// Database errors (DB001-DB099)
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A conflicting record already exists",
			Action:  "Please try again",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The request was cancelled",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
}

// MapError translates an internal error into a stable user-facing message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	text := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(text, p.pattern) {
			return p.msg
		}
	}
	return UserMessage{
		Message: "Something went wrong during the import",
		Action:  "Please try again; quote the error code if it persists",
		Code:    "GEN001",
	}
}
