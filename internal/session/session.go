// Package session drives an import from upload through preview to commit.
//
// A session owns the raw file, the detected column mapping, and the
// ephemeral preview rows. Its status walks pending -> processing ->
// preview_ready -> confirmed | failed; a mapping correction re-enters
// processing and produces a fresh preview. Confirm is the only transition
// that writes durable state, and it is idempotent per session id.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finsightlab/finsight/internal/dedup"
	"github.com/finsightlab/finsight/internal/detect"
	"github.com/finsightlab/finsight/internal/ledger"
	"github.com/finsightlab/finsight/internal/normalize"
	"github.com/finsightlab/finsight/internal/resolve"
)

// Status is an import session's lifecycle state.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProcessing   Status = "processing"
	StatusPreviewReady Status = "preview_ready"
	StatusConfirmed    Status = "confirmed"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

var transitions = map[Status][]Status{
	StatusPending:      {StatusProcessing, StatusFailed},
	StatusProcessing:   {StatusPreviewReady, StatusFailed},
	StatusPreviewReady: {StatusProcessing, StatusConfirmed, StatusFailed},
}

// DuplicateAction tells confirm what to do with rows flagged is_duplicate.
type DuplicateAction string

const (
	DuplicateSkip      DuplicateAction = "skip"      // do not create the row
	DuplicateOverwrite DuplicateAction = "overwrite" // replace the matched committed transaction
	DuplicateImport    DuplicateAction = "import"    // commit anyway, flag retained for audit
)

// InvalidAction tells confirm what to do with rows carrying validation
// errors.
type InvalidAction string

const (
	InvalidSkip  InvalidAction = "skip"
	InvalidAbort InvalidAction = "abort"
)

// ConfirmOptions are the per-confirm row policies. Zero values mean skip.
type ConfirmOptions struct {
	DuplicateAction DuplicateAction `json:"duplicate_action"`
	InvalidAction   InvalidAction   `json:"invalid_action"`
}

func (o *ConfirmOptions) normalize() error {
	if o.DuplicateAction == "" {
		o.DuplicateAction = DuplicateSkip
	}
	if o.InvalidAction == "" {
		o.InvalidAction = InvalidSkip
	}
	switch o.DuplicateAction {
	case DuplicateSkip, DuplicateOverwrite, DuplicateImport:
	default:
		return fmt.Errorf("%w: duplicate_action %q", ErrUnknownAction, o.DuplicateAction)
	}
	switch o.InvalidAction {
	case InvalidSkip, InvalidAbort:
	default:
		return fmt.Errorf("%w: invalid_action %q", ErrUnknownAction, o.InvalidAction)
	}
	return nil
}

// ConfirmResult is the durable outcome of a confirmed session. Stored with
// the session so a retried confirm returns the identical result instead of
// double-inserting.
type ConfirmResult struct {
	ImportedCount     int         `json:"imported_count"`
	SkippedDuplicates int         `json:"skipped_duplicates"`
	SkippedErrors     int         `json:"skipped_errors"`
	TransactionIDs    []uuid.UUID `json:"transaction_ids"`
}

// ImportSession carries one upload through the pipeline. FileData is held
// until a terminal state so mapping corrections can re-derive the preview
// without a re-upload.
type ImportSession struct {
	ID       uuid.UUID `json:"id"`
	OwnerID  uuid.UUID `json:"owner_id"`
	FileName string    `json:"file_name"`
	FileData []byte    `json:"-"`

	Status      Status                 `json:"status"`
	FailureCode string                 `json:"failure_code,omitempty"`
	Mapping     *detect.Mapping        `json:"mapping,omitempty"`
	Overrides   map[detect.Role]int    `json:"overrides,omitempty"`
	Preview     []normalize.PreviewRow `json:"preview,omitempty"`

	TotalRows     int `json:"total_rows"`
	ValidRows     int `json:"valid_rows"`
	ErrorRows     int `json:"error_rows"`
	DuplicateRows int `json:"duplicate_rows"`

	Result *ConfirmResult `json:"result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// transition moves the session to a new status, enforcing the state
// machine.
func (s *ImportSession) transition(to Status) error {
	for _, allowed := range transitions[s.Status] {
		if allowed == to {
			s.Status = to
			s.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidState, s.Status, to)
}

// refreshCounts rederives the summary counters from the preview rows.
func (s *ImportSession) refreshCounts() {
	s.TotalRows = len(s.Preview)
	s.ValidRows, s.ErrorRows, s.DuplicateRows = normalize.Counts(s.Preview)
}

// Store is the persistence collaborator the session service requires.
// Implementations must make CommitImport atomic: the transaction rows and
// the session's result land together or not at all.
type Store interface {
	CreateSession(ctx context.Context, s *ImportSession) error
	GetSession(ctx context.Context, owner, id uuid.UUID) (*ImportSession, error)
	SaveSession(ctx context.Context, s *ImportSession) error
	DeleteSession(ctx context.Context, owner, id uuid.UUID) error
	ListSessions(ctx context.Context, owner uuid.UUID, limit int) ([]ImportSession, error)

	// TransactionKeys returns the owner's committed duplicate keys with the
	// transaction that holds each.
	TransactionKeys(ctx context.Context, owner uuid.UUID) (map[dedup.Key]uuid.UUID, error)
	// CommitImport atomically inserts new transactions, replaces the given
	// existing ones in place, and persists the session's confirmed result.
	// Implementations must re-check the stored session status under the
	// same atomicity and return ErrSessionCommitted when it is already
	// confirmed, so racing confirms commit exactly once.
	CommitImport(ctx context.Context, s *ImportSession, inserts []ledger.Transaction, replace map[uuid.UUID]ledger.Transaction) error
	GetTransaction(ctx context.Context, owner, id uuid.UUID) (*ledger.Transaction, error)
	ListSessionTransactions(ctx context.Context, owner, sessionID uuid.UUID) ([]ledger.Transaction, error)

	ListEntities(ctx context.Context, owner uuid.UUID) ([]ledger.Entity, error)
	// EnsureEntity creates an entity by normalized name if absent. Atomic:
	// two concurrent calls with the same name must yield one entity.
	EnsureEntity(ctx context.Context, owner uuid.UUID, name string, kind ledger.EntityType) (*ledger.Entity, error)
	// RelinkEntity repoints a transaction's entity and moves the counter
	// deltas from the old entity to the new one in the same transaction.
	RelinkEntity(ctx context.Context, owner, txID uuid.UUID, entityID *uuid.UUID, confidence float64, manual bool) error

	// Categories returns the owner's taxonomy, seeding the default set on
	// first use.
	Categories(ctx context.Context, owner uuid.UUID) ([]ledger.Category, error)
	RelinkCategory(ctx context.Context, owner, txID uuid.UUID, categoryID *uuid.UUID, manual bool) error

	SaveCorrection(ctx context.Context, rule ledger.CorrectionRule) error
	Corrections(ctx context.Context, owner uuid.UUID, kind ledger.CorrectionKind) (resolve.Corrections, error)
}
