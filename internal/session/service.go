package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finsightlab/finsight/internal/dedup"
	"github.com/finsightlab/finsight/internal/detect"
	"github.com/finsightlab/finsight/internal/ledger"
	"github.com/finsightlab/finsight/internal/logging"
	"github.com/finsightlab/finsight/internal/match"
	"github.com/finsightlab/finsight/internal/normalize"
	"github.com/finsightlab/finsight/internal/resolve"
	"github.com/finsightlab/finsight/internal/tabular"
)

// ResolveTimeout bounds the post-commit resolution pass for one session.
var ResolveTimeout = 2 * time.Minute

// Service orchestrates the import pipeline: parse, classify, normalize,
// reconcile, commit, then resolve entities and categories.
type Service struct {
	store      Store
	entities   *resolve.EntityResolver
	categories *resolve.CategoryResolver
	detectOpts detect.Options

	// ownerLocks serializes post-commit resolution per owner so two
	// sessions cannot race on entity creation.
	ownerLocks sync.Map
	wg         sync.WaitGroup
}

// NewService wires the pipeline. The resolvers carry their own thresholds
// and extraction collaborators.
func NewService(store Store, entities *resolve.EntityResolver, categories *resolve.CategoryResolver, detectOpts detect.Options) *Service {
	return &Service{
		store:      store,
		entities:   entities,
		categories: categories,
		detectOpts: detectOpts,
	}
}

// Wait blocks until all background resolution passes finish. Used on
// shutdown and in tests.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Upload creates a session for the raw file and runs it through to
// preview_ready (or failed). The returned session is always persisted, so
// a failed parse is still inspectable by id.
func (s *Service) Upload(ctx context.Context, owner uuid.UUID, fileName string, data []byte) (*ImportSession, error) {
	now := time.Now().UTC()
	sess := &ImportSession{
		ID:        uuid.New(),
		OwnerID:   owner,
		FileName:  fileName,
		FileData:  data,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	log := logging.WithFields(ctx, "session_id", sess.ID, "owner_id", owner, "file", fileName)
	log.Info("import session created", "bytes", len(data))

	if err := s.process(ctx, sess); err != nil {
		return sess, err
	}
	log.Info("preview ready",
		"total_rows", sess.TotalRows,
		"valid_rows", sess.ValidRows,
		"error_rows", sess.ErrorRows,
		"duplicate_rows", sess.DuplicateRows,
		"detection_confidence", sess.Mapping.DetectionConfidence,
	)
	return sess, nil
}

// process runs parse -> classify -> normalize -> reconcile and lands the
// session in preview_ready, or in failed on an input-rejection error.
func (s *Service) process(ctx context.Context, sess *ImportSession) error {
	if err := sess.transition(StatusProcessing); err != nil {
		return err
	}
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	file, err := tabular.Parse(sess.FileData)
	if err != nil {
		return s.fail(ctx, sess, err)
	}

	mapping := detect.Classify(file, s.detectOpts)
	if len(sess.Overrides) > 0 {
		mapping.Apply(sess.Overrides, s.detectOpts.AcceptThreshold)
	}

	rows := normalize.Rows(file, mapping)

	history, err := s.store.TransactionKeys(ctx, sess.OwnerID)
	if err != nil {
		return s.fail(ctx, sess, fmt.Errorf("load transaction history: %w", err))
	}
	dedup.Reconcile(rows, keySet(history))

	sess.Mapping = mapping
	sess.Preview = rows
	sess.refreshCounts()
	if err := sess.transition(StatusPreviewReady); err != nil {
		return err
	}
	return s.store.SaveSession(ctx, sess)
}

// fail lands the session in the failed terminal state with a stable code.
func (s *Service) fail(ctx context.Context, sess *ImportSession, cause error) error {
	sess.FailureCode = MapError(cause).Code
	if err := sess.transition(StatusFailed); err != nil {
		return errors.Join(cause, err)
	}
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return errors.Join(cause, err)
	}
	logging.FromContext(ctx).Warn("import session failed",
		"session_id", sess.ID, "code", sess.FailureCode, "error", cause)
	return cause
}

// GetPreview returns the session with its mapping, preview rows, and
// derived counts. Callers poll this until preview_ready.
func (s *Service) GetPreview(ctx context.Context, owner, id uuid.UUID) (*ImportSession, error) {
	return s.store.GetSession(ctx, owner, id)
}

// ListSessions returns the owner's recent sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, owner uuid.UUID, limit int) ([]ImportSession, error) {
	return s.store.ListSessions(ctx, owner, limit)
}

// UpdateMapping applies user column overrides and re-derives the preview
// from the stored file. Overridden roles are pinned: later re-runs never
// re-detect them.
func (s *Service) UpdateMapping(ctx context.Context, owner, id uuid.UUID, overrides map[detect.Role]int) (*ImportSession, error) {
	sess, err := s.store.GetSession(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusPreviewReady {
		return nil, fmt.Errorf("%w: cannot update mapping in %s", ErrInvalidState, sess.Status)
	}

	if sess.Overrides == nil {
		sess.Overrides = make(map[detect.Role]int, len(overrides))
	}
	for role, col := range overrides {
		sess.Overrides[role] = col
	}

	if err := s.process(ctx, sess); err != nil {
		return sess, err
	}
	logging.FromContext(ctx).Info("mapping updated",
		"session_id", sess.ID, "overrides", len(sess.Overrides))
	return sess, nil
}

// Cancel discards a non-terminal session and everything ephemeral in it.
// Nothing durable exists before confirm, so cancellation is always safe.
func (s *Service) Cancel(ctx context.Context, owner, id uuid.UUID) error {
	sess, err := s.store.GetSession(ctx, owner, id)
	if err != nil {
		return err
	}
	if sess.Status == StatusConfirmed {
		return fmt.Errorf("%w: cannot cancel a confirmed session", ErrInvalidState)
	}
	return s.store.DeleteSession(ctx, owner, id)
}

// Confirm commits the preview. Idempotent: a confirmed session returns its
// stored result without touching the ledger again. Invariant:
// imported + skipped_duplicates + skipped_errors == total rows.
func (s *Service) Confirm(ctx context.Context, owner, id uuid.UUID, opts ConfirmOptions) (*ConfirmResult, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	sess, err := s.store.GetSession(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusConfirmed && sess.Result != nil {
		return sess.Result, nil
	}
	if sess.Status != StatusPreviewReady {
		return nil, fmt.Errorf("%w: cannot confirm in %s", ErrInvalidState, sess.Status)
	}
	if sess.Mapping == nil || sess.Mapping.RequiresManualInput {
		return nil, ErrMappingIncomplete
	}
	if opts.InvalidAction == InvalidAbort && sess.ErrorRows > 0 {
		return nil, fmt.Errorf("%w: %d rows", ErrInvalidRows, sess.ErrorRows)
	}

	history, err := s.store.TransactionKeys(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load transaction history: %w", err)
	}

	result := &ConfirmResult{TransactionIDs: []uuid.UUID{}}
	var inserts []ledger.Transaction
	replace := make(map[uuid.UUID]ledger.Transaction)

	for i := range sess.Preview {
		row := &sess.Preview[i]
		if !row.Valid() {
			result.SkippedErrors++
			continue
		}
		if row.IsDuplicate {
			switch opts.DuplicateAction {
			case DuplicateSkip:
				result.SkippedDuplicates++
				continue
			case DuplicateOverwrite:
				key := dedup.NewKey(row.Date, row.Amount, row.Description)
				if existing, ok := history[key]; ok {
					// Later batch rows matching the same committed
					// transaction have nothing left to overwrite.
					if _, taken := replace[existing]; taken {
						result.SkippedDuplicates++
						continue
					}
					tx := buildTransaction(sess, row)
					tx.ID = existing
					replace[existing] = tx
					result.ImportedCount++
					result.TransactionIDs = append(result.TransactionIDs, existing)
					continue
				}
				// Batch-internal duplicate with no committed counterpart:
				// nothing to overwrite, commit it flagged.
			case DuplicateImport:
			}
		}
		tx := buildTransaction(sess, row)
		inserts = append(inserts, tx)
		result.ImportedCount++
		result.TransactionIDs = append(result.TransactionIDs, tx.ID)
	}

	sess.Result = result
	if err := sess.transition(StatusConfirmed); err != nil {
		return nil, err
	}
	sess.FileData = nil
	sess.Preview = nil

	if err := s.store.CommitImport(ctx, sess, inserts, replace); err != nil {
		// A concurrent confirm won the commit; answer with its result.
		if errors.Is(err, ErrSessionCommitted) {
			committed, getErr := s.store.GetSession(ctx, owner, id)
			if getErr == nil && committed.Result != nil {
				return committed.Result, nil
			}
			return nil, err
		}
		return nil, fmt.Errorf("commit import: %w", err)
	}

	logging.FromContext(ctx).Info("import confirmed",
		"session_id", sess.ID,
		"imported", result.ImportedCount,
		"skipped_duplicates", result.SkippedDuplicates,
		"skipped_errors", result.SkippedErrors,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), ResolveTimeout)
		defer cancel()
		if err := s.ResolveSession(ctx, owner, sess.ID); err != nil {
			logging.FromContext(ctx).Warn("resolution pass failed",
				"session_id", sess.ID, "error", err)
		}
	}()

	return result, nil
}

// CorrectEntity relinks a transaction to the given entity and records a
// correction rule so the same normalized description resolves there on
// every future import.
func (s *Service) CorrectEntity(ctx context.Context, owner, txID, entityID uuid.UUID) error {
	tx, err := s.store.GetTransaction(ctx, owner, txID)
	if err != nil {
		return err
	}
	rule := ledger.CorrectionRule{
		ID:             uuid.New(),
		OwnerID:        owner,
		Kind:           ledger.CorrectEntity,
		NormalizedDesc: tx.NormalizedDesc,
		TargetID:       entityID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.SaveCorrection(ctx, rule); err != nil {
		return fmt.Errorf("save correction: %w", err)
	}
	if err := s.store.RelinkEntity(ctx, owner, txID, &entityID, 1.0, true); err != nil {
		return fmt.Errorf("relink entity: %w", err)
	}
	logging.FromContext(ctx).Info("entity corrected",
		"transaction_id", txID, "entity_id", entityID)
	return nil
}

// CorrectCategory is symmetric to CorrectEntity.
func (s *Service) CorrectCategory(ctx context.Context, owner, txID, categoryID uuid.UUID) error {
	tx, err := s.store.GetTransaction(ctx, owner, txID)
	if err != nil {
		return err
	}
	rule := ledger.CorrectionRule{
		ID:             uuid.New(),
		OwnerID:        owner,
		Kind:           ledger.CorrectCategory,
		NormalizedDesc: tx.NormalizedDesc,
		TargetID:       categoryID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.SaveCorrection(ctx, rule); err != nil {
		return fmt.Errorf("save correction: %w", err)
	}
	if err := s.store.RelinkCategory(ctx, owner, txID, &categoryID, true); err != nil {
		return fmt.Errorf("relink category: %w", err)
	}
	logging.FromContext(ctx).Info("category corrected",
		"transaction_id", txID, "category_id", categoryID)
	return nil
}

// ResolveSession resolves entities and categories for every unlinked
// transaction of a confirmed session. Serialized per owner; a fuzzy or
// extraction failure leaves the transaction unresolved and retryable, never
// failed.
func (s *Service) ResolveSession(ctx context.Context, owner, sessionID uuid.UUID) error {
	mu := s.ownerLock(owner)
	mu.Lock()
	defer mu.Unlock()

	txs, err := s.store.ListSessionTransactions(ctx, owner, sessionID)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}

	entities, err := s.store.ListEntities(ctx, owner)
	if err != nil {
		return fmt.Errorf("list entities: %w", err)
	}
	categories, err := s.store.Categories(ctx, owner)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	entityCorr, err := s.store.Corrections(ctx, owner, ledger.CorrectEntity)
	if err != nil {
		return fmt.Errorf("load entity corrections: %w", err)
	}
	categoryCorr, err := s.store.Corrections(ctx, owner, ledger.CorrectCategory)
	if err != nil {
		return fmt.Errorf("load category corrections: %w", err)
	}

	for i := range txs {
		tx := &txs[i]
		if tx.IsManuallyCorrected {
			continue
		}
		if tx.EntityID == nil {
			entities, err = s.resolveEntity(ctx, tx, entityCorr, entities)
			if err != nil {
				return err
			}
		}
		if tx.CategoryID == nil {
			if err := s.resolveCategory(ctx, tx, categoryCorr, categories); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveEntity links one transaction when a stage clears its threshold,
// creating the entity first for an auto-accepted extraction proposal. The
// (possibly grown) entity snapshot is returned for the next transaction.
func (s *Service) resolveEntity(ctx context.Context, tx *ledger.Transaction, corr resolve.Corrections, entities []ledger.Entity) ([]ledger.Entity, error) {
	res := s.entities.Resolve(ctx, tx.Description, corr, entities)

	switch {
	case res.TargetID != nil:
		if err := s.store.RelinkEntity(ctx, tx.OwnerID, tx.ID, res.TargetID, res.Confidence, false); err != nil {
			return entities, fmt.Errorf("link entity: %w", err)
		}
	case res.Status == resolve.StatusConfirmed && res.ProposedName != "":
		ent, err := s.store.EnsureEntity(ctx, tx.OwnerID, res.ProposedName, entityKind(tx))
		if err != nil {
			return entities, fmt.Errorf("ensure entity: %w", err)
		}
		if err := s.store.RelinkEntity(ctx, tx.OwnerID, tx.ID, &ent.ID, res.Confidence, false); err != nil {
			return entities, fmt.Errorf("link entity: %w", err)
		}
		entities = append(entities, *ent)
	}
	return entities, nil
}

func (s *Service) resolveCategory(ctx context.Context, tx *ledger.Transaction, corr resolve.Corrections, categories []ledger.Category) error {
	res := s.categories.Resolve(ctx, tx.Description, corr, categories)
	if res.TargetID == nil {
		return nil
	}
	if err := s.store.RelinkCategory(ctx, tx.OwnerID, tx.ID, res.TargetID, false); err != nil {
		return fmt.Errorf("link category: %w", err)
	}
	return nil
}

func (s *Service) ownerLock(owner uuid.UUID) *sync.Mutex {
	mu, _ := s.ownerLocks.LoadOrStore(owner, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func buildTransaction(sess *ImportSession, row *normalize.PreviewRow) ledger.Transaction {
	return ledger.Transaction{
		ID:               uuid.New(),
		OwnerID:          sess.OwnerID,
		Date:             row.Date,
		Description:      row.Description,
		CleanDescription: row.Description,
		NormalizedDesc:   match.Normalize(row.Description),
		Amount:           row.Amount,
		Currency:         row.Currency,
		Balance:          row.Balance,
		IsDuplicate:      row.IsDuplicate,
		ImportSessionID:  sess.ID,
		RowIndex:         row.Index,
		CreatedAt:        time.Now().UTC(),
	}
}

// entityKind classifies the counterparty by money direction: money paid
// goes to a supplier, money received comes from a customer.
func entityKind(tx *ledger.Transaction) ledger.EntityType {
	if tx.Amount.IsNegative() {
		return ledger.EntitySupplier
	}
	return ledger.EntityCustomer
}

func keySet(history map[dedup.Key]uuid.UUID) map[dedup.Key]struct{} {
	set := make(map[dedup.Key]struct{}, len(history))
	for k := range history {
		set[k] = struct{}{}
	}
	return set
}
