package ingestion

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wakala/bankrecon/internal/domain"
	"github.com/wakala/bankrecon/internal/reconciliation"
	"github.com/wakala/bankrecon/internal/repository"
)

// ImportResult is returned from a successful import.
type ImportResult struct {
	StatementID          int64                `json:"statement_id,omitempty"`
	FileName             string               `json:"file_name"`
	AlreadyImported      bool                 `json:"already_imported"`
	TransactionsImported int                  `json:"transactions_imported"`
	Reconciled           int                  `json:"reconciled"`
	Warnings             []string             `json:"warnings,omitempty"`
	Discrepancies        []domain.Discrepancy `json:"discrepancies,omitempty"`
}

// File is one uploaded statement.
type File struct {
	Name string
	Data []byte
}

// Service imports CODA statements and reconciles them.
type Service struct {
	statementRepo *repository.StatementRepo
	reconSvc      *reconciliation.Service
	log           zerolog.Logger
	concurrency   int
}

// NewService creates a new ingestion service. concurrency bounds how many
// files of a batch are parsed at once.
func NewService(
	statementRepo *repository.StatementRepo,
	reconSvc *reconciliation.Service,
	log zerolog.Logger,
	concurrency int,
) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		statementRepo: statementRepo,
		reconSvc:      reconSvc,
		log:           log.With().Str("component", "ingestion").Logger(),
		concurrency:   concurrency,
	}
}

// ImportStatement parses a CODA file, stores it with its transactions and
// runs automatic reconciliation on it. Importing the same bytes twice for an
// organisation is a no-op. A *ParseError means nothing was stored.
func (s *Service) ImportStatement(ctx context.Context, organisationID int64, fileName string, data []byte) (*ImportResult, error) {
	hash := fileHash(data)
	if res, done, err := s.checkDuplicate(ctx, organisationID, fileName, hash); done || err != nil {
		return res, err
	}

	stmt, err := ParseCODA(bytes.NewReader(data), fileName)
	if err != nil {
		return nil, err
	}
	return s.store(ctx, organisationID, hash, stmt)
}

// ImportBatch parses all files concurrently, then stores and reconciles them
// one by one in the given order. If any file fails to parse, none is stored.
// If storing a file fails, the files before it stay stored and their results
// are returned together with the error.
func (s *Service) ImportBatch(ctx context.Context, organisationID int64, files []File) ([]ImportResult, error) {
	parsed := make([]*domain.Statement, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			stmt, err := ParseCODA(bytes.NewReader(f.Data), f.Name)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
			parsed[i] = stmt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]ImportResult, 0, len(files))
	for i, f := range files {
		hash := fileHash(f.Data)
		res, done, err := s.checkDuplicate(ctx, organisationID, f.Name, hash)
		if err == nil && !done {
			res, err = s.store(ctx, organisationID, hash, parsed[i])
		}
		if err != nil {
			return results, fmt.Errorf("%s: %w", f.Name, err)
		}
		results = append(results, *res)
	}
	return results, nil
}

func (s *Service) checkDuplicate(ctx context.Context, organisationID int64, fileName, hash string) (*ImportResult, bool, error) {
	exists, err := s.statementRepo.ExistsByHash(ctx, organisationID, hash)
	if err != nil {
		return nil, false, fmt.Errorf("check hash: %w", err)
	}
	if !exists {
		return nil, false, nil
	}
	s.log.Info().Int64("organisation_id", organisationID).Str("file", fileName).Msg("statement already imported, skipped")
	return &ImportResult{FileName: fileName, AlreadyImported: true}, true, nil
}

func (s *Service) store(ctx context.Context, organisationID int64, hash string, stmt *domain.Statement) (*ImportResult, error) {
	stmt.OrganisationID = organisationID
	stmt.FileHash = hash

	for _, w := range stmt.Warnings {
		s.log.Warn().Str("file", stmt.FileName).Msg(w)
	}

	if err := s.statementRepo.Create(ctx, stmt); err != nil {
		return nil, fmt.Errorf("store statement: %w", err)
	}
	// New credits change the suggestions even when none of them matches.
	s.reconSvc.InvalidateSuggestions(organisationID)

	s.log.Info().
		Int64("statement_id", stmt.ID).
		Int64("organisation_id", organisationID).
		Str("file", stmt.FileName).
		Str("account", stmt.AccountNumber).
		Int("transactions", stmt.TransactionCount).
		Msg("statement imported")

	res := &ImportResult{
		StatementID:          stmt.ID,
		FileName:             stmt.FileName,
		TransactionsImported: stmt.TransactionCount,
		Warnings:             stmt.Warnings,
	}

	// The statement stays imported even if matching fails; it can be rerun.
	report, err := s.reconSvc.AutoReconcileWithReport(ctx, stmt.ID)
	if err != nil {
		s.log.Warn().Err(err).Int64("statement_id", stmt.ID).Msg("auto reconciliation failed")
		return res, nil
	}
	res.Reconciled = report.Reconciled
	res.Discrepancies = report.Discrepancies
	return res, nil
}

func fileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
