package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pulsepaylabs/pulsepay/internal/config"
	"github.com/pulsepaylabs/pulsepay/internal/fees"
	ledgerdomain "github.com/pulsepaylabs/pulsepay/internal/ledger/domain"
	partnerdomain "github.com/pulsepaylabs/pulsepay/internal/partner/domain"
	schemedomain "github.com/pulsepaylabs/pulsepay/internal/scheme/domain"
	settlementdomain "github.com/pulsepaylabs/pulsepay/internal/settlement/domain"
	"github.com/pulsepaylabs/pulsepay/internal/settlement/repository"
	txndomain "github.com/pulsepaylabs/pulsepay/internal/transaction/domain"
	"github.com/pulsepaylabs/pulsepay/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	cfg   config.SettlementConfig

	repo        settlementdomain.Repository
	txnRepo     txndomain.Repository
	partnerRepo partnerdomain.Repository
	schemeSvc   schemedomain.Service
	ledgerSvc   ledgerdomain.Service
}

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Cfg         config.Config
	TxnRepo     txndomain.Repository
	PartnerRepo partnerdomain.Repository
	SchemeSvc   schemedomain.Service
	LedgerSvc   ledgerdomain.Service
}

func NewService(p ServiceParam) settlementdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("settlement.service"),
		genID:       p.GenID,
		cfg:         p.Cfg.Settlement,
		repo:        repository.NewRepository(),
		txnRepo:     p.TxnRepo,
		partnerRepo: p.PartnerRepo,
		schemeSvc:   p.SchemeSvc,
		ledgerSvc:   p.LedgerSvc,
	}
}

func (s *Service) SettleInstant(ctx context.Context, retailerID snowflake.ID, txnIDs []snowflake.ID) (*settlementdomain.BatchSummary, error) {
	if len(txnIDs) == 0 {
		return nil, settlementdomain.ErrNoEligibleTransactions
	}
	if len(txnIDs) > s.cfg.InstantBatchLimit {
		return nil, settlementdomain.ErrBatchTooLarge
	}

	txns, err := s.txnRepo.FindByIDs(ctx, s.db, txnIDs)
	if err != nil {
		return nil, err
	}
	if len(txns) != len(txnIDs) {
		return nil, txndomain.ErrTransactionNotFound
	}

	var alreadySettled []snowflake.ID
	for i := range txns {
		if txns[i].RetailerID != retailerID {
			return nil, settlementdomain.ErrNotRetailerOwned
		}
		if txns[i].WalletCredited || txns[i].SettlementMode != nil {
			alreadySettled = append(alreadySettled, txns[i].ID)
		}
	}
	if len(alreadySettled) > 0 {
		return nil, &settlementdomain.DuplicateSettlementError{TransactionIDs: alreadySettled}
	}

	return s.settle(ctx, retailerID, txns, schemedomain.TierT0)
}

func (s *Service) SettleRetailer(ctx context.Context, retailerID snowflake.ID, txns []txndomain.Transaction, tier schemedomain.Tier) (*settlementdomain.BatchSummary, error) {
	if len(txns) == 0 {
		return nil, settlementdomain.ErrNoEligibleTransactions
	}
	return s.settle(ctx, retailerID, txns, tier)
}

// settle runs one batch end to end. Per-transaction failures are absorbed
// into failed/skipped items; only the aggregate ledger credit is batch-fatal.
func (s *Service) settle(ctx context.Context, retailerID snowflake.ID, txns []txndomain.Transaction, tier schemedomain.Tier) (*settlementdomain.BatchSummary, error) {
	ids := make([]snowflake.ID, len(txns))
	for i := range txns {
		ids[i] = txns[i].ID
	}

	// Duplicate-prevention gate: the whole request is rejected before a
	// batch row exists, so concurrent or replayed requests for the same
	// transactions can never both reach the credit step.
	claimed, err := s.repo.FindClaimedTransactionIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	if len(claimed) > 0 {
		return nil, &settlementdomain.DuplicateSettlementError{TransactionIDs: claimed}
	}

	batch := &settlementdomain.SettlementBatch{
		ID:                s.genID.Generate(),
		RetailerID:        retailerID,
		Tier:              tier,
		TotalTransactions: len(txns),
		Status:            settlementdomain.BatchStatusProcessing,
		TotalGross:        decimal.Zero,
		TotalMDR:          decimal.Zero,
		TotalNet:          decimal.Zero,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.repo.InsertBatch(ctx, s.db, batch); err != nil {
		return nil, err
	}

	run := newBatchRun(batch)
	for i := range txns {
		s.appraise(ctx, run, &txns[i], tier)
	}
	for i := range run.items {
		if err := s.repo.InsertItem(ctx, s.db, &run.items[i]); err != nil {
			return nil, err
		}
	}

	// One atomic credit for the whole batch. Failure leaves every pending
	// item pre-credit and the source transactions untouched, so the next
	// run can pick them up again.
	if run.totalNet.IsPositive() {
		creditID, err := s.ledgerSvc.Credit(ctx, ledgerdomain.CreditRequest{
			PartnerID:   retailerID,
			Role:        partnerdomain.RoleRetailer,
			WalletType:  ledgerdomain.WalletTypePrimary,
			Amount:      run.totalNet,
			ReferenceID: "settlement:batch:" + batch.ID.String(),
			Remarks:     "batch settlement " + string(tier),
		})
		if err != nil {
			s.log.Error("batch ledger credit failed",
				zap.String("batch_id", batch.ID.String()),
				zap.String("retailer_id", retailerID.String()),
				zap.Error(err),
			)
			batch.ErrorMessage = settlementdomain.ErrLedgerCreditFailed.Error() + ": " + err.Error()
			s.applyTotals(batch, run, 0)
			if err := s.repo.FinalizeBatch(ctx, s.db, batch, settlementdomain.BatchStatusFailed); err != nil {
				return nil, err
			}
			return run.summary(batch, 0), nil
		}
		batch.WalletCreditID = &creditID
	}

	if err := s.repo.MarkPendingItemsSettled(ctx, s.db, batch.ID); err != nil {
		return nil, err
	}

	// Write-back closes the eligibility mutex per transaction. A failed
	// write leaves that one transaction open but must never trigger a
	// second credit, so errors are logged and skipped.
	settled := 0
	for _, pending := range run.pending {
		err := s.txnRepo.ApplySettlement(ctx, s.db, pending.update)
		if err != nil {
			s.log.Error("settlement write-back failed",
				zap.String("batch_id", batch.ID.String()),
				zap.String("transaction_id", pending.update.TransactionID.String()),
				zap.Error(err),
			)
			continue
		}
		settled++
	}
	if settled < len(run.pending) {
		s.log.Warn("write-back incomplete, transactions left open for repair",
			zap.String("batch_id", batch.ID.String()),
			zap.Int("written", settled),
			zap.Int("expected", len(run.pending)),
		)
	}

	s.creditDownstream(ctx, batch, run)

	s.applyTotals(batch, run, len(run.pending))
	status := batchStatus(len(run.pending), batch.TotalTransactions)
	if err := s.repo.FinalizeBatch(ctx, s.db, batch, status); err != nil {
		return nil, err
	}

	return run.summary(batch, len(run.pending)), nil
}

// appraise resolves the scheme and fee split for one transaction and appends
// the resulting item to the run. It never returns an error: resolution and
// configuration problems become failed items, non-positive amounts skipped.
func (s *Service) appraise(ctx context.Context, run *batchRun, txn *txndomain.Transaction, tier schemedomain.Tier) {
	item := settlementdomain.BatchItem{
		ID:            s.genID.Generate(),
		BatchID:       run.batch.ID,
		TransactionID: txn.ID,
		GrossAmount:   txn.Amount,
		MDRRate:       decimal.Zero,
		MDRAmount:     decimal.Zero,
		NetAmount:     decimal.Zero,
		Margin:        decimal.Zero,
		CreatedAt:     time.Now().UTC(),
	}

	if txn.DisplayStatus != txndomain.DisplayStatusSuccess {
		run.fail(item, "transaction_not_successful")
		return
	}
	if !txn.Amount.IsPositive() {
		run.skip(item, fees.ErrNonPositiveAmount.Error())
		return
	}

	scheme, err := s.schemeSvc.Resolve(ctx, txn.RetailerID, schemedomain.Attributes{
		Mode:               schemedomain.Mode(txn.Mode),
		CardType:           txn.CardType,
		BrandType:          txn.BrandType,
		CardClassification: txn.CardClassification,
	})
	if err != nil {
		if !errors.Is(err, schemedomain.ErrSchemeNotFound) {
			s.log.Warn("scheme resolution error",
				zap.String("transaction_id", txn.ID.String()),
				zap.Error(err),
			)
		}
		run.fail(item, schemedomain.ErrSchemeNotFound.Error())
		return
	}
	item.SchemeID = &scheme.ID

	retailerMDR, distributorMDR := scheme.Rates(tier)
	breakdown, err := fees.Compute(txn.Amount, retailerMDR, distributorMDR)
	if err != nil {
		if errors.Is(err, fees.ErrNegativeMargin) {
			// Operator-facing configuration defect: the scheme pays the
			// distributor more than it collects from the retailer.
			s.log.Warn("negative margin scheme rejected",
				zap.String("scheme_id", scheme.ID.String()),
				zap.String("transaction_id", txn.ID.String()),
			)
			run.fail(item, fees.ErrNegativeMargin.Error())
			return
		}
		run.skip(item, fees.ErrNonPositiveAmount.Error())
		return
	}

	item.Status = settlementdomain.ItemStatusPending
	item.MDRRate = retailerMDR
	item.MDRAmount = breakdown.RetailerFee
	item.NetAmount = breakdown.RetailerNet
	item.Margin = breakdown.DistributorMargin

	mode := txndomain.SettlementModeAutoT1
	if tier == schemedomain.TierT0 {
		mode = txndomain.SettlementModeInstant
	}

	run.accept(item, breakdown, txndomain.SettlementUpdate{
		TransactionID: txn.ID,
		Mode:          mode,
		Rate:          retailerMDR,
		Fee:           breakdown.RetailerFee,
		Net:           breakdown.RetailerNet,
		SchemeID:      scheme.ID,
	})
}

// creditDownstream moves the distributor margin and company earning after the
// retailer credit has landed. Both are best-effort: a failure here is logged
// for reconciliation and never unwinds the batch.
func (s *Service) creditDownstream(ctx context.Context, batch *settlementdomain.SettlementBatch, run *batchRun) {
	if run.totalMargin.IsPositive() {
		distributor, err := s.partnerRepo.DistributorFor(ctx, s.db, batch.RetailerID)
		switch {
		case err != nil:
			s.log.Error("distributor lookup failed",
				zap.String("batch_id", batch.ID.String()), zap.Error(err))
		case distributor == nil:
			s.log.Warn("retailer has no distributor, margin unassigned",
				zap.String("batch_id", batch.ID.String()),
				zap.String("retailer_id", batch.RetailerID.String()))
		default:
			_, err := s.ledgerSvc.Credit(ctx, ledgerdomain.CreditRequest{
				PartnerID:   distributor.ID,
				Role:        partnerdomain.RoleDistributor,
				WalletType:  ledgerdomain.WalletTypePrimary,
				Amount:      run.totalMargin.Round(2),
				ReferenceID: "settlement:batch:" + batch.ID.String() + ":margin",
				Remarks:     "distributor margin",
			})
			if err != nil && !errors.Is(err, ledgerdomain.ErrDuplicateReference) {
				s.log.Error("distributor margin credit failed",
					zap.String("batch_id", batch.ID.String()), zap.Error(err))
			}
		}
	}

	if run.totalEarning.IsPositive() {
		_, err := s.ledgerSvc.CreditCompanyEarning(ctx,
			run.totalEarning.Round(2),
			"settlement:batch:"+batch.ID.String()+":earning",
			"company earning",
		)
		if err != nil && !errors.Is(err, ledgerdomain.ErrDuplicateReference) {
			s.log.Error("company earning credit failed",
				zap.String("batch_id", batch.ID.String()), zap.Error(err))
		}
	}
}

func (s *Service) GetBatch(ctx context.Context, id snowflake.ID) (*settlementdomain.BatchDetail, error) {
	batch, err := s.repo.FindBatchByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, settlementdomain.ErrBatchNotFound
	}

	items, err := s.repo.ListItemsByBatch(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &settlementdomain.BatchDetail{Batch: *batch, Items: items}, nil
}

func (s *Service) ListBatches(ctx context.Context, retailerID snowflake.ID, page pagination.Pagination) ([]settlementdomain.SettlementBatch, *pagination.PageInfo, error) {
	page = page.Normalize()
	batches, total, err := s.repo.ListBatches(ctx, s.db, retailerID, page)
	if err != nil {
		return nil, nil, err
	}
	return batches, pagination.NewPageInfo(page, total), nil
}

func (s *Service) applyTotals(batch *settlementdomain.SettlementBatch, run *batchRun, settledCount int) {
	batch.TotalGross = run.totalGross
	batch.TotalMDR = run.totalMDR
	batch.TotalNet = run.totalNet
	batch.SuccessCount = settledCount
	batch.FailedCount = run.failed
	batch.SkippedCount = run.skipped
}

// batchStatus derives the terminal status: every transaction settled means
// completed, none means failed, anything in between (including skips) partial.
func batchStatus(settled, total int) settlementdomain.BatchStatus {
	switch {
	case settled == total:
		return settlementdomain.BatchStatusCompleted
	case settled == 0:
		return settlementdomain.BatchStatusFailed
	default:
		return settlementdomain.BatchStatusPartial
	}
}
