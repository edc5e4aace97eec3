package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/pulsepaylabs/pulsepay/internal/config"
	ledgerdomain "github.com/pulsepaylabs/pulsepay/internal/ledger/domain"
	ledgerservice "github.com/pulsepaylabs/pulsepay/internal/ledger/service"
	partnerdomain "github.com/pulsepaylabs/pulsepay/internal/partner/domain"
	partnerrepo "github.com/pulsepaylabs/pulsepay/internal/partner/repository"
	schemedomain "github.com/pulsepaylabs/pulsepay/internal/scheme/domain"
	schemeservice "github.com/pulsepaylabs/pulsepay/internal/scheme/service"
	settlementdomain "github.com/pulsepaylabs/pulsepay/internal/settlement/domain"
	"github.com/pulsepaylabs/pulsepay/internal/settlement/repository"
	txndomain "github.com/pulsepaylabs/pulsepay/internal/transaction/domain"
	txnrepo "github.com/pulsepaylabs/pulsepay/internal/transaction/repository"
	"github.com/pulsepaylabs/pulsepay/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db          *gorm.DB
	node        *snowflake.Node
	svc         *Service
	retailer    *partnerdomain.Partner
	distributor *partnerdomain.Partner
}

// failingLedger simulates a wallet provider outage.
type failingLedger struct{}

func (failingLedger) Credit(context.Context, ledgerdomain.CreditRequest) (snowflake.ID, error) {
	return 0, errors.New("wallet provider timeout")
}

func (failingLedger) CreditCompanyEarning(context.Context, decimal.Decimal, string, string) (snowflake.ID, error) {
	return 0, errors.New("wallet provider timeout")
}

func newFixture(t *testing.T, ledgerSvc ledgerdomain.Service) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&partnerdomain.Partner{},
		&schemedomain.Scheme{},
		&txndomain.Transaction{},
		&settlementdomain.SettlementBatch{},
		&settlementdomain.BatchItem{},
		&ledgerdomain.WalletEntry{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	if ledgerSvc == nil {
		ledgerSvc = ledgerservice.NewService(ledgerservice.ServiceParam{
			DB:    db,
			Log:   zap.NewNop(),
			GenID: node,
		})
	}

	f := &fixture{
		db:   db,
		node: node,
		svc: &Service{
			db:          db,
			log:         zap.NewNop(),
			genID:       node,
			cfg:         config.SettlementConfig{InstantBatchLimit: 50},
			repo:        repository.NewRepository(),
			txnRepo:     txnrepo.NewRepository(),
			partnerRepo: partnerrepo.NewRepository(),
			schemeSvc: schemeservice.NewService(schemeservice.ServiceParam{
				DB:    db,
				Log:   zap.NewNop(),
				GenID: node,
			}),
			ledgerSvc: ledgerSvc,
		},
	}

	f.distributor = &partnerdomain.Partner{
		ID:     node.Generate(),
		Code:   "D001",
		Name:   "distributor",
		Role:   partnerdomain.RoleDistributor,
		Status: partnerdomain.StatusActive,
	}
	require.NoError(t, db.Create(f.distributor).Error)

	f.retailer = &partnerdomain.Partner{
		ID:       node.Generate(),
		Code:     "R001",
		Name:     "retailer",
		Role:     partnerdomain.RoleRetailer,
		ParentID: &f.distributor.ID,
		Status:   partnerdomain.StatusActive,
	}
	require.NoError(t, db.Create(f.retailer).Error)

	// Global catch-all card scheme: T0 1.2/1.0, T1 1.0/0.8.
	_, err = f.svc.schemeSvc.Create(context.Background(), schemedomain.CreateSchemeRequest{
		Scope:            schemedomain.ScopeGlobal,
		Mode:             schemedomain.ModeCard,
		RetailerMDRT0:    dec("1.2"),
		DistributorMDRT0: dec("1.0"),
		RetailerMDRT1:    dec("1.0"),
		DistributorMDRT1: dec("0.8"),
	})
	require.NoError(t, err)

	return f
}

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (f *fixture) seedTxn(t *testing.T, retailerID snowflake.ID, amount string, age time.Duration) *txndomain.Transaction {
	t.Helper()
	txn := &txndomain.Transaction{
		ID:              f.node.Generate(),
		RetailerID:      retailerID,
		Amount:          dec(amount),
		Mode:            string(schemedomain.ModeCard),
		CardType:        "CREDIT",
		BrandType:       "VISA",
		DisplayStatus:   txndomain.DisplayStatusSuccess,
		TransactionTime: time.Now().UTC().Add(-age),
	}
	require.NoError(t, f.db.Create(txn).Error)
	return txn
}

func (f *fixture) reloadTxn(t *testing.T, id snowflake.ID) *txndomain.Transaction {
	t.Helper()
	var txn txndomain.Transaction
	require.NoError(t, f.db.Where("id = ?", id).First(&txn).Error)
	return &txn
}

func (f *fixture) balance(t *testing.T, partnerID snowflake.ID) decimal.Decimal {
	t.Helper()
	var balance decimal.Decimal
	require.NoError(t, f.db.Raw(`SELECT wallet_balance FROM partners WHERE id = ?`, partnerID).Scan(&balance).Error)
	return balance
}

func TestSettleInstantCompletesBatch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	txn1 := f.seedTxn(t, f.retailer.ID, "1000", time.Hour)
	txn2 := f.seedTxn(t, f.retailer.ID, "500", time.Hour)

	summary, err := f.svc.SettleInstant(ctx, f.retailer.ID, []snowflake.ID{txn1.ID, txn2.ID})
	require.NoError(t, err)

	assert.Equal(t, settlementdomain.BatchStatusCompleted, summary.Status)
	assert.Equal(t, 2, summary.Settled)
	assert.Zero(t, summary.Failed)
	assert.True(t, summary.TotalNet.Equal(dec("1482")), "net %s", summary.TotalNet)

	// Retailer gets one aggregate credit, distributor the summed margin.
	assert.True(t, f.balance(t, f.retailer.ID).Equal(dec("1482")))
	assert.True(t, f.balance(t, f.distributor.ID).Equal(dec("3")))

	var entries int64
	require.NoError(t, f.db.Model(&ledgerdomain.WalletEntry{}).
		Where("partner_id = ?", f.retailer.ID).Count(&entries).Error)
	assert.EqualValues(t, 1, entries)

	for _, id := range []snowflake.ID{txn1.ID, txn2.ID} {
		got := f.reloadTxn(t, id)
		assert.True(t, got.WalletCredited)
		require.NotNil(t, got.SettlementMode)
		assert.Equal(t, txndomain.SettlementModeInstant, *got.SettlementMode)
		require.NotNil(t, got.SettlementRate)
		assert.True(t, got.SettlementRate.Equal(dec("1.2")))
		assert.NotNil(t, got.SchemeID)
	}

	detail, err := f.svc.GetBatch(ctx, summary.BatchID)
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.BatchStatusCompleted, detail.Batch.Status)
	assert.Equal(t, 2, detail.Batch.SuccessCount)
	assert.NotNil(t, detail.Batch.WalletCreditID)
	assert.NotNil(t, detail.Batch.CompletedAt)
	assert.Len(t, detail.Items, 2)
	for _, item := range detail.Items {
		assert.Equal(t, settlementdomain.ItemStatusSettled, item.Status)
	}
}

func TestSettleInstantRejectsDuplicate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	txn := f.seedTxn(t, f.retailer.ID, "1000", time.Hour)

	_, err := f.svc.SettleInstant(ctx, f.retailer.ID, []snowflake.ID{txn.ID})
	require.NoError(t, err)

	_, err = f.svc.SettleInstant(ctx, f.retailer.ID, []snowflake.ID{txn.ID})
	var dup *settlementdomain.DuplicateSettlementError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, []snowflake.ID{txn.ID}, dup.TransactionIDs)

	// Exactly one credit landed.
	assert.True(t, f.balance(t, f.retailer.ID).Equal(dec("988")))
}

func TestSettleInstantGateBlocksConcurrentClaim(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	txn := f.seedTxn(t, f.retailer.ID, "1000", time.Hour)

	// Another run holds this transaction as a pending item of a batch that is
	// still processing.
	other := &settlementdomain.SettlementBatch{
		ID:         f.node.Generate(),
		RetailerID: f.retailer.ID,
		Tier:       schemedomain.TierT0,
		Status:     settlementdomain.BatchStatusProcessing,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, f.db.Create(other).Error)
	require.NoError(t, f.db.Create(&settlementdomain.BatchItem{
		ID:            f.node.Generate(),
		BatchID:       other.ID,
		TransactionID: txn.ID,
		Status:        settlementdomain.ItemStatusPending,
		CreatedAt:     time.Now().UTC(),
	}).Error)

	_, err := f.svc.SettleInstant(ctx, f.retailer.ID, []snowflake.ID{txn.ID})
	var dup *settlementdomain.DuplicateSettlementError
	require.ErrorAs(t, err, &dup)
}

func TestSettleInstantRequestValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.SettleInstant(ctx, f.retailer.ID, nil)
	require.ErrorIs(t, err, settlementdomain.ErrNoEligibleTransactions)

	_, err = f.svc.SettleInstant(ctx, f.retailer.ID, []snowflake.ID{f.node.Generate()})
	require.ErrorIs(t, err, txndomain.ErrTransactionNotFound)

	foreign := f.seedTxn(t, f.distributor.ID, "100", time.Hour)
	_, err = f.svc.SettleInstant(ctx, f.retailer.ID, []snowflake.ID{foreign.ID})
	require.ErrorIs(t, err, settlementdomain.ErrNotRetailerOwned)

	f.svc.cfg.InstantBatchLimit = 1
	a := f.seedTxn(t, f.retailer.ID, "100", time.Hour)
	b := f.seedTxn(t, f.retailer.ID, "100", time.Hour)
	_, err = f.svc.SettleInstant(ctx, f.retailer.ID, []snowflake.ID{a.ID, b.ID})
	require.ErrorIs(t, err, settlementdomain.ErrBatchTooLarge)
}

func TestSettlePartialWhenItemSkipped(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	good := f.seedTxn(t, f.retailer.ID, "1000", time.Hour)
	empty := f.seedTxn(t, f.retailer.ID, "0", time.Hour)

	summary, err := f.svc.SettleInstant(ctx, f.retailer.ID, []snowflake.ID{good.ID, empty.ID})
	require.NoError(t, err)

	assert.Equal(t, settlementdomain.BatchStatusPartial, summary.Status)
	assert.Equal(t, 1, summary.Settled)
	assert.Equal(t, 1, summary.Skipped)
	assert.True(t, f.balance(t, f.retailer.ID).Equal(dec("988")))

	assert.True(t, f.reloadTxn(t, good.ID).WalletCredited)
	assert.False(t, f.reloadTxn(t, empty.ID).WalletCredited)

	detail, err := f.svc.GetBatch(ctx, summary.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.Batch.SkippedCount)
}

func TestSettleFailsWhenNoSchemeMatches(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	txn := &txndomain.Transaction{
		ID:              f.node.Generate(),
		RetailerID:      f.retailer.ID,
		Amount:          dec("200"),
		Mode:            string(schemedomain.ModeUPI),
		DisplayStatus:   txndomain.DisplayStatusSuccess,
		TransactionTime: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, f.db.Create(txn).Error)

	summary, err := f.svc.SettleInstant(ctx, f.retailer.ID, []snowflake.ID{txn.ID})
	require.NoError(t, err)

	assert.Equal(t, settlementdomain.BatchStatusFailed, summary.Status)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.FailureReasons, 1)
	assert.Equal(t, schemedomain.ErrSchemeNotFound.Error(), summary.FailureReasons[0].Reason)

	assert.True(t, f.balance(t, f.retailer.ID).IsZero())
	assert.False(t, f.reloadTxn(t, txn.ID).WalletCredited)
}

func TestSettleLedgerFailureLeavesTransactionsOpen(t *testing.T) {
	f := newFixture(t, failingLedger{})
	ctx := context.Background()

	txn := f.seedTxn(t, f.retailer.ID, "1000", time.Hour)

	summary, err := f.svc.SettleInstant(ctx, f.retailer.ID, []snowflake.ID{txn.ID})
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.BatchStatusFailed, summary.Status)
	assert.Zero(t, summary.Settled)

	// The transaction stays eligible untouched.
	got := f.reloadTxn(t, txn.ID)
	assert.False(t, got.WalletCredited)
	assert.Nil(t, got.SettlementMode)
	assert.True(t, f.balance(t, f.retailer.ID).IsZero())

	detail, err := f.svc.GetBatch(ctx, summary.BatchID)
	require.NoError(t, err)
	assert.Contains(t, detail.Batch.ErrorMessage, settlementdomain.ErrLedgerCreditFailed.Error())
	for _, item := range detail.Items {
		assert.Equal(t, settlementdomain.ItemStatusPending, item.Status)
	}

	// A failed batch does not block the retry once the ledger recovers.
	f.svc.ledgerSvc = ledgerservice.NewService(ledgerservice.ServiceParam{
		DB:    f.db,
		Log:   zap.NewNop(),
		GenID: f.node,
	})
	retry, err := f.svc.SettleInstant(ctx, f.retailer.ID, []snowflake.ID{txn.ID})
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.BatchStatusCompleted, retry.Status)
	assert.True(t, f.balance(t, f.retailer.ID).Equal(dec("988")))
}

// flakyTxnRepo fails the write-back for one chosen transaction.
type flakyTxnRepo struct {
	txndomain.Repository
	failID snowflake.ID
}

func (r *flakyTxnRepo) ApplySettlement(ctx context.Context, db *gorm.DB, update txndomain.SettlementUpdate) error {
	if update.TransactionID == r.failID {
		return errors.New("row lock timeout")
	}
	return r.Repository.ApplySettlement(ctx, db, update)
}

func TestSettleWriteBackFailureIsNonFatal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	good := f.seedTxn(t, f.retailer.ID, "1000", time.Hour)
	stuck := f.seedTxn(t, f.retailer.ID, "500", time.Hour)
	f.svc.txnRepo = &flakyTxnRepo{Repository: txnrepo.NewRepository(), failID: stuck.ID}

	summary, err := f.svc.SettleInstant(ctx, f.retailer.ID, []snowflake.ID{good.ID, stuck.ID})
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.BatchStatusCompleted, summary.Status)

	// The batch was credited once for the full net; the partial write-back
	// never triggers a second credit.
	var entries []ledgerdomain.WalletEntry
	require.NoError(t, f.db.
		Where("reference_id = ?", "settlement:batch:"+summary.BatchID.String()).
		Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.True(t, f.balance(t, f.retailer.ID).Equal(dec("1482")))

	got := f.reloadTxn(t, good.ID)
	assert.True(t, got.WalletCredited)

	// The failed write-back leaves that one transaction open for repair.
	got = f.reloadTxn(t, stuck.ID)
	assert.False(t, got.WalletCredited)
	assert.Nil(t, got.SettlementMode)
}

func TestSettleRetailerUsesTierRates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	txn := f.seedTxn(t, f.retailer.ID, "1000", 48*time.Hour)

	summary, err := f.svc.SettleRetailer(ctx, f.retailer.ID, []txndomain.Transaction{*txn}, schemedomain.TierT1)
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.BatchStatusCompleted, summary.Status)
	assert.True(t, summary.TotalNet.Equal(dec("990")), "net %s", summary.TotalNet)

	got := f.reloadTxn(t, txn.ID)
	require.NotNil(t, got.SettlementMode)
	assert.Equal(t, txndomain.SettlementModeAutoT1, *got.SettlementMode)
	require.NotNil(t, got.SettlementRate)
	assert.True(t, got.SettlementRate.Equal(dec("1.0")))

	// Margin at T1 rates: (1.0 - 0.8)% of 1000.
	assert.True(t, f.balance(t, f.distributor.ID).Equal(dec("2")))
}

func TestListBatches(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		txn := f.seedTxn(t, f.retailer.ID, "100", time.Hour)
		_, err := f.svc.SettleInstant(ctx, f.retailer.ID, []snowflake.ID{txn.ID})
		require.NoError(t, err)
	}

	batches, info, err := f.svc.ListBatches(ctx, f.retailer.ID, pagination.Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, batches, 3)
	assert.EqualValues(t, 3, info.TotalCount)

	batches, _, err = f.svc.ListBatches(ctx, f.distributor.ID, pagination.Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, batches)
}
