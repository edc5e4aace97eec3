package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pulsepaylabs/pulsepay/internal/config"
	ledgerdomain "github.com/pulsepaylabs/pulsepay/internal/ledger/domain"
	partnerdomain "github.com/pulsepaylabs/pulsepay/internal/partner/domain"
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
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Cfg   config.Config
}

func NewService(p ServiceParam) ledgerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
		cfg:   p.Cfg.Settlement,
	}
}

func (s *Service) Credit(ctx context.Context, req ledgerdomain.CreditRequest) (snowflake.ID, error) {
	if req.PartnerID == 0 || req.ReferenceID == "" || !req.Amount.IsPositive() {
		return 0, ledgerdomain.ErrInvalidCredit
	}
	if req.WalletType == "" {
		req.WalletType = ledgerdomain.WalletTypePrimary
	}

	entryID := s.genID.Generate()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&ledgerdomain.WalletEntry{}).
			Where("reference_id = ? AND wallet_type = ?", req.ReferenceID, req.WalletType).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ledgerdomain.ErrDuplicateReference
		}

		result := tx.Model(&partnerdomain.Partner{}).
			Where("id = ?", req.PartnerID).
			Update("wallet_balance", gorm.Expr("wallet_balance + ?", req.Amount))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ledgerdomain.ErrPartnerNotFound
		}

		var balance decimal.Decimal
		if err := tx.Raw(`SELECT wallet_balance FROM partners WHERE id = ?`, req.PartnerID).
			Scan(&balance).Error; err != nil {
			return err
		}

		return tx.Create(&ledgerdomain.WalletEntry{
			ID:            entryID,
			PartnerID:     req.PartnerID,
			Role:          req.Role,
			WalletType:    req.WalletType,
			Amount:        req.Amount,
			BalanceAfter:  balance,
			ReferenceID:   req.ReferenceID,
			TransactionID: req.TransactionID,
			Remarks:       req.Remarks,
			CreatedAt:     time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return 0, err
	}
	return entryID, nil
}

func (s *Service) CreditCompanyEarning(ctx context.Context, amount decimal.Decimal, referenceID, remarks string) (snowflake.ID, error) {
	if !amount.IsPositive() {
		return 0, ledgerdomain.ErrInvalidCredit
	}

	if s.cfg.CompanyAccountID != 0 {
		return s.Credit(ctx, ledgerdomain.CreditRequest{
			PartnerID:   snowflake.ID(s.cfg.CompanyAccountID),
			Role:        partnerdomain.RoleAdmin,
			WalletType:  ledgerdomain.WalletTypePrimary,
			Amount:      amount,
			ReferenceID: referenceID,
			Remarks:     remarks,
		})
	}

	// No company account configured: park the earning so it stays claimable.
	s.log.Warn("company account unconfigured, parking earning",
		zap.String("reference_id", referenceID),
		zap.String("amount", amount.String()),
	)

	entryID := s.genID.Generate()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&ledgerdomain.WalletEntry{}).
			Where("reference_id = ? AND wallet_type = ?", referenceID, ledgerdomain.WalletTypePendingEarnings).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ledgerdomain.ErrDuplicateReference
		}

		return tx.Create(&ledgerdomain.WalletEntry{
			ID:           entryID,
			PartnerID:    0,
			Role:         partnerdomain.RoleAdmin,
			WalletType:   ledgerdomain.WalletTypePendingEarnings,
			Amount:       amount,
			BalanceAfter: decimal.Zero,
			ReferenceID:  referenceID,
			Remarks:      remarks,
			CreatedAt:    time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return 0, err
	}
	return entryID, nil
}
