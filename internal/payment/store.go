package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ceyewan/gacha/db"
	"github.com/ceyewan/gacha/xerrors"
)

var ErrAccountNotFound = xerrors.WithKind(xerrors.New("account not found"), xerrors.KindNotFound)

// Store 余额与流水
type Store struct {
	db  db.DB
	now func() time.Time
}

func NewStore(database db.DB) *Store {
	return &Store{db: database, now: time.Now}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.AutoMigrate(ctx, &Account{}, &Transaction{})
}

// Balance 查询余额
func (s *Store) Balance(ctx context.Context, username string) (float64, error) {
	var acc Account
	err := s.db.DB(ctx).Where("username = ?", username).First(&acc).Error
	if db.IsNotFound(err) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, xerrors.Wrap(err, "get balance")
	}
	return acc.Balance, nil
}

// Deposit 在同一事务中入账并记录流水，账户不存在时创建
func (s *Store) Deposit(ctx context.Context, username string, amount float64, method string) (float64, *Transaction, error) {
	txn := &Transaction{
		ID:            uuid.NewString(),
		PayerUS:       username,
		ReceiverUS:    SystemAccount,
		Amount:        amount,
		PaymentMethod: method,
		Date:          s.now().UTC(),
	}
	var balance float64
	err := s.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoUpdates: clause.Assignments(map[string]any{"balance": gorm.Expr("accounts.balance + ?", amount), "updated_at": s.now()}),
		}).Create(&Account{Username: username, Balance: amount}).Error
		if err != nil {
			return xerrors.Wrap(err, "credit account")
		}
		if err := tx.Create(txn).Error; err != nil {
			return xerrors.Wrap(err, "record transaction")
		}
		var acc Account
		if err := tx.Where("username = ?", username).First(&acc).Error; err != nil {
			return xerrors.Wrap(err, "reload account")
		}
		balance = acc.Balance
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return balance, txn, nil
}

// Transactions 用户作为付款方或收款方的流水，按时间倒序
func (s *Store) Transactions(ctx context.Context, username string) ([]Transaction, error) {
	var out []Transaction
	err := s.db.DB(ctx).
		Where("payer_us = ? OR receiver_us = ?", username, username).
		Order("date DESC").
		Find(&out).Error
	if err != nil {
		return nil, xerrors.Wrap(err, "list transactions")
	}
	return out, nil
}
