package payment

import "time"

// SystemAccount 购买游戏币时的收款方
const SystemAccount = "system"

// Account 用户余额
type Account struct {
	Username  string  `gorm:"primaryKey;size:50"`
	Balance   float64 `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (Account) TableName() string { return "accounts" }

// Transaction 一次资金流动
type Transaction struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	PayerUS       string    `gorm:"column:payer_us;size:50;not null;index" json:"payer_us"`
	ReceiverUS    string    `gorm:"column:receiver_us;size:50;not null;index" json:"receiver_us"`
	Amount        float64   `gorm:"not null" json:"amount"`
	PaymentMethod string    `gorm:"size:50" json:"payment_method,omitempty"`
	Date          time.Time `gorm:"not null;index" json:"date"`
}

func (Transaction) TableName() string { return "transactions" }
