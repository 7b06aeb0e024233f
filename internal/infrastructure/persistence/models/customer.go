package models

import (
	"github.com/erp/retailcore/internal/domain/sales"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CustomerModel is the persistence model of a customer. A NULL credit
// limit means unlimited credit.
type CustomerModel struct {
	BaseModel
	Name        string           `gorm:"type:varchar(200);not null"`
	Phone       string           `gorm:"type:varchar(50);index"`
	AccountID   uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex"`
	CreditLimit *decimal.Decimal `gorm:"type:decimal(18,4)"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToDomain converts the model into the credit gate's customer view
func (m *CustomerModel) ToDomain() *sales.Customer {
	c := &sales.Customer{
		ID:        m.ID,
		Name:      m.Name,
		AccountID: m.AccountID,
	}
	if m.CreditLimit != nil {
		limit := *m.CreditLimit
		c.CreditLimit = &limit
	}
	return c
}
