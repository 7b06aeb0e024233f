package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemModel_ToDomain(t *testing.T) {
	m := &ItemModel{
		BaseModel:      NewBaseModel(),
		Code:           "PH-01",
		Name:           "Phone",
		Serialized:     true,
		ReorderPoint:   decimal.NewFromInt(2),
		WarrantyMonths: 12,
	}

	item := m.ToDomain()
	assert.Equal(t, m.ID, item.ID)
	assert.Equal(t, "Phone", item.Name)
	assert.True(t, item.Serialized)
	assert.True(t, item.ReorderPoint.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, 12, item.WarrantyMonths)
}

func TestCustomerModel_ToDomain(t *testing.T) {
	t.Run("unlimited credit stays nil", func(t *testing.T) {
		m := &CustomerModel{BaseModel: NewBaseModel(), Name: "Walk-in", AccountID: uuid.New()}
		c := m.ToDomain()
		assert.Nil(t, c.CreditLimit)
		assert.Equal(t, m.AccountID, c.AccountID)
	})

	t.Run("limit is copied", func(t *testing.T) {
		limit := decimal.NewFromInt(100)
		m := &CustomerModel{BaseModel: NewBaseModel(), Name: "Regular", AccountID: uuid.New(), CreditLimit: &limit}
		c := m.ToDomain()
		require.NotNil(t, c.CreditLimit)
		assert.True(t, c.CreditLimit.Equal(limit))
		assert.NotSame(t, m.CreditLimit, c.CreditLimit)
	})
}
