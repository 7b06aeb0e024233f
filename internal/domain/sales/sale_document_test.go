package sales

import (
	"testing"

	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		total, paid string
		expected    Status
	}{
		{"100", "0", StatusUnpaid},
		{"100", "40", StatusPartiallyPaid},
		{"100", "100", StatusPaid},
		{"100", "120", StatusPaid},
		{"0", "0", StatusUnpaid},
	}
	for _, tt := range tests {
		t.Run(tt.total+"/"+tt.paid, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveStatus(d(tt.total), d(tt.paid)))
		})
	}
}

func TestDraft_Validate(t *testing.T) {
	item := uuid.New()
	valid := func() Draft {
		return Draft{
			ShiftID:  uuid.New(),
			Lines:    []LineDraft{{ItemID: item, Quantity: d("1"), UnitPrice: d("150"), Serials: []string{"SN-1"}}},
			Payments: []PaymentDraft{{Method: "cash", Amount: d("150")}},
		}
	}

	t.Run("valid", func(t *testing.T) {
		dr := valid()
		require.NoError(t, dr.Validate())
		assert.True(t, dr.Total().Equal(d("150")))
		assert.True(t, dr.Paid().Equal(d("150")))
	})

	tests := []struct {
		name   string
		mutate func(*Draft)
	}{
		{"no shift", func(dr *Draft) { dr.ShiftID = uuid.Nil }},
		{"no lines", func(dr *Draft) { dr.Lines = nil }},
		{"zero quantity", func(dr *Draft) { dr.Lines[0].Quantity = decimal.Zero }},
		{"negative price", func(dr *Draft) { dr.Lines[0].UnitPrice = d("-1") }},
		{"empty serial", func(dr *Draft) { dr.Lines[0].Serials = []string{""} }},
		{"empty method", func(dr *Draft) { dr.Payments[0].Method = "" }},
		{"zero payment", func(dr *Draft) { dr.Payments[0].Amount = decimal.Zero }},
		{"negative service", func(dr *Draft) {
			dr.Services = []ServiceDraft{{Description: "install", Amount: d("-5")}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dr := valid()
			tt.mutate(&dr)
			assert.ErrorIs(t, dr.Validate(), shared.ErrInvalidInput)
		})
	}

	t.Run("duplicate serial across lines", func(t *testing.T) {
		dr := valid()
		dr.Lines = append(dr.Lines, LineDraft{ItemID: item, Quantity: d("1"), UnitPrice: d("1"), Serials: []string{"SN-1"}})
		assert.ErrorIs(t, dr.Validate(), shared.ErrAlreadyExists)
	})
}

func TestNewLineItem(t *testing.T) {
	serialized := &CatalogItem{ID: uuid.New(), Name: "Phone", Serialized: true, WarrantyMonths: 12}
	bulk := &CatalogItem{ID: uuid.New(), Name: "Cable"}

	t.Run("serialized line takes one serial per unit", func(t *testing.T) {
		line, err := NewLineItem(LineDraft{ItemID: serialized.ID, Quantity: d("2"), UnitPrice: d("10"), Serials: []string{"A", "B"}}, serialized)
		require.NoError(t, err)
		assert.True(t, line.Serialized)
		assert.Equal(t, 12, line.WarrantyMonths)
		assert.Equal(t, []string{"A", "B"}, line.Serials)
		assert.True(t, line.Amount().Equal(d("20")))
	})

	t.Run("serialized line with wrong serial count", func(t *testing.T) {
		_, err := NewLineItem(LineDraft{ItemID: serialized.ID, Quantity: d("2"), UnitPrice: d("10"), Serials: []string{"A"}}, serialized)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("serialized line with fractional quantity", func(t *testing.T) {
		_, err := NewLineItem(LineDraft{ItemID: serialized.ID, Quantity: d("1.5"), UnitPrice: d("10"), Serials: []string{"A"}}, serialized)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("serialized line cannot name a batch", func(t *testing.T) {
		batch := uuid.New()
		_, err := NewLineItem(LineDraft{ItemID: serialized.ID, Quantity: d("1"), UnitPrice: d("10"), Serials: []string{"A"}, BatchID: &batch}, serialized)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("catalog flag wins over request serials", func(t *testing.T) {
		_, err := NewLineItem(LineDraft{ItemID: bulk.ID, Quantity: d("1"), UnitPrice: d("5"), Serials: []string{"X"}}, bulk)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("bulk line", func(t *testing.T) {
		line, err := NewLineItem(LineDraft{ItemID: bulk.ID, Quantity: d("3.5"), UnitPrice: d("2")}, bulk)
		require.NoError(t, err)
		assert.False(t, line.Serialized)
		assert.Equal(t, uuid.Nil, line.VariantID)
	})
}

func newDoc(t *testing.T, total, paid string, cash bool) *SaleDocument {
	t.Helper()
	customer := &Customer{ID: uuid.New(), AccountID: uuid.New()}
	doc := NewSaleDocument(uuid.New(), uuid.New(), customer)
	lines := []LineItem{{ItemID: uuid.New(), Quantity: d("1"), UnitPrice: d(total)}}
	var payments []Payment
	if !d(paid).IsZero() {
		payments = []Payment{{Method: "cash", Amount: d(paid), AccountID: doc.DrawerAccountID, Cash: cash}}
	}
	doc.SetContent(lines, nil, payments)
	return doc
}

func TestSaleDocument_Amounts(t *testing.T) {
	t.Run("partial payment", func(t *testing.T) {
		doc := newDoc(t, "100", "40", true)
		assert.Equal(t, StatusPartiallyPaid, doc.Status)
		assert.True(t, doc.DueAmount().Equal(d("60")))
		assert.True(t, doc.ExcessAmount().IsZero())
		assert.True(t, doc.CashAmount().Equal(d("40")))
	})

	t.Run("overpayment", func(t *testing.T) {
		doc := newDoc(t, "100", "130", false)
		assert.Equal(t, StatusPaid, doc.Status)
		assert.True(t, doc.DueAmount().IsZero())
		assert.True(t, doc.ExcessAmount().Equal(d("30")))
		assert.True(t, doc.CashAmount().IsZero())
	})

	t.Run("children get document id and position", func(t *testing.T) {
		doc := newDoc(t, "100", "100", true)
		assert.Equal(t, doc.ID, doc.Lines[0].DocumentID)
		assert.Equal(t, doc.ID, doc.Payments[0].DocumentID)
		assert.NotEqual(t, uuid.Nil, doc.Lines[0].ID)
	})

	t.Run("services count towards total", func(t *testing.T) {
		doc := NewSaleDocument(uuid.New(), uuid.New(), nil)
		doc.SetContent(nil, []ServiceLine{{Description: "repair", Amount: d("25")}}, nil)
		assert.True(t, doc.TotalAmount.Equal(d("25")))
		assert.Nil(t, doc.CustomerID)
	})
}

func TestSaleDocument_HasFinancialDelta(t *testing.T) {
	doc := newDoc(t, "100", "100", true)
	draft := func() *Draft {
		l := doc.Lines[0]
		return &Draft{
			CustomerID: doc.CustomerID,
			ShiftID:    doc.ShiftID,
			Lines:      []LineDraft{{ItemID: l.ItemID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}},
			Payments:   []PaymentDraft{{Method: "CASH ", Amount: d("100")}},
			Notes:      "changed",
		}
	}

	assert.False(t, doc.HasFinancialDelta(draft()), "notes only")

	dr := draft()
	dr.Lines[0].UnitPrice = d("90")
	assert.True(t, doc.HasFinancialDelta(dr))

	dr = draft()
	dr.Payments[0].Amount = d("50")
	assert.True(t, doc.HasFinancialDelta(dr))

	dr = draft()
	dr.CustomerID = nil
	assert.True(t, doc.HasFinancialDelta(dr))

	dr = draft()
	dr.Lines[0].Serials = []string{"NEW"}
	assert.True(t, doc.HasFinancialDelta(dr))
}

func TestSaleDocument_Close(t *testing.T) {
	t.Run("reverse once", func(t *testing.T) {
		doc := newDoc(t, "100", "100", true)
		require.NoError(t, doc.MarkReversed("mistake"))
		assert.Equal(t, StatusReversed, doc.Status)
		assert.Equal(t, 2, doc.Version)
		assert.NotNil(t, doc.ClosedAt)

		err := doc.MarkReversed("again")
		assert.ErrorIs(t, err, shared.ErrInvalidState)
		assert.ErrorIs(t, doc.MarkReturned("x"), shared.ErrInvalidState)
		assert.ErrorIs(t, doc.UpdateNotes("x"), shared.ErrInvalidState)
		assert.ErrorIs(t, doc.EnsureMutable(), shared.ErrInvalidState)
	})

	t.Run("return", func(t *testing.T) {
		doc := newDoc(t, "100", "100", true)
		require.NoError(t, doc.MarkReturned("defective"))
		assert.Equal(t, StatusReturned, doc.Status)
		assert.Equal(t, "defective", doc.Reason)
		assert.True(t, doc.Status.IsTerminal())
	})
}

func TestPaymentRegistry(t *testing.T) {
	company := uuid.New()
	bank := uuid.New()
	drawer := uuid.New()

	reg, err := NewPaymentRegistry(company, []PaymentMethod{
		{Name: "Cash", Cash: true},
		{Name: "card", AccountID: bank},
		{Name: "transfer"},
	})
	require.NoError(t, err)
	assert.Equal(t, company, reg.CompanyAccountID())
	assert.ElementsMatch(t, []string{"cash", "card", "transfer"}, reg.Methods())

	tests := []struct {
		method   string
		expected uuid.UUID
		cash     bool
	}{
		{"cash", drawer, true},
		{" CASH", drawer, true},
		{"card", bank, false},
		{"transfer", company, false},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			acct, cash, err := reg.Resolve(tt.method, drawer)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, acct)
			assert.Equal(t, tt.cash, cash)
		})
	}

	_, _, err = reg.Resolve("cheque", drawer)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	t.Run("configuration errors", func(t *testing.T) {
		_, err := NewPaymentRegistry(company, []PaymentMethod{{Name: "cash", Cash: true}, {Name: "CASH", Cash: true}})
		assert.Error(t, err)
		_, err = NewPaymentRegistry(company, []PaymentMethod{{Name: " "}})
		assert.Error(t, err)
		_, err = NewPaymentRegistry(uuid.Nil, []PaymentMethod{{Name: "card"}})
		assert.Error(t, err)
	})
}

func TestSaleEvents(t *testing.T) {
	doc := NewSaleDocument(uuid.New(), uuid.New(), nil)
	item := uuid.New()
	doc.SetContent([]LineItem{{ItemID: item, Quantity: d("2"), UnitPrice: d("10"), Serialized: true, Serials: []string{"A", "B"}, WarrantyMonths: 6}}, nil, nil)

	ev := NewSaleCompletedEvent(doc)
	assert.Equal(t, EventTypeSaleCompleted, ev.EventType())
	assert.Equal(t, doc.ID, ev.AggregateID())
	assert.Equal(t, AggregateTypeSale, ev.AggregateType())
	require.Len(t, ev.Units, 2)
	assert.Equal(t, 6, ev.Units[1].WarrantyMonths)

	require.NoError(t, doc.MarkReversed("void"))
	rev := NewSaleReversedEvent(doc)
	assert.Equal(t, EventTypeSaleReversed, rev.EventType())
	assert.Equal(t, StatusReversed, rev.Status)
}
