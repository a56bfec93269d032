package services

import (
	"context"
	"testing"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateServiceSave(t *testing.T) {
	start := date(t, "2025-01-03")

	tests := []struct {
		name     string
		kind     core.TemplateKind
		template core.Template
		wantErr  error
	}{
		{
			name:     "monthly with day",
			kind:     core.BillTemplate,
			template: core.Template{Name: "Rent", Amount: core.Money{Cents: 1000}, BillingPeriod: core.Monthly, DayOfMonth: 31, IsActive: true},
		},
		{
			name:     "bi-weekly with start date",
			kind:     core.IncomeTemplate,
			template: core.Template{Name: "Pay", Amount: core.Money{Cents: 1000}, BillingPeriod: core.BiWeekly, StartDate: &start, IsActive: true},
		},
		{
			name:     "weekly without start date",
			kind:     core.BillTemplate,
			template: core.Template{Name: "Groceries", Amount: core.Money{Cents: 1000}, BillingPeriod: core.Weekly},
			wantErr:  core.ErrInvalidInput,
		},
		{
			name:     "zero amount",
			kind:     core.BillTemplate,
			template: core.Template{Name: "Free", BillingPeriod: core.Monthly, DayOfMonth: 1},
			wantErr:  core.ErrInvalidAmount,
		},
		{
			name:     "unknown period",
			kind:     core.BillTemplate,
			template: core.Template{Name: "Odd", Amount: core.Money{Cents: 1000}, BillingPeriod: "quarterly", StartDate: &start},
			wantErr:  core.ErrInvalidInput,
		},
		{
			name:     "unknown kind",
			kind:     "transfer",
			template: core.Template{Name: "Move", Amount: core.Money{Cents: 1000}, BillingPeriod: core.Monthly, DayOfMonth: 1},
			wantErr:  core.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			saved, err := f.templates.Save(context.Background(), tt.kind, tt.template)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, f.pub.ofType(amqp.MonthSyncRequested))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, saved.ID)
			assert.Equal(t, tt.kind, saved.Kind)
			assert.False(t, saved.CreatedAt.IsZero())

			list, err := f.templates.List(context.Background(), tt.kind)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, saved.ID, list[0].ID)

			events := f.pub.ofType(amqp.MonthSyncRequested)
			require.Len(t, events, 1)
			assert.Equal(t, core.MonthOf(time.Now()), events[0].Month)
		})
	}
}

func TestTemplateServiceUpsertKeepsCreatedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	f.templates.now = func() time.Time { return created }

	first, err := f.templates.Save(ctx, core.BillTemplate, core.Template{
		ID: "rent", Name: "Rent", Amount: core.Money{Cents: 1000}, BillingPeriod: core.Monthly, DayOfMonth: 1, IsActive: true,
	})
	require.NoError(t, err)

	f.templates.now = func() time.Time { return created.Add(48 * time.Hour) }
	second, err := f.templates.Save(ctx, core.BillTemplate, core.Template{
		ID: "rent", Name: "Rent", Amount: core.Money{Cents: 1500}, BillingPeriod: core.Monthly, DayOfMonth: 1, IsActive: true,
	})
	require.NoError(t, err)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	list, err := f.templates.List(ctx, core.BillTemplate)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1500), list[0].Amount.Cents)
}

func TestTemplateServiceSetActive(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	_, err := f.templates.SetActive(ctx, core.BillTemplate, "missing", false)
	require.ErrorIs(t, err, core.ErrNotFound)

	updated, err := f.templates.SetActive(ctx, core.BillTemplate, "groceries", false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	active, err := f.templates.ListActive(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(active))
	for _, tpl := range active {
		ids = append(ids, tpl.ID)
	}
	assert.Equal(t, []string{"rent", "salary"}, ids)

	// no change, no write
	before, _, err := f.store.Backend().Get(ctx, storage.BillTemplatesKey)
	require.NoError(t, err)
	_, err = f.templates.SetActive(ctx, core.BillTemplate, "groceries", false)
	require.NoError(t, err)
	after, _, err := f.store.Backend().Get(ctx, storage.BillTemplatesKey)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestTemplateServiceListEmpty(t *testing.T) {
	f := newFixture(t)

	list, err := f.templates.List(context.Background(), core.IncomeTemplate)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = f.templates.List(context.Background(), "other")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
