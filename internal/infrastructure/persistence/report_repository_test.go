package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/messaging"
	"github.com/openground/backend/internal/domain/report"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormReportRepository(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormReportRepository(db)
	ctx := context.Background()

	reporter := seedUser(t, db, "reporter")
	seller := seedUser(t, db, "seller")
	l := seedListing(t, db, seller.ID, listingSeed{title: "Too good to be true", price: "1"})

	rp, err := report.NewReport(reporter.ID, report.TargetListing, l.ID, report.ReasonScam, "")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, rp))

	open, err := repo.HasOpenReport(ctx, reporter.ID, report.TargetListing, l.ID)
	require.NoError(t, err)
	assert.True(t, open)

	other, err := report.NewReport(reporter.ID, report.TargetUser, seller.ID, report.ReasonOffensive, "")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, other))

	queue, total, err := repo.List(ctx, report.Filter{Status: report.StatusOpen})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, rp.ID, queue[0].ID)

	byType, total, err := repo.List(ctx, report.Filter{TargetType: report.TargetUser})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, other.ID, byType[0].ID)

	stale := *rp
	admin := uuid.New()
	require.NoError(t, rp.Resolve(admin, "listing removed"))
	require.NoError(t, repo.Update(ctx, rp))

	require.NoError(t, stale.Dismiss(admin, "duplicate"))
	assert.ErrorIs(t, repo.Update(ctx, &stale), shared.ErrConcurrencyConflict)

	got, err := repo.FindByID(ctx, rp.ID)
	require.NoError(t, err)
	assert.Equal(t, report.StatusResolved, got.Status)
	assert.Equal(t, "listing removed", got.ResolutionNote)

	open, err = repo.HasOpenReport(ctx, reporter.ID, report.TargetListing, l.ID)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestGormTargetChecker(t *testing.T) {
	db := newSQLiteDB(t)
	checker := NewGormTargetChecker(db)
	ctx := context.Background()

	seller := seedUser(t, db, "seller")
	buyer := seedUser(t, db, "buyer")
	l := seedListing(t, db, seller.ID, listingSeed{title: "Bicycle", price: "80"})
	th, err := messaging.NewThread(l.ID, seller.ID, buyer.ID, "")
	require.NoError(t, err)
	require.NoError(t, NewGormThreadRepository(db).Create(ctx, th))
	msg, err := th.Post(buyer.ID, "hello")
	require.NoError(t, err)
	require.NoError(t, NewGormMessageRepository(db).Create(ctx, msg))

	tests := []struct {
		name string
		typ  report.TargetType
		id   uuid.UUID
		want bool
	}{
		{"listing", report.TargetListing, l.ID, true},
		{"user", report.TargetUser, buyer.ID, true},
		{"message", report.TargetMessage, msg.ID, true},
		{"missing listing", report.TargetListing, uuid.New(), false},
		{"unknown type", report.TargetType("thread"), th.ID, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := checker.TargetExists(ctx, tt.typ, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}
