package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/review"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormReviewRepository_TxAndHistogram(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormReviewRepository(db)
	users := NewGormUserRepository(db)
	ctx := context.Background()

	seller := seedUser(t, db, "seller")
	var reviews []*review.Review
	for i, rating := range []int{5, 4, 5} {
		reviewer := seedUser(t, db, "buyer"+string(rune('a'+i)))
		rv, err := review.NewReview(reviewer.ID, seller.ID, nil, rating, "ok")
		require.NoError(t, err)
		reviews = append(reviews, rv)
	}

	err := repo.WithinTx(ctx, func(tx review.TxRepository) error {
		for _, rv := range reviews {
			if err := tx.Create(ctx, rv); err != nil {
				return err
			}
		}
		h, err := tx.Histogram(ctx, seller.ID)
		if err != nil {
			return err
		}
		s := review.Summarize(h)
		return tx.UpdateUserRating(ctx, seller.ID, s.Average, s.Count)
	})
	require.NoError(t, err)

	h, err := repo.Histogram(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{4: 1, 5: 2}, h)

	u, err := users.FindByID(ctx, seller.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("4.67").Equal(u.RatingAverage), u.RatingAverage.String())
	assert.Equal(t, 3, u.RatingCount)

	exists, err := repo.Exists(ctx, reviews[0].ReviewerID, seller.ID, nil)
	require.NoError(t, err)
	assert.True(t, exists)

	listingID := uuid.New()
	exists, err = repo.Exists(ctx, reviews[0].ReviewerID, seller.ID, &listingID)
	require.NoError(t, err)
	assert.False(t, exists)

	page, total, err := repo.ListForUser(ctx, seller.ID, shared.Filter{Page: 1, PageSize: 2, OrderBy: "rating", OrderDir: "asc"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, 4, page[0].Rating)
}

func TestGormReviewRepository_TxRollback(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormReviewRepository(db)
	ctx := context.Background()

	seller := seedUser(t, db, "seller")
	buyer := seedUser(t, db, "buyer")
	rv, err := review.NewReview(buyer.ID, seller.ID, nil, 3, "")
	require.NoError(t, err)

	err = repo.WithinTx(ctx, func(tx review.TxRepository) error {
		if err := tx.Create(ctx, rv); err != nil {
			return err
		}
		return tx.UpdateUserRating(ctx, uuid.New(), decimal.Zero, 0)
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = repo.FindByID(ctx, rv.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormReviewRepository_UpdateAndDelete(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormReviewRepository(db)
	ctx := context.Background()

	seller := seedUser(t, db, "seller")
	buyer := seedUser(t, db, "buyer")
	rv, err := review.NewReview(buyer.ID, seller.ID, nil, 2, "slow reply")
	require.NoError(t, err)
	require.NoError(t, repo.WithinTx(ctx, func(tx review.TxRepository) error { return tx.Create(ctx, rv) }))

	stale := *rv
	require.NoError(t, rv.Edit(4, "sorted out"))
	require.NoError(t, repo.WithinTx(ctx, func(tx review.TxRepository) error { return tx.Update(ctx, rv) }))

	require.NoError(t, stale.Edit(1, "overwrite"))
	err = repo.WithinTx(ctx, func(tx review.TxRepository) error { return tx.Update(ctx, &stale) })
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	got, err := repo.FindByID(ctx, rv.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Rating)

	require.NoError(t, repo.WithinTx(ctx, func(tx review.TxRepository) error { return tx.Delete(ctx, rv.ID) }))
	err = repo.WithinTx(ctx, func(tx review.TxRepository) error { return tx.Delete(ctx, rv.ID) })
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
