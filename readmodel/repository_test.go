package readmodel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accountView struct {
	ID             string
	NormalizedName string
	DisplayName    *string
	Age            int
	Tags           []string
	Attrs          map[string]string
	Version        int64
}

func newAccountRepo(t *testing.T, views ...*accountView) *InMemoryRepository[accountView] {
	t.Helper()
	repo := NewInMemoryRepository(func(v *accountView) string { return v.ID })
	for _, v := range views {
		require.NoError(t, repo.Insert(context.Background(), v))
	}
	return repo
}

func strPtr(s string) *string { return &s }

func TestInMemoryRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("get returns inserted view", func(t *testing.T) {
		repo := newAccountRepo(t, &accountView{ID: "a", NormalizedName: "ALICE"})

		view, err := repo.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "ALICE", view.NormalizedName)
	})

	t.Run("get unknown id returns ErrNotFound", func(t *testing.T) {
		repo := newAccountRepo(t)

		_, err := repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate insert returns ErrAlreadyExists", func(t *testing.T) {
		repo := newAccountRepo(t, &accountView{ID: "a"})

		err := repo.Insert(ctx, &accountView{ID: "a"})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("get returns a copy", func(t *testing.T) {
		repo := newAccountRepo(t, &accountView{ID: "a", Age: 30})

		view, err := repo.Get(ctx, "a")
		require.NoError(t, err)
		view.Age = 99

		again, err := repo.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 30, again.Age)
	})

	t.Run("get isolates nested maps, slices, and pointers", func(t *testing.T) {
		repo := newAccountRepo(t, &accountView{
			ID:          "a",
			DisplayName: strPtr("Alice"),
			Tags:        []string{"admin"},
			Attrs:       map[string]string{"tier": "gold"},
		})

		view, err := repo.Get(ctx, "a")
		require.NoError(t, err)
		*view.DisplayName = "Mallory"
		view.Tags[0] = "root"
		view.Attrs["tier"] = "lead"

		again, err := repo.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "Alice", *again.DisplayName)
		assert.Equal(t, []string{"admin"}, again.Tags)
		assert.Equal(t, "gold", again.Attrs["tier"])
	})

	t.Run("find with equality filter", func(t *testing.T) {
		repo := newAccountRepo(t,
			&accountView{ID: "a", NormalizedName: "ACME"},
			&accountView{ID: "b", NormalizedName: "OTHER"},
		)

		views, err := repo.Find(ctx, NewQuery().Where("NormalizedName", FilterOpEq, "ACME").Build())
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, "a", views[0].ID)
	})

	t.Run("find with like filter is case-insensitive", func(t *testing.T) {
		repo := newAccountRepo(t,
			&accountView{ID: "a", NormalizedName: "NORTHWIND"},
			&accountView{ID: "b", NormalizedName: "SOUTH"},
		)

		views, err := repo.Find(ctx, NewQuery().Where("NormalizedName", FilterOpLike, "north").Build())
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, "a", views[0].ID)
	})

	t.Run("is null matches nil pointer fields", func(t *testing.T) {
		repo := newAccountRepo(t,
			&accountView{ID: "a"},
			&accountView{ID: "b", DisplayName: strPtr("Bob")},
		)

		views, err := repo.Find(ctx, NewQuery().Where("DisplayName", FilterOpIsNull, nil).Build())
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, "a", views[0].ID)
	})

	t.Run("contains matches slice membership", func(t *testing.T) {
		repo := newAccountRepo(t,
			&accountView{ID: "a", Tags: []string{"admin", "ops"}},
			&accountView{ID: "b", Tags: []string{"guest"}},
		)

		views, err := repo.Find(ctx, NewQuery().Where("Tags", FilterOpContains, "admin").Build())
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, "a", views[0].ID)
	})

	t.Run("unknown field returns ErrInvalidQuery", func(t *testing.T) {
		repo := newAccountRepo(t, &accountView{ID: "a"})

		_, err := repo.Find(ctx, NewQuery().Where("Nope", FilterOpEq, "x").Build())
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})

	t.Run("ordering ascending and descending", func(t *testing.T) {
		repo := newAccountRepo(t,
			&accountView{ID: "a", Age: 30},
			&accountView{ID: "b", Age: 20},
			&accountView{ID: "c", Age: 40},
		)

		asc, err := repo.Find(ctx, NewQuery().OrderByAsc("Age").Build())
		require.NoError(t, err)
		require.Len(t, asc, 3)
		assert.Equal(t, []string{"b", "a", "c"}, []string{asc[0].ID, asc[1].ID, asc[2].ID})

		desc, err := repo.Find(ctx, NewQuery().OrderByDesc("Age").Build())
		require.NoError(t, err)
		assert.Equal(t, "c", desc[0].ID)
	})

	t.Run("find page reports total before paging", func(t *testing.T) {
		repo := newAccountRepo(t,
			&accountView{ID: "a", Age: 1},
			&accountView{ID: "b", Age: 2},
			&accountView{ID: "c", Age: 3},
			&accountView{ID: "d", Age: 4},
			&accountView{ID: "e", Age: 5},
		)

		result, err := repo.FindPage(ctx, NewQuery().OrderByAsc("Age").WithPagination(2, 2).Build())
		require.NoError(t, err)
		assert.Equal(t, int64(5), result.TotalCount)
		require.Len(t, result.Items, 2)
		assert.Equal(t, "c", result.Items[0].ID)
		assert.Equal(t, "d", result.Items[1].ID)
	})

	t.Run("count honors filters", func(t *testing.T) {
		repo := newAccountRepo(t,
			&accountView{ID: "a", Age: 30},
			&accountView{ID: "b", Age: 20},
		)

		count, err := repo.Count(ctx, NewQuery().Where("Age", FilterOpGte, 25).Build())
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("update mutates in place", func(t *testing.T) {
		repo := newAccountRepo(t, &accountView{ID: "a", Age: 30})

		require.NoError(t, repo.Update(ctx, "a", func(v *accountView) { v.Age = 31 }))

		view, err := repo.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 31, view.Age)
	})

	t.Run("delete then get returns ErrNotFound", func(t *testing.T) {
		repo := newAccountRepo(t, &accountView{ID: "a"})

		require.NoError(t, repo.Delete(ctx, "a"))
		_, err := repo.Get(ctx, "a")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("clear empties the repository", func(t *testing.T) {
		repo := newAccountRepo(t, &accountView{ID: "a"}, &accountView{ID: "b"})

		require.NoError(t, repo.Clear(ctx))
		assert.Equal(t, 0, repo.Len())
	})
}
