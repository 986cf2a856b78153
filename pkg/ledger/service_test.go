package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"finbot/models"
	"finbot/pkg/dberr"
	"finbot/pkg/testdb"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	db      *gorm.DB
	svc     *Service
	user    models.User
	wallet  models.Wallet
	salary  models.Category // income
	food    models.Category // expense
	transit models.Category // expense
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testdb.Open(t)
	f := &fixture{db: db, svc: NewService(db)}

	f.user = models.User{Username: "alice", HashedPassword: []byte("x")}
	require.NoError(t, db.Create(&f.user).Error)

	f.wallet = models.Wallet{UserID: f.user.ID, Name: "Cash"}
	require.NoError(t, db.Create(&f.wallet).Error)

	uid := f.user.ID
	f.salary = models.Category{UserID: &uid, Name: "Salary", Kind: models.KindIncome}
	f.food = models.Category{UserID: &uid, Name: "Food", Kind: models.KindExpense}
	f.transit = models.Category{UserID: &uid, Name: "Transport", Kind: models.KindExpense}
	require.NoError(t, db.Create(&f.salary).Error)
	require.NoError(t, db.Create(&f.food).Error)
	require.NoError(t, db.Create(&f.transit).Error)
	return f
}

func (f *fixture) post(t *testing.T, kind string, catID uint, amount string) uint {
	t.Helper()
	id, err := f.svc.PostTransaction(PostParams{
		UserID:     f.user.ID,
		Amount:     dec(amount),
		Kind:       kind,
		CategoryID: catID,
		WalletID:   f.wallet.ID,
	})
	require.NoError(t, err)
	return id
}

// recomputedBalance re-derives the balance from the append-only history.
func (f *fixture) recomputedBalance(t *testing.T) decimal.Decimal {
	t.Helper()
	var rows []models.Transaction
	require.NoError(t, f.db.Where("wallet_id = ?", f.wallet.ID).Find(&rows).Error)
	sum := decimal.Zero
	for _, r := range rows {
		if r.Kind == models.KindIncome {
			sum = sum.Add(r.Amount)
		} else {
			sum = sum.Sub(r.Amount)
		}
	}
	return sum
}

func TestPostTransaction_BalanceMatchesHistory(t *testing.T) {
	f := newFixture(t)

	steps := []struct {
		kind   string
		cat    uint
		amount string
	}{
		{models.KindIncome, f.salary.ID, "100.00"},
		{models.KindExpense, f.food.ID, "12.34"},
		{models.KindIncome, f.salary.ID, "0.01"},
		{models.KindExpense, f.transit.ID, "87.67"},
	}
	for _, st := range steps {
		f.post(t, st.kind, st.cat, st.amount)
		bal, err := f.svc.GetBalance(f.user.ID, f.wallet.ID)
		require.NoError(t, err)
		assert.True(t, bal.Equal(f.recomputedBalance(t)),
			"stored balance %s != recomputed %s", bal, f.recomputedBalance(t))
	}

	bal, err := f.svc.GetBalance(f.user.ID, f.wallet.ID)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("0.00")), "got %s", bal)
}

func TestPostTransaction_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.post(t, models.KindIncome, f.salary.ID, "50.00")

	_, err := f.svc.PostTransaction(PostParams{
		UserID:     f.user.ID,
		Amount:     dec("70.00"),
		Kind:       models.KindExpense,
		CategoryID: f.food.ID,
		WalletID:   f.wallet.ID,
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// balance unchanged, no expense row written
	bal, err := f.svc.GetBalance(f.user.ID, f.wallet.ID)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("50.00")), "got %s", bal)

	items, err := f.svc.ListTransactions(f.user.ID, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.KindIncome, items[0].Kind)
}

func TestPostTransaction_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PostTransaction(PostParams{
		UserID: f.user.ID, Amount: dec("0"), Kind: models.KindIncome,
		CategoryID: f.salary.ID, WalletID: f.wallet.ID,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.svc.PostTransaction(PostParams{
		UserID: f.user.ID, Amount: dec("-5"), Kind: models.KindExpense,
		CategoryID: f.food.ID, WalletID: f.wallet.ID,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.svc.PostTransaction(PostParams{
		UserID: f.user.ID, Amount: dec("5"), Kind: "transfer",
		CategoryID: f.salary.ID, WalletID: f.wallet.ID,
	})
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestPostTransaction_DanglingReferences(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PostTransaction(PostParams{
		UserID: f.user.ID, Amount: dec("5.00"), Kind: models.KindIncome,
		CategoryID: 9999, WalletID: f.wallet.ID,
	})
	assert.ErrorIs(t, err, dberr.ErrInvalidReference)

	_, err = f.svc.PostTransaction(PostParams{
		UserID: f.user.ID, Amount: dec("5.00"), Kind: models.KindIncome,
		CategoryID: f.salary.ID, WalletID: 9999,
	})
	assert.ErrorIs(t, err, dberr.ErrInvalidReference)

	// a foreign user must not be able to post into alice's wallet
	bob := models.User{Username: "bob", HashedPassword: []byte("x")}
	require.NoError(t, f.db.Create(&bob).Error)
	_, err = f.svc.PostTransaction(PostParams{
		UserID: bob.ID, Amount: dec("5.00"), Kind: models.KindIncome,
		CategoryID: f.salary.ID, WalletID: f.wallet.ID,
	})
	assert.ErrorIs(t, err, dberr.ErrInvalidReference)
}

func TestPostTransaction_ConcurrentIncomes(t *testing.T) {
	f := newFixture(t)

	const workers = 8
	const perWorker = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := f.svc.PostTransaction(PostParams{
					UserID:     f.user.ID,
					Amount:     dec("2.50"),
					Kind:       models.KindIncome,
					CategoryID: f.salary.ID,
					WalletID:   f.wallet.ID,
				})
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	bal, err := f.svc.GetBalance(f.user.ID, f.wallet.ID)
	require.NoError(t, err)
	want := dec("2.50").Mul(decimal.NewFromInt(workers * perWorker))
	assert.True(t, bal.Equal(want), "got %s want %s", bal, want)
	assert.True(t, bal.Equal(f.recomputedBalance(t)))
}

func TestPostTransaction_ConcurrentExpensesNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	f.post(t, models.KindIncome, f.salary.ID, "10.00")

	// 20 callers race to spend 1.00 from a 10.00 wallet: exactly 10 can win
	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.PostTransaction(PostParams{
				UserID:     f.user.ID,
				Amount:     dec("1.00"),
				Kind:       models.KindExpense,
				CategoryID: f.food.ID,
				WalletID:   f.wallet.ID,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		default:
			require.ErrorIs(t, err, ErrInsufficientFunds)
			rejected++
		}
	}
	assert.Equal(t, 10, ok)
	assert.Equal(t, 10, rejected)

	bal, err := f.svc.GetBalance(f.user.ID, f.wallet.ID)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.Zero), "got %s", bal)
	assert.True(t, f.recomputedBalance(t).Equal(decimal.Zero))
}

func TestListTransactions_NewestFirstAndWalletFilter(t *testing.T) {
	f := newFixture(t)
	other := models.Wallet{UserID: f.user.ID, Name: "Card"}
	require.NoError(t, f.db.Create(&other).Error)

	first := f.post(t, models.KindIncome, f.salary.ID, "1.00")
	second := f.post(t, models.KindIncome, f.salary.ID, "2.00")
	_, err := f.svc.PostTransaction(PostParams{
		UserID: f.user.ID, Amount: dec("3.00"), Kind: models.KindIncome,
		CategoryID: f.salary.ID, WalletID: other.ID,
	})
	require.NoError(t, err)

	all, err := f.svc.ListTransactions(f.user.ID, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)

	filtered, err := f.svc.ListTransactions(f.user.ID, &f.wallet.ID)
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, second, filtered[0].ID, "newest first")
	assert.Equal(t, first, filtered[1].ID)
}

func TestSummary_CurrentMonthWindow(t *testing.T) {
	f := newFixture(t)
	now := time.Now()

	f.post(t, models.KindIncome, f.salary.ID, "300.00")
	f.post(t, models.KindExpense, f.food.ID, "40.00")
	f.post(t, models.KindExpense, f.transit.ID, "10.00")

	// push one posting out of the current month window
	old := f.post(t, models.KindExpense, f.food.ID, "25.00")
	lastMonth := now.AddDate(0, -1, 0)
	require.NoError(t, f.db.Model(&models.Transaction{}).
		Where("id = ?", old).
		UpdateColumn("created_at", lastMonth).Error)

	sum, err := f.svc.Summary(f.user.ID, now)
	require.NoError(t, err)
	assert.True(t, sum.Income.Equal(dec("300.00")), "income %s", sum.Income)
	assert.True(t, sum.Expense.Equal(dec("50.00")), "expense %s", sum.Expense)
	assert.True(t, sum.Balance.Equal(dec("250.00")), "balance %s", sum.Balance)
}

func TestTopCategories_OrderedAndLimited(t *testing.T) {
	f := newFixture(t)
	f.post(t, models.KindIncome, f.salary.ID, "500.00")
	f.post(t, models.KindExpense, f.food.ID, "30.00")
	f.post(t, models.KindExpense, f.food.ID, "20.00")
	f.post(t, models.KindExpense, f.transit.ID, "15.00")

	top, err := f.svc.TopCategories(f.user.ID, 5, time.Now())
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Food", top[0].Name)
	assert.True(t, top[0].Total.Equal(dec("50.00")))
	assert.Equal(t, "Transport", top[1].Name)

	limited, err := f.svc.TopCategories(f.user.ID, 1, time.Now())
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "Food", limited[0].Name)
}

func TestLastTransaction(t *testing.T) {
	f := newFixture(t)

	last, err := f.svc.LastTransaction(f.user.ID)
	require.NoError(t, err)
	assert.Nil(t, last)

	f.post(t, models.KindIncome, f.salary.ID, "1.00")
	id := f.post(t, models.KindExpense, f.food.ID, "0.50")

	last, err = f.svc.LastTransaction(f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, id, last.ID)
}

func TestDeleteWallet_BlockedWhileReferenced(t *testing.T) {
	f := newFixture(t)
	f.post(t, models.KindIncome, f.salary.ID, "5.00")

	err := f.svc.DeleteWallet(f.user.ID, f.wallet.ID)
	require.ErrorIs(t, err, ErrWalletInUse)

	empty := models.Wallet{UserID: f.user.ID, Name: "Spare"}
	require.NoError(t, f.db.Create(&empty).Error)
	require.NoError(t, f.svc.DeleteWallet(f.user.ID, empty.ID))

	err = f.svc.DeleteWallet(f.user.ID, empty.ID)
	assert.ErrorIs(t, err, dberr.ErrNotFound)
}

func TestGetBalance_ForeignWallet(t *testing.T) {
	f := newFixture(t)
	bob := models.User{Username: "bob", HashedPassword: []byte("x")}
	require.NoError(t, f.db.Create(&bob).Error)

	_, err := f.svc.GetBalance(bob.ID, f.wallet.ID)
	assert.ErrorIs(t, err, dberr.ErrNotFound)
}
