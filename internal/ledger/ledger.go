package ledger

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/forlabsio/crypto-exchange/internal/models"
)

// Ledger - учет балансов пользователей (Wallet Ledger).
//
// Назначение:
// Атомарные примитивы debit/credit/lock/unlock над кошельками.
// Каждая мутация выполняется внутри транзакции, удерживающей
// эксклюзивную блокировку строки кошелька (SELECT ... FOR UPDATE),
// поэтому конкурентные операции над одним (user, asset) сериализуются.
//
// Два уровня API:
//   - Tx-примитивы (LockRow, DebitTx, CreditTx, LockFundsTx, UnlockTx) -
//     для компонентов, объединяющих несколько проводок в одну атомарную
//     единицу (settlement, lifecycle подписок)
//   - Одиночные операции (Credit, GetOrCreate) - открывают собственную
//     транзакцию
type Ledger struct {
	db  *sql.DB
	log *zap.Logger
}

// New создает новый Ledger
func New(db *sql.DB, log *zap.Logger) *Ledger {
	return &Ledger{db: db, log: log}
}

// DB возвращает хендл БД для компонентов, открывающих свои транзакции
func (l *Ledger) DB() *sql.DB {
	return l.db
}

// ============ Чтение ============

// Get возвращает кошелек (user, asset) без блокировки
func (l *Ledger) Get(userID int, asset string) (*models.Wallet, error) {
	return l.scanWallet(l.db.QueryRow(
		`SELECT id, user_id, asset, balance, locked_balance
		 FROM wallets WHERE user_id = $1 AND asset = $2`,
		userID, asset,
	))
}

// ListByUser возвращает все кошельки пользователя
func (l *Ledger) ListByUser(userID int) ([]*models.Wallet, error) {
	rows, err := l.db.Query(
		`SELECT id, user_id, asset, balance, locked_balance
		 FROM wallets WHERE user_id = $1 ORDER BY asset`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []*models.Wallet
	for rows.Next() {
		w := &models.Wallet{}
		var balance, locked string
		if err := rows.Scan(&w.ID, &w.UserID, &w.Asset, &balance, &locked); err != nil {
			return nil, err
		}
		if w.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("parse balance: %w", err)
		}
		if w.Locked, err = decimal.NewFromString(locked); err != nil {
			return nil, fmt.Errorf("parse locked balance: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// GetOrCreate возвращает кошелек, создавая его с нулевым балансом
// при отсутствии (ленивое создание)
func (l *Ledger) GetOrCreate(userID int, asset string) (*models.Wallet, error) {
	w, err := l.Get(userID, asset)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	w = &models.Wallet{UserID: userID, Asset: asset}
	// ON CONFLICT защищает от гонки двух одновременных создателей
	err = l.db.QueryRow(
		`INSERT INTO wallets (user_id, asset, balance, locked_balance)
		 VALUES ($1, $2, 0, 0)
		 ON CONFLICT (user_id, asset) DO UPDATE SET asset = EXCLUDED.asset
		 RETURNING id, balance, locked_balance`,
		userID, asset,
	).Scan(&w.ID, &w.Balance, &w.Locked)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// ============ Tx-примитивы ============

// LockRow читает кошелек с эксклюзивной блокировкой строки.
// Блокировка удерживается до конца транзакции tx.
func (l *Ledger) LockRow(tx *sql.Tx, userID int, asset string) (*models.Wallet, error) {
	return l.scanWallet(tx.QueryRow(
		`SELECT id, user_id, asset, balance, locked_balance
		 FROM wallets WHERE user_id = $1 AND asset = $2
		 FOR UPDATE`,
		userID, asset,
	))
}

// LockRowOrCreate читает кошелек с блокировкой, создавая запись при
// отсутствии. Используется при зачислении базового актива покупателю.
func (l *Ledger) LockRowOrCreate(tx *sql.Tx, userID int, asset string) (*models.Wallet, error) {
	w, err := l.LockRow(tx, userID, asset)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	w = &models.Wallet{UserID: userID, Asset: asset}
	err = tx.QueryRow(
		`INSERT INTO wallets (user_id, asset, balance, locked_balance)
		 VALUES ($1, $2, 0, 0)
		 RETURNING id`,
		userID, asset,
	).Scan(&w.ID)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// DebitTx списывает amount с доступного баланса заблокированного кошелька.
// Возвращает InsufficientFundsError если available < amount.
func (l *Ledger) DebitTx(tx *sql.Tx, w *models.Wallet, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if w.Balance.LessThan(amount) {
		return &InsufficientFundsError{
			Asset:     w.Asset,
			Required:  amount,
			Available: w.Balance,
		}
	}
	w.Balance = w.Balance.Sub(amount)
	return l.saveTx(tx, w)
}

// CreditTx зачисляет amount на доступный баланс заблокированного кошелька
func (l *Ledger) CreditTx(tx *sql.Tx, w *models.Wallet, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	w.Balance = w.Balance.Add(amount)
	return l.saveTx(tx, w)
}

// LockFundsTx переводит amount из available в locked (эскроу инвестиции).
// Возвращает InsufficientFundsError если available < amount.
func (l *Ledger) LockFundsTx(tx *sql.Tx, w *models.Wallet, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if w.Balance.LessThan(amount) {
		return &InsufficientFundsError{
			Asset:     w.Asset,
			Required:  amount,
			Available: w.Balance,
		}
	}
	w.Balance = w.Balance.Sub(amount)
	w.Locked = w.Locked.Add(amount)
	return l.saveTx(tx, w)
}

// UnlockTx переводит amount из locked обратно в available.
//
// Превышение locked - это баг учета, а не пользовательская ошибка:
// возвращается InvariantViolationError, операция прерывается, баланс
// не клампится.
func (l *Ledger) UnlockTx(tx *sql.Tx, w *models.Wallet, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if w.Locked.LessThan(amount) {
		err := &InvariantViolationError{
			WalletID: w.ID,
			Op:       "unlock",
			Amount:   amount,
			Current:  w.Locked,
		}
		l.log.Error("ledger invariant violation",
			zap.Int("wallet_id", w.ID),
			zap.Int("user_id", w.UserID),
			zap.String("asset", w.Asset),
			zap.String("op", "unlock"),
			zap.String("amount", amount.String()),
			zap.String("locked", w.Locked.String()),
		)
		return err
	}
	w.Locked = w.Locked.Sub(amount)
	w.Balance = w.Balance.Add(amount)
	return l.saveTx(tx, w)
}

// saveTx записывает измененные балансы кошелька
func (l *Ledger) saveTx(tx *sql.Tx, w *models.Wallet) error {
	res, err := tx.Exec(
		`UPDATE wallets SET balance = $1, locked_balance = $2 WHERE id = $3`,
		w.Balance, w.Locked, w.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// ============ Одиночные операции ============

// Credit зачисляет amount на доступный баланс в собственной транзакции.
// Кошелек создается при отсутствии. Используется при подтверждении
// депозита и административном пополнении.
func (l *Ledger) Credit(userID int, asset string, amount decimal.Decimal) (*models.Wallet, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	tx, err := l.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	w, err := l.LockRowOrCreate(tx, userID, asset)
	if err != nil {
		return nil, err
	}
	if err := l.CreditTx(tx, w, amount); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return w, nil
}

// scanWallet сканирует одну строку кошелька
func (l *Ledger) scanWallet(row *sql.Row) (*models.Wallet, error) {
	w := &models.Wallet{}
	var balance, locked string
	err := row.Scan(&w.ID, &w.UserID, &w.Asset, &balance, &locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	if w.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	if w.Locked, err = decimal.NewFromString(locked); err != nil {
		return nil, fmt.Errorf("parse locked balance: %w", err)
	}
	return w, nil
}
