package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/world-persist/internal/vec"
)

// BadgerStore реализует Store поверх BadgerDB.
//
// Пространство ключей:
//
//	block:p:q:x:y:z  -> w
//	light:p:q:x:y:z  -> w
//	damage:p:q:x:y:z -> damage
//	key:p:q          -> key
//	sign:p:q:x:y:z:face -> JSON SignRow
//	state            -> JSON PlayerState
//
// Запись worker-а идет через одну открытую транзакцию, которую
// CommitAndBegin прокатывает. Таблички и состояние игрока пишутся
// отдельными транзакциями из потоков игры.
type BadgerStore struct {
	db  *badger.DB
	txn *badger.Txn
}

// NewBadgerStore открывает (или создает) хранилище мира в указанной директории.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerStore{
		db:  db,
		txn: db.NewTransaction(true),
	}, nil
}

func blockKey(kind string, p, q int, pos vec.Vec3) []byte {
	return []byte(fmt.Sprintf("%s:%d:%d:%d:%d:%d", kind, p, q, pos.X, pos.Y, pos.Z))
}

func chunkPrefix(kind string, p, q int) []byte {
	return []byte(fmt.Sprintf("%s:%d:%d:", kind, p, q))
}

// set пишет пару ключ-значение в открытую транзакцию worker-а.
// При переполнении транзакции фиксирует её и повторяет запись в новой.
func (s *BadgerStore) set(key, val []byte) error {
	err := s.txn.Set(key, val)
	if err == badger.ErrTxnTooBig {
		if err := s.txn.Commit(); err != nil {
			return fmt.Errorf("ошибка фиксации переполненной транзакции: %w", err)
		}
		s.txn = s.db.NewTransaction(true)
		err = s.txn.Set(key, val)
	}
	if err != nil {
		return fmt.Errorf("ошибка записи в BadgerDB: %w", err)
	}
	return nil
}

func (s *BadgerStore) delete(key []byte) error {
	err := s.txn.Delete(key)
	if err == badger.ErrTxnTooBig {
		if err := s.txn.Commit(); err != nil {
			return fmt.Errorf("ошибка фиксации переполненной транзакции: %w", err)
		}
		s.txn = s.db.NewTransaction(true)
		err = s.txn.Delete(key)
	}
	if err != nil {
		return fmt.Errorf("ошибка удаления из BadgerDB: %w", err)
	}
	return nil
}

func (s *BadgerStore) InsertBlock(ctx context.Context, p, q int, pos vec.Vec3, w int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.set(blockKey("block", p, q, pos), []byte(strconv.Itoa(w)))
}

func (s *BadgerStore) InsertLight(ctx context.Context, p, q int, pos vec.Vec3, w int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.set(blockKey("light", p, q, pos), []byte(strconv.Itoa(w)))
}

func (s *BadgerStore) InsertBlockDamage(ctx context.Context, p, q int, pos vec.Vec3, damage int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.set(blockKey("damage", p, q, pos), []byte(strconv.Itoa(damage)))
}

// TrimZeroDamage удаляет нулевые записи износа чанка.
// Итерация идет по открытой транзакции worker-а, поэтому видит и еще не
// зафиксированные записи текущего батча.
func (s *BadgerStore) TrimZeroDamage(ctx context.Context, p, q int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := chunkPrefix("damage", p, q)
	var zeroKeys [][]byte

	it := s.txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			it.Close()
			return fmt.Errorf("ошибка чтения износа при очистке: %w", err)
		}
		if string(val) == "0" {
			zeroKeys = append(zeroKeys, item.KeyCopy(nil))
		}
	}
	it.Close()

	for _, key := range zeroKeys {
		if err := s.delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (s *BadgerStore) SetKey(ctx context.Context, p, q, key int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.set([]byte(fmt.Sprintf("key:%d:%d", p, q)), []byte(strconv.Itoa(key)))
}

// CommitAndBegin фиксирует транзакцию worker-а и открывает следующую.
func (s *BadgerStore) CommitAndBegin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.txn.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	s.txn = s.db.NewTransaction(true)
	return nil
}

func signStoreKey(pos vec.Vec3, face int) []byte {
	c := vec.ChunkOf(pos.X, pos.Z)
	return []byte(fmt.Sprintf("sign:%d:%d:%d:%d:%d:%d", c.X, c.Y, pos.X, pos.Y, pos.Z, face))
}

// InsertSign пишет табличку. Чанк в ключе всегда выводится из позиции,
// а не берется из аргументов: DeleteSign/DeleteSigns знают только позицию
// и должны реконструировать тот же ключ.
func (s *BadgerStore) InsertSign(ctx context.Context, p, q int, pos vec.Vec3, face int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(SignRow{Pos: pos, Face: face, Text: text})
	if err != nil {
		return fmt.Errorf("ошибка сериализации таблички: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(signStoreKey(pos, face), data)
	})
}

func (s *BadgerStore) DeleteSign(ctx context.Context, pos vec.Vec3, face int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(signStoreKey(pos, face))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

func (s *BadgerStore) DeleteSigns(ctx context.Context, pos vec.Vec3) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := vec.ChunkOf(pos.X, pos.Z)
	prefix := []byte(fmt.Sprintf("sign:%d:%d:%d:%d:%d:", c.X, c.Y, pos.X, pos.Y, pos.Z))
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) DeleteAllSigns(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte("sign:")})
		defer it.Close()
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) SaveState(ctx context.Context, st PlayerState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("ошибка сериализации состояния игрока: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("state"), data)
	})
}

func (s *BadgerStore) LoadState(ctx context.Context) (PlayerState, bool, error) {
	if err := ctx.Err(); err != nil {
		return PlayerState{}, false, err
	}
	var st PlayerState
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("state"))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &st)
		})
	})
	if err != nil {
		return PlayerState{}, false, fmt.Errorf("ошибка загрузки состояния игрока: %w", err)
	}
	return st, found, nil
}

// parseBlockKey извлекает x, y, z из ключа вида kind:p:q:x:y:z
func parseBlockKey(key []byte) (vec.Vec3, error) {
	parts := strings.Split(string(key), ":")
	if len(parts) != 6 {
		return vec.Vec3{}, fmt.Errorf("некорректный ключ: %s", key)
	}
	x, err := strconv.Atoi(parts[3])
	if err != nil {
		return vec.Vec3{}, fmt.Errorf("некорректный ключ '%s': %w", key, err)
	}
	y, err := strconv.Atoi(parts[4])
	if err != nil {
		return vec.Vec3{}, fmt.Errorf("некорректный ключ '%s': %w", key, err)
	}
	z, err := strconv.Atoi(parts[5])
	if err != nil {
		return vec.Vec3{}, fmt.Errorf("некорректный ключ '%s': %w", key, err)
	}
	return vec.Vec3{X: x, Y: y, Z: z}, nil
}

// loadChunkRows выбирает все пары (pos, значение) по префиксу kind:p:q:
func (s *BadgerStore) loadChunkRows(kind string, p, q int) ([]BlockRow, error) {
	var rows []BlockRow
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix:         chunkPrefix(kind, p, q),
			PrefetchValues: true,
		})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			pos, err := parseBlockKey(item.Key())
			if err != nil {
				return err
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			w, err := strconv.Atoi(string(val))
			if err != nil {
				return fmt.Errorf("некорректное значение для ключа '%s': %w", item.Key(), err)
			}
			rows = append(rows, BlockRow{Pos: pos, W: w})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки %s из BadgerDB (%d,%d): %w", kind, p, q, err)
	}
	return rows, nil
}

func (s *BadgerStore) LoadBlocks(ctx context.Context, p, q int) ([]BlockRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.loadChunkRows("block", p, q)
}

func (s *BadgerStore) LoadLights(ctx context.Context, p, q int) ([]BlockRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.loadChunkRows("light", p, q)
}

func (s *BadgerStore) LoadDamage(ctx context.Context, p, q int) ([]DamageRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.loadChunkRows("damage", p, q)
	if err != nil {
		return nil, err
	}
	result := make([]DamageRow, 0, len(rows))
	for _, row := range rows {
		result = append(result, DamageRow{Pos: row.Pos, Damage: row.W})
	}
	return result, nil
}

func (s *BadgerStore) LoadSigns(ctx context.Context, p, q int) ([]SignRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []SignRow
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix:         chunkPrefix("sign", p, q),
			PrefetchValues: true,
		})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var row SignRow
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &row)
			})
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки табличек из BadgerDB (%d,%d): %w", p, q, err)
	}
	return rows, nil
}

func (s *BadgerStore) GetKey(ctx context.Context, p, q int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := 0
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fmt.Sprintf("key:%d:%d", p, q)))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			key, err = strconv.Atoi(string(val))
			return err
		})
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения ключа чанка (%d,%d): %w", p, q, err)
	}
	return key, nil
}

// Close фиксирует последнюю транзакцию worker-а и закрывает базу.
func (s *BadgerStore) Close() error {
	if err := s.txn.Commit(); err != nil {
		s.db.Close()
		return fmt.Errorf("ошибка финальной фиксации: %w", err)
	}
	return s.db.Close()
}
