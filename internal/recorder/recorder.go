package recorder

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/annel0/flight-telemetry/internal/logging"
	"github.com/annel0/flight-telemetry/internal/protocol"
	"github.com/dgraph-io/badger/v3"
)

// FlightRecorder пишет кадры телеметрии в BadgerDB в режиме "чёрного ящика":
// append-only лог на каждый корабль с монотонным номером кадра.
// Ключи имеют вид flight:<vesselID>:<seq BE8>, что даёт лексикографический
// порядок кадров при итерации по префиксу.
type FlightRecorder struct {
	db      *badger.DB
	dbPath  string
	logger  *logging.Logger
	mutex   sync.RWMutex
	seqs    map[string]uint64 // vesselID -> следующий номер кадра
	isReady bool
	stopGC  chan struct{}
	wg      sync.WaitGroup
}

// Frame представляет один записанный кадр телеметрии.
type Frame struct {
	VesselID   string              `json:"vessel_id"`
	Seq        uint64              `json:"seq"`
	RecordedAt time.Time           `json:"recorded_at"`
	Data       protocol.FlightData `json:"data"`
}

// NewFlightRecorder создает новый бортовой регистратор.
// Номера кадров восстанавливаются из базы при открытии.
func NewFlightRecorder(dataPath string) (*FlightRecorder, error) {
	dbPath := filepath.Join(dataPath, "flights")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	fr := &FlightRecorder{
		db:      db,
		dbPath:  dbPath,
		logger:  logging.GetRecorderLogger(),
		seqs:    make(map[string]uint64),
		isReady: true,
		stopGC:  make(chan struct{}),
	}

	if err := fr.restoreSequences(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось восстановить номера кадров: %w", err)
	}

	fr.logger.Info("Flight recorder opened: path=%s vessels=%d", dbPath, len(fr.seqs))

	// Периодическая сборка мусора value log
	fr.wg.Add(1)
	go fr.gcLoop()

	return fr, nil
}

// Close закрывает регистратор.
func (fr *FlightRecorder) Close() error {
	fr.mutex.Lock()
	if !fr.isReady {
		fr.mutex.Unlock()
		return nil
	}
	fr.isReady = false
	fr.mutex.Unlock()

	close(fr.stopGC)
	fr.wg.Wait()

	return fr.db.Close()
}

// Record записывает кадр телеметрии корабля.
func (fr *FlightRecorder) Record(vesselID string, data *protocol.FlightData) error {
	if vesselID == "" {
		return fmt.Errorf("недействительный vesselID: пустая строка")
	}
	if data == nil {
		return fmt.Errorf("кадр телеметрии равен nil")
	}

	fr.mutex.Lock()
	defer fr.mutex.Unlock()

	if !fr.isReady {
		return fmt.Errorf("регистратор не готов")
	}

	seq := fr.seqs[vesselID]
	frame := Frame{
		VesselID:   vesselID,
		Seq:        seq,
		RecordedAt: time.Now().UTC(),
		Data:       *data,
	}

	raw, err := json.Marshal(&frame)
	if err != nil {
		return fmt.Errorf("ошибка сериализации кадра: %w", err)
	}

	err = fr.db.Update(func(txn *badger.Txn) error {
		return txn.Set(frameKey(vesselID, seq), raw)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}

	fr.seqs[vesselID] = seq + 1
	return nil
}

// Replay возвращает кадры корабля за интервал [since, until],
// в порядке записи. Пустой результат - не ошибка.
func (fr *FlightRecorder) Replay(vesselID string, since, until time.Time) ([]*Frame, error) {
	if vesselID == "" {
		return nil, fmt.Errorf("недействительный vesselID: пустая строка")
	}

	fr.mutex.RLock()
	defer fr.mutex.RUnlock()

	if !fr.isReady {
		return nil, fmt.Errorf("регистратор не готов")
	}

	prefix := vesselPrefix(vesselID)
	var frames []*Frame

	err := fr.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var frame Frame
				if err := json.Unmarshal(val, &frame); err != nil {
					return fmt.Errorf("ошибка десериализации кадра: %w", err)
				}
				if frame.RecordedAt.Before(since) || frame.RecordedAt.After(until) {
					return nil
				}
				frames = append(frames, &frame)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	return frames, nil
}

// FrameCount возвращает количество записанных кадров корабля.
func (fr *FlightRecorder) FrameCount(vesselID string) uint64 {
	fr.mutex.RLock()
	defer fr.mutex.RUnlock()
	return fr.seqs[vesselID]
}

// Purge удаляет все кадры корабля (для тестов или освобождения места).
func (fr *FlightRecorder) Purge(vesselID string) error {
	if vesselID == "" {
		return fmt.Errorf("недействительный vesselID: пустая строка")
	}

	fr.mutex.Lock()
	defer fr.mutex.Unlock()

	if !fr.isReady {
		return fmt.Errorf("регистратор не готов")
	}

	prefix := vesselPrefix(vesselID)

	// Собираем ключи под View, удаляем отдельной транзакцией
	var keys [][]byte
	err := fr.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ошибка сканирования кадров: %w", err)
	}

	wb := fr.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("ошибка удаления кадра: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("ошибка фиксации удаления: %w", err)
	}

	delete(fr.seqs, vesselID)
	return nil
}

// Внутренние методы

func vesselPrefix(vesselID string) []byte {
	return []byte("flight:" + vesselID + ":")
}

func frameKey(vesselID string, seq uint64) []byte {
	prefix := vesselPrefix(vesselID)
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], seq)
	return key
}

// restoreSequences восстанавливает счётчики кадров после перезапуска.
// Проходит по всем ключам flight:* и запоминает максимальный seq на корабль.
func (fr *FlightRecorder) restoreSequences() error {
	prefix := []byte("flight:")

	return fr.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			if len(key) < len(prefix)+9 {
				continue
			}
			vesselID := string(key[len(prefix) : len(key)-9])
			seq := binary.BigEndian.Uint64(key[len(key)-8:])
			if seq+1 > fr.seqs[vesselID] {
				fr.seqs[vesselID] = seq + 1
			}
		}
		return nil
	})
}

// gcLoop периодически запускает сборку мусора value log BadgerDB.
func (fr *FlightRecorder) gcLoop() {
	defer fr.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-fr.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite означает, что собирать было нечего
			if err := fr.db.RunValueLogGC(0.7); err != nil && err != badger.ErrNoRewrite {
				fr.logger.Warn("⚠️ BadgerDB GC: %v", err)
			}
		}
	}
}
