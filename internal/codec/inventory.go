package codec

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/annel0/horsestore/internal/horse"
	"github.com/klauspost/compress/zstd"
)

// Формат полезной нагрузки инвентаря (версия 1):
//
//	[0]  версия схемы
//	[1]  флаги (бит 0 - тело сжато zstd)
//	[2:] тело
//
// Тело: uvarint число слотов, затем для каждого слота байт-тег
// (0 - пусто, 1 - предмет). Предмет: uvarint длина + тип, uvarint количество,
// uvarint длина + непрозрачные данные. Итог кодируется стандартным Base64.
const (
	inventoryVersion byte = 1

	flagZstd byte = 1 << 0

	tagEmpty byte = 0
	tagItem  byte = 1

	// Тела больше порога сжимаются
	compressThreshold = 512

	maxInventorySlots = 1 << 12
	maxDecodedBody    = 1 << 20
)

var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(0),
			zstd.WithDecoderMaxMemory(maxDecodedBody),
		)
	})
)

var errTruncated = errors.New("truncated payload")

// EncodeInventory сериализует инвентарь в текстово-безопасную строку.
// Длина инвентаря и содержимое каждого слота сохраняются точно.
func EncodeInventory(inv horse.Inventory) (string, error) {
	if len(inv) > maxInventorySlots {
		return "", fmt.Errorf("too many inventory slots: %d", len(inv))
	}

	body := make([]byte, 0, 16+len(inv)*8)
	body = binary.AppendUvarint(body, uint64(len(inv)))
	for _, it := range inv {
		if it == nil {
			body = append(body, tagEmpty)
			continue
		}
		body = append(body, tagItem)
		body = appendBytes(body, []byte(it.Kind))
		body = binary.AppendUvarint(body, uint64(it.Amount))
		body = appendBytes(body, it.Data)
	}

	flags := byte(0)
	if len(body) > compressThreshold {
		enc, err := zstdEncoder()
		if err != nil {
			return "", fmt.Errorf("zstd encoder: %w", err)
		}
		body = enc.EncodeAll(body, nil)
		flags |= flagZstd
	}

	payload := make([]byte, 0, 2+len(body))
	payload = append(payload, inventoryVersion, flags)
	payload = append(payload, body...)
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecodeInventory восстанавливает инвентарь из строки EncodeInventory.
// Любая структурная ошибка оборачивает ErrInventory.
func DecodeInventory(s string) (horse.Inventory, error) {
	inv, err := decodeInventory(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInventory, err)
	}
	return inv, nil
}

func decodeInventory(s string) (horse.Inventory, error) {
	if s == "" {
		return nil, errors.New("empty payload")
	}
	payload, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	if len(payload) < 2 {
		return nil, errTruncated
	}

	version, flags := payload[0], payload[1]
	if version != inventoryVersion {
		return nil, fmt.Errorf("unsupported schema version %d", version)
	}
	if flags&^flagZstd != 0 {
		return nil, fmt.Errorf("unknown flags 0x%02x", flags)
	}

	body := payload[2:]
	if flags&flagZstd != 0 {
		dec, err := zstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		body, err = dec.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		if len(body) > maxDecodedBody {
			return nil, fmt.Errorf("decompressed body too large: %d", len(body))
		}
	}

	r := reader{buf: body}
	count, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	if count > maxInventorySlots {
		return nil, fmt.Errorf("too many inventory slots: %d", count)
	}

	inv := make(horse.Inventory, count)
	for i := range inv {
		tag, err := r.readByte()
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagEmpty:
			continue
		case tagItem:
			item, err := r.readItem()
			if err != nil {
				return nil, fmt.Errorf("slot %d: %w", i, err)
			}
			inv[i] = item
		default:
			return nil, fmt.Errorf("slot %d: unknown item tag %d", i, tag)
		}
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", r.remaining())
	}
	return inv, nil
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

// reader - курсор по телу полезной нагрузки
type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *reader) readByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, errTruncated
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, errTruncated
	}
	r.pos += n
	return v, nil
}

func (r *reader) readBytes() ([]byte, error) {
	n, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.remaining()) {
		return nil, errTruncated
	}
	out := append([]byte{}, r.buf[r.pos:r.pos+int(n)]...)
	r.pos += int(n)
	return out, nil
}

func (r *reader) readItem() (*horse.Item, error) {
	kind, err := r.readBytes()
	if err != nil {
		return nil, err
	}
	amount, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	if amount > math.MaxUint32 {
		return nil, fmt.Errorf("item amount overflow: %d", amount)
	}
	data, err := r.readBytes()
	if err != nil {
		return nil, err
	}
	return &horse.Item{Kind: string(kind), Amount: uint32(amount), Data: data}, nil
}
