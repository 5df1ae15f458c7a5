package codec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/annel0/horsestore/internal/horse"
	"github.com/annel0/horsestore/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() horse.State {
	return horse.State{
		World:      "world_nether",
		Position:   vec.Vec3Float{X: 120.5, Y: 64, Z: -33.25},
		Speed:      0.3375,
		Jump:       0.7,
		Color:      horse.ColorChestnut,
		Style:      horse.StyleWhiteDots,
		CustomName: horse.NamePtr("Буцефал"),
		Inventory: horse.Inventory{
			{Kind: "SADDLE", Amount: 1},
			nil,
			{Kind: "DIAMOND_HORSE_ARMOR", Amount: 1, Data: []byte(`{"ench":"PROTECTION"}`)},
		},
	}
}

func randomState(rng *rand.Rand) horse.State {
	s := horse.State{
		World:    "world",
		Position: vec.Vec3Float{X: rng.NormFloat64() * 1e4, Y: rng.Float64() * 256, Z: rng.NormFloat64() * 1e4},
		Speed:    rng.Float64(),
		Jump:     rng.Float64() * 2,
		Color:    horse.Colors()[rng.Intn(len(horse.Colors()))],
		Style:    horse.Styles()[rng.Intn(len(horse.Styles()))],
	}
	if rng.Intn(2) == 0 {
		s.CustomName = horse.NamePtr("name-" + string(rune('a'+rng.Intn(26))))
	}
	inv := make(horse.Inventory, rng.Intn(20))
	for i := range inv {
		if rng.Intn(3) == 0 {
			continue
		}
		data := make([]byte, rng.Intn(300))
		rng.Read(data)
		inv[i] = &horse.Item{Kind: "ITEM_" + string(rune('A'+rng.Intn(26))), Amount: uint32(rng.Intn(64) + 1), Data: data}
	}
	s.Inventory = inv
	return s
}

func assertSameState(t *testing.T, want, got horse.State) {
	t.Helper()
	assert.Equal(t, want.World, got.World)
	assert.Equal(t, want.Position, got.Position)
	assert.Equal(t, want.Speed, got.Speed)
	assert.Equal(t, want.Jump, got.Jump)
	assert.Equal(t, want.Color, got.Color)
	assert.Equal(t, want.Style, got.Style)
	assert.Equal(t, want.CustomName, got.CustomName)
	assert.Len(t, got.Inventory, len(want.Inventory))
	assert.True(t, want.Inventory.Equal(got.Inventory), "inventory differs")
}

func TestRoundTrip(t *testing.T) {
	want := sampleState()

	text, err := EncodeText(want)
	require.NoError(t, err)

	got, err := DecodeText(text)
	require.NoError(t, err)
	assertSameState(t, want, got)
	assert.Nil(t, got.Inventory[1], "пустой слот должен остаться пустым")
}

func TestRoundTripRandomStates(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		want := randomState(rng)
		text, err := EncodeText(want)
		require.NoError(t, err)

		got, err := DecodeText(text)
		require.NoError(t, err)
		assertSameState(t, want, got)
	}
}

func TestRecordDocumentFields(t *testing.T) {
	text, err := EncodeText(sampleState())
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(text, &doc))
	for _, field := range []string{"world", "x", "y", "z", "speed", "jump", "color", "style", "customName", "inventory"} {
		assert.Contains(t, doc, field)
	}
	assert.Equal(t, "CHESTNUT", doc["color"])
	assert.Equal(t, "WHITE_DOTS", doc["style"])

	inv := doc["inventory"].(string)
	for _, r := range inv {
		assert.True(t, r >= 0x20 && r < 0x7f, "инвентарь должен быть printable ASCII")
	}
}

func TestCustomNameOmittedWhenNil(t *testing.T) {
	s := sampleState()
	s.CustomName = nil
	text, err := EncodeText(s)
	require.NoError(t, err)
	assert.NotContains(t, string(text), "customName")

	got, err := DecodeText(text)
	require.NoError(t, err)
	assert.Nil(t, got.CustomName)
}

func TestDecodeUnknownColor(t *testing.T) {
	rec, err := Encode(sampleState())
	require.NoError(t, err)
	rec.Color = "PURPLE"

	_, err = Decode(rec)
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
	assert.False(t, IsPartial(err))
	assert.True(t, errors.Is(err, horse.ErrUnknownAppearance))

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "color", de.Field)
}

func TestDecodeUnknownStyle(t *testing.T) {
	rec, err := Encode(sampleState())
	require.NoError(t, err)
	rec.Style = ""

	_, err = Decode(rec)
	assert.True(t, IsDecodeError(err))
	assert.False(t, IsPartial(err))
}

func TestDecodeNegativeAttribute(t *testing.T) {
	rec, err := Encode(sampleState())
	require.NoError(t, err)
	rec.Jump = -1

	_, err = Decode(rec)
	assert.True(t, IsDecodeError(err))
}

func TestDecodeBrokenDocument(t *testing.T) {
	_, err := DecodeText([]byte(`{"world": "world", "x": `))
	assert.True(t, IsDecodeError(err))

	_, err = DecodeText([]byte(`not json`))
	assert.True(t, IsDecodeError(err))
}

func TestDecodeCorruptInventoryKeepsScalars(t *testing.T) {
	want := sampleState()
	rec, err := Encode(want)
	require.NoError(t, err)

	valid, err := base64.StdEncoding.DecodeString(rec.Inventory)
	require.NoError(t, err)

	unknownTag := append([]byte{}, valid...)
	unknownTag[3] = 7 // тег первого слота (после версии, флагов и счетчика)

	cases := map[string]string{
		"bad base64":      "@@@not-base64@@@",
		"empty":           "",
		"truncated":       base64.StdEncoding.EncodeToString(valid[:len(valid)-3]),
		"trailing bytes":  base64.StdEncoding.EncodeToString(append(append([]byte{}, valid...), 0, 0)),
		"unknown version": base64.StdEncoding.EncodeToString(append([]byte{9}, valid[1:]...)),
		"unknown flags":   base64.StdEncoding.EncodeToString(append([]byte{1, 0x80}, valid[2:]...)),
		"unknown tag":     base64.StdEncoding.EncodeToString(unknownTag),
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			broken := rec
			broken.Inventory = payload

			got, err := Decode(broken)
			require.Error(t, err)
			assert.True(t, IsPartial(err))
			assert.True(t, errors.Is(err, ErrInventory))

			// Скаляры доступны для частичного применения
			assert.Equal(t, want.Color, got.Color)
			assert.Equal(t, want.Style, got.Style)
			assert.Equal(t, want.Speed, got.Speed)
			assert.Equal(t, want.CustomName, got.CustomName)
			assert.Nil(t, got.Inventory)
		})
	}
}

func TestInventoryCompressionRoundTrip(t *testing.T) {
	big := strings.Repeat("lore line ", 200)
	inv := horse.Inventory{{Kind: "CHEST", Amount: 1, Data: []byte(big)}, nil}

	payload, err := EncodeInventory(inv)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	assert.Equal(t, inventoryVersion, raw[0])
	assert.Equal(t, flagZstd, raw[1]&flagZstd, "большое тело должно сжиматься")
	assert.Less(t, len(raw), len(big))

	got, err := DecodeInventory(payload)
	require.NoError(t, err)
	assert.True(t, inv.Equal(got))
}

func TestEmptyInventoryRoundTrip(t *testing.T) {
	payload, err := EncodeInventory(horse.Inventory{})
	require.NoError(t, err)
	got, err := DecodeInventory(payload)
	require.NoError(t, err)
	assert.Len(t, got, 0)

	payload, err = EncodeInventory(horse.NewInventory(horse.InventorySize))
	require.NoError(t, err)
	got, err = DecodeInventory(payload)
	require.NoError(t, err)
	assert.Equal(t, horse.Inventory{nil, nil}, got)
}

func TestEncodeRejectsInvalidState(t *testing.T) {
	s := sampleState()
	s.Speed = -0.5
	_, err := Encode(s)
	var ee *EncodeError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "speed", ee.Field)

	s = sampleState()
	s.Color = horse.Color(99)
	_, err = Encode(s)
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "color", ee.Field)
}
