package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/annel0/horsestore/internal/auth"
	"github.com/annel0/horsestore/internal/codec"
	"github.com/annel0/horsestore/internal/eventbus"
	"github.com/annel0/horsestore/internal/horse"
	"github.com/annel0/horsestore/internal/storage"
	"github.com/annel0/horsestore/internal/vec"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(t *testing.T, name string) []byte {
	t.Helper()
	st := horse.State{
		World:     "world",
		Position:  vec.Vec3Float{X: 1, Y: 64, Z: -3},
		Speed:     0.3,
		Jump:      0.7,
		Color:     horse.ColorGray,
		Style:     horse.StyleWhite,
		Inventory: horse.NewInventory(horse.InventorySize),
	}
	if name != "" {
		st.CustomName = horse.NamePtr(name)
	}
	data, err := codec.EncodeText(st)
	require.NoError(t, err)
	return data
}

func TestListSlots(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	owner := uuid.New()

	require.NoError(t, store.Upsert(ctx, storage.Key{Owner: owner, Slot: 2}, sampleRecord(t, "Серко")))
	require.NoError(t, store.Upsert(ctx, storage.Key{Owner: owner, Slot: 1}, sampleRecord(t, "")))
	require.NoError(t, store.Upsert(ctx, storage.Key{Owner: owner, Slot: 3}, []byte("garbage")))

	var out bytes.Buffer
	require.NoError(t, listSlots(ctx, &out, store, owner))

	text := out.String()
	assert.Contains(t, text, "3 stored horse(s)")
	assert.Contains(t, text, "#1 <unnamed> GRAY/WHITE in world")
	assert.Contains(t, text, "#2 Серко")
	assert.Contains(t, text, "#3 CORRUPTED")
}

func TestShowSlot(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	key := storage.Key{Owner: uuid.New(), Slot: 1}

	var out bytes.Buffer
	assert.Error(t, showSlot(ctx, &out, store, key), "пустой слот")

	require.NoError(t, store.Upsert(ctx, key, sampleRecord(t, "Серко")))
	require.NoError(t, showSlot(ctx, &out, store, key))
	assert.Contains(t, out.String(), `"customName": "Серко"`)
}

func TestPrintEvent(t *testing.T) {
	ev, err := eventbus.NewEnvelope("world", eventbus.TypeRegionDeactivated, 9, eventbus.RegionPayload{
		World: "nether", X: 2, Z: -1, Members: []uuid.UUID{uuid.New()},
	})
	require.NoError(t, err)

	var out bytes.Buffer
	printEvent(&out, ev)
	assert.Contains(t, out.String(), "[RegionDeactivated]")
	assert.Contains(t, out.String(), "Region: nether (2,-1) Horses: 1")
}

func TestParseStringList(t *testing.T) {
	assert.Nil(t, parseStringList(""))
	assert.Equal(t, []string{"a", "b"}, parseStringList(" a, ,b "))
}

func TestIssueToken(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, issueToken(&buf, nil, uuid.New(), false), "без ключа токен не выдается")

	secret, err := auth.GenerateSecureSecret()
	require.NoError(t, err)
	authn, err := auth.NewAuthenticator(secret, time.Hour)
	require.NoError(t, err)

	owner := uuid.New()
	require.NoError(t, issueToken(&buf, authn, owner, false))
	claims, err := authn.Validate(strings.TrimSpace(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, owner, claims.Owner)
	assert.False(t, claims.IsAdmin)
}
