package entitlement

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestEncode(t *testing.T) {
	encoded := Encode(alice, uint256.NewInt(100))
	require.Len(t, encoded, EncodedLength)

	// recipient || 32-byte big-endian amount
	assert.Equal(t, alice.Bytes(), encoded[:20])
	assert.Equal(t, byte(100), encoded[51])
	for _, b := range encoded[20:51] {
		assert.Equal(t, byte(0), b)
	}

	t.Run("nil amount encodes as zero", func(t *testing.T) {
		assert.Equal(t, Encode(alice, uint256.NewInt(0)), Encode(alice, nil))
	})

	t.Run("distinct entitlements encode differently", func(t *testing.T) {
		assert.NotEqual(t, Encode(alice, uint256.NewInt(100)), Encode(alice, uint256.NewInt(50)))
		assert.NotEqual(t, Encode(alice, uint256.NewInt(100)), Encode(bob, uint256.NewInt(100)))
	})

	t.Run("round trip", func(t *testing.T) {
		e := New(bob, uint256.NewInt(200))
		decoded, err := Decode(e.Bytes())
		require.NoError(t, err)
		assert.Equal(t, e.Recipient, decoded.Recipient)
		assert.True(t, e.Amount.Eq(decoded.Amount))

		_, err = Decode([]byte{1, 2, 3})
		require.Error(t, err)
	})

	t.Run("New copies the amount", func(t *testing.T) {
		amount := uint256.NewInt(7)
		e := New(alice, amount)
		amount.SetUint64(8)
		assert.Equal(t, uint64(7), e.Amount.Uint64())
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		entitlement *Entitlement
		expectedErr string
	}{
		{"valid", New(alice, uint256.NewInt(1)), ""},
		{"zero address", New(common.Address{}, uint256.NewInt(1)), "zero address"},
		{"zero amount", New(alice, uint256.NewInt(0)), "greater than zero"},
		{"nil amount", &Entitlement{Recipient: alice}, "greater than zero"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entitlement.Validate()
			if tt.expectedErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount("1000000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000000", amount.Dec())

	amount, err = ParseAmount("0x64")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), amount.Uint64())

	_, err = ParseAmount("")
	require.Error(t, err)

	_, err = ParseAmount("-5")
	require.Error(t, err)

	_, err = ParseAmount("12abc")
	require.Error(t, err)
}

func TestParseFormats(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		data := []byte(`[
			{"recipient": "0x00000000000000000000000000000000000000a1", "amount": "100"},
			{"recipient": "0x00000000000000000000000000000000000000b2", "amount": "200"}
		]`)
		list, err := Parse(data, FormatJSON)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, alice, list[0].Recipient)
		assert.Equal(t, uint64(200), list[1].Amount.Uint64())
	})

	t.Run("YAML", func(t *testing.T) {
		data := []byte(`
- recipient: "0x00000000000000000000000000000000000000a1"
  amount: "100"
- recipient: "0x00000000000000000000000000000000000000b2"
  amount: "200"
`)
		list, err := Parse(data, FormatYAML)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, bob, list[1].Recipient)
	})

	t.Run("CSV with header and comments", func(t *testing.T) {
		data := []byte("recipient,amount\n# early supporters\n0x00000000000000000000000000000000000000a1,100\n0x00000000000000000000000000000000000000b2, 200\n")
		list, err := Parse(data, FormatCSV)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, uint64(100), list[0].Amount.Uint64())
		assert.Equal(t, uint64(200), list[1].Amount.Uint64())
	})

	t.Run("CSV without header", func(t *testing.T) {
		data := []byte("0x00000000000000000000000000000000000000a1,100\n")
		list, err := Parse(data, FormatCSV)
		require.NoError(t, err)
		require.Len(t, list, 1)
	})

	t.Run("duplicate recipient", func(t *testing.T) {
		data := []byte("0x00000000000000000000000000000000000000a1,100\n0x00000000000000000000000000000000000000a1,5\n")
		_, err := Parse(data, FormatCSV)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate recipient")
	})

	t.Run("empty list", func(t *testing.T) {
		_, err := Parse([]byte(`[]`), FormatJSON)
		require.Error(t, err)
	})

	t.Run("bad address", func(t *testing.T) {
		_, err := Parse([]byte(`[{"recipient": "alice.near", "amount": "1"}]`), FormatJSON)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid recipient")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := Parse([]byte(`x`), "toml")
		require.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "entitlements.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"recipient": "0x00000000000000000000000000000000000000a1", "amount": "100"}]`), 0o600))

	list, err := Load(path)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = Load(filepath.Join(dir, "entitlements.txt"))
	require.Error(t, err)

	unknown := filepath.Join(dir, "entitlements.toml")
	require.NoError(t, os.WriteFile(unknown, []byte(`x`), 0o600))
	_, err = Load(unknown)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot infer")
}

func TestEncodeAllPreservesOrder(t *testing.T) {
	list := []*Entitlement{New(bob, uint256.NewInt(2)), New(alice, uint256.NewInt(1))}
	items := EncodeAll(list)
	require.Len(t, items, 2)
	assert.Equal(t, list[0].Bytes(), items[0])
	assert.Equal(t, list[1].Bytes(), items[1])
}

func TestJSONRoundTrip(t *testing.T) {
	e := New(alice, uint256.MustFromDecimal("340282366920938463463374607431768211456"))
	data, err := e.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"amount":"340282366920938463463374607431768211456"`)

	var decoded Entitlement
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, e.Recipient, decoded.Recipient)
	assert.True(t, e.Amount.Eq(decoded.Amount))
}
