package entitlement

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EncodedLength is the size of an encoded entitlement: address (20) || uint256 (32)
const EncodedLength = common.AddressLength + 32

// Entitlement is a single (recipient, amount) pair committed to by the airdrop root.
type Entitlement struct {
	Recipient common.Address
	Amount    *uint256.Int
}

// New creates an entitlement, copying the amount
func New(recipient common.Address, amount *uint256.Int) *Entitlement {
	return &Entitlement{
		Recipient: recipient,
		Amount:    cloneAmount(amount),
	}
}

// Encode produces the canonical leaf bytes for a (recipient, amount) pair.
// The layout matches Solidity's abi.encodePacked(address, uint256):
// recipient (20 bytes) || amount (32 bytes, big-endian). Both fields are
// fixed width, so distinct entitlements never share an encoding.
func Encode(recipient common.Address, amount *uint256.Int) []byte {
	data := make([]byte, 0, EncodedLength)
	data = append(data, recipient.Bytes()...)

	var amountBytes [32]byte
	if amount != nil {
		amountBytes = amount.Bytes32()
	}
	data = append(data, amountBytes[:]...)

	return data
}

// Bytes returns the canonical encoding of the entitlement
func (e *Entitlement) Bytes() []byte {
	return Encode(e.Recipient, e.Amount)
}

// Decode parses canonical leaf bytes back into an entitlement
func Decode(data []byte) (*Entitlement, error) {
	if len(data) != EncodedLength {
		return nil, fmt.Errorf("invalid entitlement encoding length: got %d, expected %d", len(data), EncodedLength)
	}
	return &Entitlement{
		Recipient: common.BytesToAddress(data[:common.AddressLength]),
		Amount:    new(uint256.Int).SetBytes(data[common.AddressLength:]),
	}, nil
}

// Validate checks that the entitlement can be distributed
func (e *Entitlement) Validate() error {
	if e.Recipient == (common.Address{}) {
		return fmt.Errorf("recipient cannot be the zero address")
	}
	if e.Amount == nil || e.Amount.IsZero() {
		return fmt.Errorf("amount for %s must be greater than zero", e.Recipient.Hex())
	}
	return nil
}

// String implements fmt.Stringer
func (e *Entitlement) String() string {
	return fmt.Sprintf("%s:%s", e.Recipient.Hex(), FormatAmount(e.Amount))
}

type entitlementJSON struct {
	Recipient string `json:"recipient" yaml:"recipient"`
	Amount    string `json:"amount" yaml:"amount"`
}

// MarshalJSON encodes the amount as a decimal string to avoid precision loss
func (e Entitlement) MarshalJSON() ([]byte, error) {
	return json.Marshal(entitlementJSON{
		Recipient: e.Recipient.Hex(),
		Amount:    FormatAmount(e.Amount),
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (e *Entitlement) UnmarshalJSON(data []byte) error {
	var raw entitlementJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := fromRaw(raw)
	if err != nil {
		return err
	}
	*e = *parsed
	return nil
}

func fromRaw(raw entitlementJSON) (*Entitlement, error) {
	recipient, err := ParseRecipient(raw.Recipient)
	if err != nil {
		return nil, err
	}
	amount, err := ParseAmount(raw.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount for %s: %w", recipient.Hex(), err)
	}
	return &Entitlement{Recipient: recipient, Amount: amount}, nil
}

// ParseRecipient parses a hex encoded address
func ParseRecipient(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid recipient address: %q", s)
	}
	return common.HexToAddress(s), nil
}

// ParseAmount parses a decimal (or 0x-prefixed hex) uint256 amount
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return uint256.FromHex(s)
	}
	return uint256.FromDecimal(s)
}

// FormatAmount renders an amount as a decimal string; nil renders as "0"
func FormatAmount(amount *uint256.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.Dec()
}

func cloneAmount(amount *uint256.Int) *uint256.Int {
	if amount == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(amount)
}
