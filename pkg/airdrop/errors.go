package airdrop

import (
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence"
	"github.com/pkg/errors"
)

var (
	// ErrNotInitialized is returned by claim operations before a root is published
	ErrNotInitialized = errors.New("airdrop not initialized")

	// ErrAlreadyInitialized is returned when publishing a root a second time
	ErrAlreadyInitialized = persistence.ErrAlreadyInitialized

	// ErrAlreadyClaimed is returned when the recipient has already claimed
	ErrAlreadyClaimed = persistence.ErrAlreadyClaimed

	// ErrInvalidProof is returned when (recipient, amount, proof) does not verify against the root
	ErrInvalidProof = errors.New("invalid proof")

	// ErrInvalidRoot is returned when initializing with a zero root
	ErrInvalidRoot = errors.New("invalid merkle root")

	// ErrRootMismatch is returned when the stored root differs from the configured one
	ErrRootMismatch = errors.New("stored root does not match configured root")

	// ErrTransferFailed wraps a ledger error; the claim was rolled back
	ErrTransferFailed = errors.New("transfer failed")

	// ErrCommitFailed means value moved but the claim could not be finalized.
	// The reservation is kept so the recipient cannot be paid twice.
	ErrCommitFailed = errors.New("claim commit failed after transfer")
)
