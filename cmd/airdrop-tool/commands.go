package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/client"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/distribution"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/entitlement"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/logger"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/merkle"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

// proofFile is everything one recipient needs to claim, as written by the proof command
type proofFile struct {
	Root         merkle.Digest  `json:"root"`
	HashFunction string         `json:"hashFunction"`
	Recipient    common.Address `json:"recipient"`
	distribution.ClaimProof
}

func buildDistribution(input, hashName, output string) (*distribution.Distribution, error) {
	list, err := entitlement.Load(input)
	if err != nil {
		return nil, err
	}
	hasher, err := merkle.HasherByName(hashName)
	if err != nil {
		return nil, err
	}
	d, err := distribution.Build(list, hasher)
	if err != nil {
		return nil, err
	}
	if err := d.Save(output); err != nil {
		return nil, err
	}
	return d, nil
}

func extractProof(d *distribution.Distribution, recipient string) (*proofFile, error) {
	addr, err := entitlement.ParseRecipient(recipient)
	if err != nil {
		return nil, err
	}
	claim, err := d.ProofFor(addr)
	if err != nil {
		return nil, err
	}
	return &proofFile{
		Root:         d.Root,
		HashFunction: d.HashFunction,
		Recipient:    addr,
		ClaimProof:   *claim,
	}, nil
}

func loadProofFile(path string) (*proofFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read proof file %s", path)
	}
	var pf proofFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, errors.Wrapf(err, "failed to parse proof file %s", path)
	}
	return &pf, nil
}

// verifyProofFile checks the proof against root, or the file's own root when root is zero
func verifyProofFile(pf *proofFile, root merkle.Digest) (bool, error) {
	if root.IsZero() {
		root = pf.Root
	}
	hasher, err := merkle.HasherByName(pf.HashFunction)
	if err != nil {
		return false, err
	}
	amount, err := pf.AmountInt()
	if err != nil {
		return false, err
	}
	leaf := entitlement.Encode(pf.Recipient, amount)
	return merkle.VerifyProof(root, leaf, pf.Proof, merkle.WithHasher(hasher)), nil
}

func buildCommand(c *cli.Context) error {
	d, err := buildDistribution(c.String("input"), c.String("hash-function"), c.String("output"))
	if err != nil {
		return errors.Wrap(err, "failed to build distribution")
	}

	fmt.Printf("✅ Built distribution with %d leaves\n", d.LeafCount)
	fmt.Printf("   Root:          %s\n", d.Root.Hex())
	fmt.Printf("   Hash function: %s\n", d.HashFunction)
	fmt.Printf("   Written to:    %s\n", c.String("output"))
	return nil
}

func proofCommand(c *cli.Context) error {
	d, err := distribution.Load(c.String("distribution"))
	if err != nil {
		return err
	}
	pf, err := extractProof(d, c.String("recipient"))
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal proof")
	}

	if output := c.String("output"); output != "" {
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return errors.Wrapf(err, "failed to write proof to %s", output)
		}
		fmt.Printf("✅ Proof for %s written to: %s\n", pf.Recipient.Hex(), output)
		return nil
	}
	fmt.Println(string(data))
	return nil
}

func verifyCommand(c *cli.Context) error {
	distPath, proofPath := c.String("distribution"), c.String("proof-file")

	switch {
	case distPath != "":
		d, err := distribution.Load(distPath)
		if err != nil {
			return err
		}
		if err := d.Verify(); err != nil {
			return errors.Wrap(err, "❌ distribution does not verify")
		}
		fmt.Printf("✅ All %d proofs verify against %s\n", d.LeafCount, d.Root.Hex())
		return nil

	case proofPath != "":
		pf, err := loadProofFile(proofPath)
		if err != nil {
			return err
		}
		var root merkle.Digest
		if raw := c.String("root"); raw != "" {
			if root, err = merkle.ParseDigest(raw); err != nil {
				return err
			}
		}
		ok, err := verifyProofFile(pf, root)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("❌ proof for %s does not verify", pf.Recipient.Hex())
		}
		fmt.Printf("✅ Proof for %s (%s) verifies\n", pf.Recipient.Hex(), pf.Amount)
		return nil

	default:
		return fmt.Errorf("one of --distribution or --proof-file is required")
	}
}

func createClient(c *cli.Context) (*client.Client, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return client.NewClient(&client.ClientConfig{
		ServerURLs: c.StringSlice("server"),
		Logger:     l,
	})
}

func canClaimCommand(c *cli.Context) error {
	pf, err := loadProofFile(c.String("proof-file"))
	if err != nil {
		return err
	}
	amount, err := pf.AmountInt()
	if err != nil {
		return err
	}

	cl, err := createClient(c)
	if err != nil {
		return err
	}
	ok, err := cl.CanClaim(c.Context, pf.Recipient, amount, pf.Proof)
	if err != nil {
		return errors.Wrap(err, "can_claim request failed")
	}

	if ok {
		fmt.Printf("✅ %s can claim %s\n", pf.Recipient.Hex(), pf.Amount)
	} else {
		fmt.Printf("❌ %s cannot claim %s\n", pf.Recipient.Hex(), pf.Amount)
	}
	return nil
}

func claimCommand(c *cli.Context) error {
	pf, err := loadProofFile(c.String("proof-file"))
	if err != nil {
		return err
	}
	amount, err := pf.AmountInt()
	if err != nil {
		return err
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(c.String("private-key")), "0x"))
	if err != nil {
		return errors.Wrap(err, "invalid private key")
	}
	if signer := crypto.PubkeyToAddress(key.PublicKey); signer != pf.Recipient {
		return fmt.Errorf("private key belongs to %s, proof is for %s", signer.Hex(), pf.Recipient.Hex())
	}

	cl, err := createClient(c)
	if err != nil {
		return err
	}

	fmt.Printf("🪂 Claiming %s for %s\n", pf.Amount, pf.Recipient.Hex())
	record, err := cl.Claim(c.Context, key, amount, pf.Proof)
	if err != nil {
		if client.IsAlreadyClaimed(err) {
			return fmt.Errorf("❌ %s has already claimed", pf.Recipient.Hex())
		}
		return errors.Wrap(err, "claim failed")
	}

	fmt.Printf("✅ Claimed %s, transfer %s\n", record.Amount, record.TransferRef)
	return nil
}

func statusCommand(c *cli.Context) error {
	recipient, err := entitlement.ParseRecipient(c.String("recipient"))
	if err != nil {
		return err
	}
	cl, err := createClient(c)
	if err != nil {
		return err
	}

	status, err := cl.GetClaim(c.Context, recipient)
	if err != nil {
		return errors.Wrap(err, "status request failed")
	}
	if !status.Claimed {
		fmt.Printf("%s has not claimed\n", recipient.Hex())
		return nil
	}
	fmt.Printf("%s: %s %s (claim %s, transfer %s)\n",
		recipient.Hex(), status.Claim.State, status.Claim.Amount, status.Claim.ClaimID, status.Claim.TransferRef)
	return nil
}
