package main

import (
	"log"
	"os"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/config"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/merkle"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "airdrop-tool",
		Usage: "Build merkle airdrop distributions and claim against an airdrop server",
		Description: `Offline, build commits to an entitlement list and writes the root plus a
proof for every recipient. proof and verify work on that file.

Online, can-claim, claim and status talk to airdrop servers.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "build",
				Usage: "Build a distribution from an entitlement list (.json, .yaml, .csv)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "Entitlement list file",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "hash-function",
						Usage: "Hash function for the tree",
						Value: merkle.HashKeccak256,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Distribution output file",
						Value:   "distribution.json",
					},
				},
				Action: buildCommand,
			},
			{
				Name:  "proof",
				Usage: "Extract the proof of one recipient from a distribution",
				Flags: []cli.Flag{
					distributionFlag(true),
					&cli.StringFlag{
						Name:     "recipient",
						Usage:    "Recipient address",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "Output file for the proof (default: stdout)",
					},
				},
				Action: proofCommand,
			},
			{
				Name:  "verify",
				Usage: "Verify every proof of a distribution, or a single proof file",
				Flags: []cli.Flag{
					distributionFlag(false),
					proofFileFlag(false),
					&cli.StringFlag{
						Name:  "root",
						Usage: "Root to verify the proof file against (default: the root in the file)",
					},
				},
				Action: verifyCommand,
			},
			{
				Name:  "can-claim",
				Usage: "Ask a server whether a proof file can be claimed",
				Flags: []cli.Flag{
					serverFlag(),
					proofFileFlag(true),
				},
				Action: canClaimCommand,
			},
			{
				Name:  "claim",
				Usage: "Sign and submit a claim for a proof file",
				Flags: []cli.Flag{
					serverFlag(),
					proofFileFlag(true),
					&cli.StringFlag{
						Name:     "private-key",
						Usage:    "Recipient secp256k1 private key (hex)",
						EnvVars:  []string{config.EnvAirdropPrivateKey},
						Required: true,
					},
				},
				Action: claimCommand,
			},
			{
				Name:  "status",
				Usage: "Show the claim status of a recipient",
				Flags: []cli.Flag{
					serverFlag(),
					&cli.StringFlag{
						Name:     "recipient",
						Usage:    "Recipient address",
						Required: true,
					},
				},
				Action: statusCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func distributionFlag(required bool) cli.Flag {
	return &cli.StringFlag{
		Name:     "distribution",
		Aliases:  []string{"d"},
		Usage:    "Distribution file written by build",
		Required: required,
	}
}

func proofFileFlag(required bool) cli.Flag {
	return &cli.StringFlag{
		Name:     "proof-file",
		Usage:    "Proof file written by proof",
		Required: required,
	}
}

func serverFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Airdrop server URL, repeat for failover",
		Value:   cli.NewStringSlice(config.DefaultServerURL),
		EnvVars: []string{config.EnvAirdropServerURL},
	}
}
