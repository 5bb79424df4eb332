// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new AID",
	Long: `Create a new agent identity: generates a key pair, requests a
certificate from the CA, and persists both under --base-dir.`,
	RunE: runCreate,
}

var (
	createCA       string
	createAID      string
	createPassword string
)

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVar(&createCA, "ca", "", "certificate authority base URL")
	createCmd.Flags().StringVar(&createAID, "aid", "", "agent identifier to register (e.g. alice.example.com)")
	createCmd.Flags().StringVar(&createPassword, "password", "", "password protecting the private key at rest")

	createCmd.MarkFlagRequired("ca")
	createCmd.MarkFlagRequired("aid")
	createCmd.MarkFlagRequired("password")
}

func runCreate(cmd *cobra.Command, args []string) error {
	mgr, err := newIdentityManager()
	if err != nil {
		return err
	}

	id, err := mgr.CreateAID(context.Background(), createCA, createAID, createPassword)
	if err != nil {
		return fmt.Errorf("create AID: %w", err)
	}

	fmt.Printf("created AID %s\nfingerprint: %s\n", id.AID, id.Fingerprint)
	return nil
}
