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
	"fmt"

	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load <aid>",
	Short: "Load a locally stored AID and print its fingerprint",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoad,
}

var loadPassword string

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringVar(&loadPassword, "password", "", "password protecting the private key at rest")
	loadCmd.MarkFlagRequired("password")
}

func runLoad(cmd *cobra.Command, args []string) error {
	mgr, err := newIdentityManager()
	if err != nil {
		return err
	}

	id, err := mgr.LoadAID(args[0], loadPassword)
	if err != nil {
		return fmt.Errorf("load AID: %w", err)
	}
	fmt.Printf("loaded AID %s\nfingerprint: %s\n", id.AID, id.Fingerprint)
	return nil
}
