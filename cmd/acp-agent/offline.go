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

var offlineCmd = &cobra.Command{
	Use:   "offline <aid>",
	Short: "Sign out an AID at its access point",
	Long: `Signs out aid at --ap. This revokes the AP's record of the agent
being online; it does not require a running "online" process, so it can
clean up after one that exited without a graceful shutdown.`,
	Args: cobra.ExactArgs(1),
	RunE: runOffline,
}

var offlineAP string

func init() {
	rootCmd.AddCommand(offlineCmd)

	offlineCmd.Flags().StringVar(&offlineAP, "ap", "", "access point base URL")
	offlineCmd.MarkFlagRequired("ap")
}

func runOffline(cmd *cobra.Command, args []string) error {
	mgr, err := newIdentityManager()
	if err != nil {
		return err
	}

	aid := args[0]
	if err := mgr.SignOut(context.Background(), offlineAP, aid); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	fmt.Printf("%s is offline\n", aid)
	return nil
}
