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

	"github.com/acp-project/acp-go/pkg/acp/groupstore"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Inspect a locally synced group's message log",
	Long: `A group's messages only sync while an "acp-agent online --join"
process is running: group pull reads back what that process already
wrote to the local JSONL log under --base-dir.`,
}

var groupPullCmd = &cobra.Command{
	Use:   "pull <aid> <group-id>",
	Short: "Print every locally stored message for a group",
	Args:  cobra.ExactArgs(2),
	RunE:  runGroupPull,
}

func init() {
	rootCmd.AddCommand(groupCmd)
	groupCmd.AddCommand(groupPullCmd)
}

func runGroupPull(cmd *cobra.Command, args []string) error {
	aid, groupID := args[0], args[1]

	dir, err := resolveBaseDir()
	if err != nil {
		return err
	}
	store := groupstore.New(dir, aid)

	messages, err := store.ReadMessages(groupID)
	if err != nil {
		return fmt.Errorf("read group messages: %w", err)
	}
	if len(messages) == 0 {
		fmt.Println("no messages stored")
		return nil
	}
	for _, m := range messages {
		fmt.Printf("[%d] %s: %s\n", m.MsgID, m.Sender, string(m.Body))
	}
	return nil
}
